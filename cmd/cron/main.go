package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"credit-service/internal/biz"
	"credit-service/internal/conf"
	"credit-service/internal/constants"

	"github.com/gaoyong06/go-pkg/logger"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

const (
	// 默认每 30 分钟对账一次
	defaultReconcileSpec = "0 */30 * * * *"
	// 默认每 10 分钟清理过期的待审核交易
	defaultExpireSpec = "0 */10 * * * *"
)

var (
	flagconf string
)

// CronApp Cron 应用结构
type CronApp struct {
	maintenance *biz.MaintenanceUseCase
}

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	// 初始化配置
	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	// 初始化日志 (使用 go-pkg/logger)
	logConfig := &logger.Config{
		Level:         "info",
		Format:        "json",
		Output:        "stdout",
		FilePath:      "logs/credit-cron.log",
		MaxSize:       100,
		MaxAge:        30,
		MaxBackups:    10,
		Compress:      true,
		EnableConsole: true,
	}

	loggerInstance := logger.NewLogger(logConfig)

	// 添加基本字段
	loggerInstance = log.With(loggerInstance,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "credit-cron",
	)

	logHelper := log.NewHelper(loggerInstance)

	// 初始化应用
	app, cleanup, err := wireApp(&bc, loggerInstance)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	reconcileSpec, expireSpec := defaultReconcileSpec, defaultExpireSpec
	if bc.Cron != nil {
		if bc.Cron.ReconcileSpec != "" {
			reconcileSpec = bc.Cron.ReconcileSpec
		}
		if bc.Cron.ExpireSpec != "" {
			expireSpec = bc.Cron.ExpireSpec
		}
	}

	// 创建定时任务调度器（支持秒级调度）
	cronScheduler := cron.New(cron.WithSeconds())

	// 对账：used_credits 与消费流水合计
	_, err = cronScheduler.AddFunc(reconcileSpec, func() {
		logHelper.Info("[CRON] Starting usage reconciliation...")
		ctx, cancel := context.WithTimeout(context.Background(), constants.CronJobTimeout)
		defer cancel()

		drifts, err := app.maintenance.ReconcileUsage(ctx)
		if err != nil {
			logHelper.Errorf("[CRON] Error reconciling usage: %v", err)
			return
		}
		logHelper.Infof("[CRON] Finished usage reconciliation: drift_accounts=%d", len(drifts))
	})
	if err != nil {
		logHelper.Errorf("Failed to add reconcile job: %v", err)
	}

	// 过期的待审核交易自动拒绝
	_, err = cronScheduler.AddFunc(expireSpec, func() {
		logHelper.Info("[CRON] Starting pending expiry...")
		ctx, cancel := context.WithTimeout(context.Background(), constants.CronJobTimeout)
		defer cancel()

		count, err := app.maintenance.ExpirePending(ctx)
		if err != nil {
			logHelper.Errorf("[CRON] Error expiring pending transactions: %v", err)
			return
		}
		logHelper.Infof("[CRON] Finished pending expiry: expired=%d", count)
	})
	if err != nil {
		logHelper.Errorf("Failed to add pending expiry job: %v", err)
	}

	// 启动定时任务
	cronScheduler.Start()
	logHelper.Info("========================================")
	logHelper.Info("Cron jobs started successfully")
	logHelper.Info("Scheduled jobs:")
	logHelper.Infof("  - Usage reconciliation: %s", reconcileSpec)
	logHelper.Infof("  - Pending expiry: %s", expireSpec)
	logHelper.Info("========================================")

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logHelper.Info("Shutting down gracefully...")

	// 停止定时任务
	ctx := cronScheduler.Stop()
	select {
	case <-ctx.Done():
		logHelper.Info("Cron jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		logHelper.Info("Cron jobs forced to stop after timeout")
	}
}
