package biz

import (
	"context"
	"errors"

	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"
	"credit-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	driftScanLimit   = 1000
	expireBatchLimit = 100
)

// JobLocker 跨实例的定时任务互斥
type JobLocker interface {
	// RunExclusive 获取到锁时执行 fn 并返回 true；锁被其他实例持有时返回 false, nil
	RunExclusive(ctx context.Context, job string, fn func(ctx context.Context) error) (bool, error)
}

// MaintenanceUseCase 定时维护任务：流水对账、过期待审核交易
type MaintenanceUseCase struct {
	usage        UsageRepo
	transactions TransactionRepo
	approvals    *ApprovalUseCase
	publisher    EventPublisher
	locker       JobLocker
	conf         *LedgerConfig
	log          *log.Helper
	metrics      *metrics.CreditMetrics
}

// NewMaintenanceUseCase 创建维护任务 UseCase
func NewMaintenanceUseCase(
	usage UsageRepo,
	transactions TransactionRepo,
	approvals *ApprovalUseCase,
	publisher EventPublisher,
	locker JobLocker,
	conf *LedgerConfig,
	logger log.Logger,
) *MaintenanceUseCase {
	return &MaintenanceUseCase{
		usage:        usage,
		transactions: transactions,
		approvals:    approvals,
		publisher:    publisher,
		locker:       locker,
		conf:         conf,
		log:          log.NewHelper(logger),
		metrics:      metrics.GetMetrics(),
	}
}

// ReconcileUsage 检查 used_credits 与流水合计是否一致，只报告不修复
func (uc *MaintenanceUseCase) ReconcileUsage(ctx context.Context) ([]*UsageDrift, error) {
	var drifts []*UsageDrift
	err := uc.exclusive(ctx, constants.JobReconcileUsage, func(ctx context.Context) error {
		var err error
		drifts, err = uc.usage.ListUsageDrift(ctx, driftScanLimit)
		if err != nil {
			return err
		}
		uc.metrics.UsageDriftAccounts.Set(float64(len(drifts)))
		for _, d := range drifts {
			uc.log.Errorf("Usage drift detected: account_id=%s, used_credits=%d, logged_credits=%d",
				d.AccountID, d.UsedCredits, d.LoggedCredits)
		}
		uc.log.Infof("Usage reconciliation finished: drift_accounts=%d", len(drifts))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drifts, nil
}

// ExpirePending 拒绝超过 PendingExpiry 仍未审核的交易，返回处理条数
func (uc *MaintenanceUseCase) ExpirePending(ctx context.Context) (int, error) {
	if uc.conf.PendingExpiry <= 0 {
		return 0, nil
	}

	expired := 0
	err := uc.exclusive(ctx, constants.JobExpirePending, func(ctx context.Context) error {
		before := uc.conf.now().Add(-uc.conf.PendingExpiry)
		for {
			batch, err := uc.transactions.ListPendingBefore(ctx, before, expireBatchLimit)
			if err != nil {
				return err
			}
			processed := 0
			for _, t := range batch {
				result, err := uc.approvals.Expire(ctx, t.ID)
				if err != nil {
					// 已被管理员处理
					if errors.Is(err, creditErrors.ErrInvalidState) {
						continue
					}
					return err
				}
				processed++
				expired++
				uc.publish(ctx, result.Transaction)
			}
			if len(batch) < expireBatchLimit || processed == 0 {
				return nil
			}
		}
	})
	if err != nil {
		return expired, err
	}
	if expired > 0 {
		uc.log.Infof("Pending transactions expired: count=%d", expired)
	}
	return expired, nil
}

func (uc *MaintenanceUseCase) exclusive(ctx context.Context, job string, fn func(ctx context.Context) error) error {
	if uc.locker == nil {
		return fn(ctx)
	}
	ran, err := uc.locker.RunExclusive(ctx, job, fn)
	if err != nil {
		uc.log.Errorf("Job failed: job=%s, error=%v", job, err)
		return err
	}
	if !ran {
		uc.log.Infof("Job skipped, lock held by another instance: job=%s", job)
	}
	return nil
}

func (uc *MaintenanceUseCase) publish(ctx context.Context, t *Transaction) {
	if uc.publisher == nil {
		return
	}
	event := &LedgerEvent{
		Type:          constants.EventPurchaseRejected,
		AccountID:     t.AccountID,
		TransactionID: t.ID,
		Credits:       t.Credits,
		Status:        string(t.Status),
		OccurredAt:    t.UpdatedAt,
	}
	if err := uc.publisher.Publish(ctx, event); err != nil {
		uc.log.Warnf("Publish ledger event failed: type=%s, account_id=%s, error=%v", event.Type, event.AccountID, err)
	}
}
