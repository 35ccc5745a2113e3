package data

import (
	"fmt"
	"time"

	"credit-service/internal/conf"
	"credit-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/google/wire"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewDB,
	NewRedis,
	NewRedsync,
	NewData,
	NewAccountRepo,
	NewTransactionRepo,
	NewUsageRepo,
	NewBalanceCache,
	NewEventPublisher,
	NewJobLocker,
)

// Data 数据层结构体
type Data struct {
	db  *gorm.DB
	rdb *redis.Client // 未配置 Redis 时为 nil
}

// NewDB 创建数据库连接；cleanup 关闭连接池，后续依赖初始化失败时也能释放
func NewDB(c *conf.Bootstrap, logger log.Logger) (*gorm.DB, func(), error) {
	if c.Data == nil || c.Data.Database == nil {
		return nil, nil, fmt.Errorf("database config is nil")
	}
	cfg := c.Data.Database

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "mysql":
		dialector = mysql.Open(cfg.Source)
	case "sqlite":
		dialector = sqlite.Open(cfg.Source)
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	// TranslateError: 唯一约束冲突统一为 gorm.ErrDuplicatedKey
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		log.NewHelper(logger).Info("closing the database")
		if err := sqlDB.Close(); err != nil {
			log.NewHelper(logger).Errorf("failed to close database: %v", err)
		}
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(int(cfg.MaxOpenConns))
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(int(cfg.MaxIdleConns))
	}
	if d := cfg.MaxLifetime.AsDuration(); d > 0 {
		sqlDB.SetConnMaxLifetime(d)
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&model.CreditAccount{}, &model.CreditTransaction{}, &model.UsageLog{}); err != nil {
			sqlDB.Close()
			return nil, nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return db, cleanup, nil
}

// NewRedis 创建 Redis 连接；未配置地址时返回 nil（关闭缓存和任务锁）
func NewRedis(c *conf.Bootstrap, logger log.Logger) (*redis.Client, error) {
	if c.Data == nil || c.Data.Redis == nil || c.Data.Redis.Addr == "" {
		log.NewHelper(logger).Warn("redis is not configured, balance cache and job locks are disabled")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         c.Data.Redis.Addr,
		Password:     c.Data.Redis.Password,
		DB:           int(c.Data.Redis.Db),
		ReadTimeout:  c.Data.Redis.ReadTimeout.AsDuration(),
		WriteTimeout: c.Data.Redis.WriteTimeout.AsDuration(),
	})

	// 测试连接
	if err := rdb.Ping(rdb.Context()).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	return rdb, nil
}

// NewRedsync 创建分布式锁
func NewRedsync(rdb *redis.Client) *redsync.Redsync {
	if rdb == nil {
		return nil
	}
	return redsync.New(goredis.NewPool(rdb))
}

// NewData 创建数据层实例
func NewData(logger log.Logger, db *gorm.DB, rdb *redis.Client) (*Data, func(), error) {
	cleanup := func() {
		log.NewHelper(logger).Info("closing the data resources")
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				log.NewHelper(logger).Errorf("failed to close redis: %v", err)
			}
		}
	}

	return &Data{
		db:  db,
		rdb: rdb,
	}, cleanup, nil
}

// cacheTTL 余额缓存过期时间
func cacheTTL(c *conf.Bootstrap) time.Duration {
	if c.Data != nil && c.Data.Redis != nil {
		if ttl := c.Data.Redis.CacheTtl.AsDuration(); ttl > 0 {
			return ttl
		}
	}
	return 5 * time.Minute
}
