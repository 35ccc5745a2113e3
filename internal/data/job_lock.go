package data

import (
	"context"
	"errors"
	"time"

	"credit-service/internal/biz"
	"credit-service/internal/conf"
	"credit-service/internal/constants"
	"credit-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
)

// defaultLockExpiry 比任务超时多留 5 分钟，任务执行期间锁不会过期
const defaultLockExpiry = constants.CronJobTimeout + 5*time.Minute

// jobLocker 基于 redsync 的定时任务锁；未配置 Redis 时直接执行（单实例部署）
type jobLocker struct {
	rs      *redsync.Redsync
	expiry  time.Duration
	log     *log.Helper
	metrics *metrics.CreditMetrics
}

// NewJobLocker 创建任务锁
func NewJobLocker(rs *redsync.Redsync, c *conf.Bootstrap, logger log.Logger) biz.JobLocker {
	helper := log.NewHelper(logger)
	expiry := defaultLockExpiry
	if c.Cron != nil {
		if d := c.Cron.LockExpiry.AsDuration(); d > 0 {
			expiry = d
		}
	}
	if expiry <= constants.CronJobTimeout {
		helper.Warnf("lock_expiry %s does not exceed job timeout %s, using %s", expiry, constants.CronJobTimeout, defaultLockExpiry)
		expiry = defaultLockExpiry
	}
	return &jobLocker{
		rs:      rs,
		expiry:  expiry,
		log:     helper,
		metrics: metrics.GetMetrics(),
	}
}

// RunExclusive 只尝试一次加锁，拿不到说明其他实例正在执行
func (l *jobLocker) RunExclusive(ctx context.Context, job string, fn func(ctx context.Context) error) (bool, error) {
	if l.rs == nil {
		return true, fn(ctx)
	}

	mutex := l.rs.NewMutex(constants.RedisKeyJobLock+job, redsync.WithExpiry(l.expiry))
	if err := mutex.TryLockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			l.metrics.LockAcquireTotal.WithLabelValues(job, constants.ResultClaimed).Inc()
			return false, nil
		}
		l.metrics.LockAcquireTotal.WithLabelValues(job, constants.ResultError).Inc()
		return false, err
	}
	l.metrics.LockAcquireTotal.WithLabelValues(job, constants.ResultSuccess).Inc()
	defer func() {
		if ok, err := mutex.UnlockContext(ctx); !ok || err != nil {
			l.log.Warnf("Failed to unlock job: job=%s, error=%v", job, err)
		}
	}()

	return true, fn(ctx)
}
