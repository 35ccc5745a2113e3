package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CreditMetrics 积分账本指标
type CreditMetrics struct {
	// 购买相关指标
	PurchaseTotal  *prometheus.CounterVec // 购买请求总数（按支付方式、结果）
	FreeClaimTotal *prometheus.CounterVec // 免费套餐领取（按结果）

	// 审核相关指标
	ApprovalTotal  *prometheus.CounterVec // 审核动作总数（按动作、结果）
	CreditsGranted prometheus.Counter     // 入账积分总量

	// 消费相关指标
	ConsumeTotal    *prometheus.CounterVec // 消费请求总数（按功能、结果）
	CreditsConsumed *prometheus.CounterVec // 消费积分总量（按功能）

	// 通用耗时
	OperationDuration *prometheus.HistogramVec // 账本操作耗时（按操作）

	// 余额相关指标
	BalanceCacheTotal *prometheus.CounterVec // 余额缓存命中（按结果）
	LowBalanceTotal   prometheus.Counter     // 消费后余额低于阈值的次数

	// 对账 / 定时任务
	UsageDriftAccounts prometheus.Gauge       // used_credits 与流水合计不一致的账户数
	PendingExpired     prometheus.Counter     // 过期自动拒绝的交易数
	LockAcquireTotal   *prometheus.CounterVec // 任务锁获取（按结果）
}

// NewCreditMetrics 创建积分账本指标
func NewCreditMetrics() *CreditMetrics {
	return &CreditMetrics{
		PurchaseTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_purchase_total",
				Help: "Total number of purchase initiations",
			},
			[]string{"method", "result"},
		),
		FreeClaimTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_free_claim_total",
				Help: "Total number of monthly free package claims",
			},
			[]string{"result"}, // result: success/already_claimed/error
		),

		ApprovalTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_approval_total",
				Help: "Total number of approval workflow actions",
			},
			[]string{"action", "result"}, // action: approve/reject/expire
		),
		CreditsGranted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credit_granted_total",
				Help: "Total credits applied by completed transactions",
			},
		),

		ConsumeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_consume_total",
				Help: "Total number of consumption requests",
			},
			[]string{"feature", "result"}, // result: success/insufficient/replayed/error
		),
		CreditsConsumed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_consumed_total",
				Help: "Total credits consumed",
			},
			[]string{"feature"},
		),

		OperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credit_operation_duration_seconds",
				Help:    "Duration of ledger operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		BalanceCacheTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_balance_cache_total",
				Help: "Balance cache lookups",
			},
			[]string{"result"}, // result: hit/miss
		),
		LowBalanceTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credit_low_balance_total",
				Help: "Consumptions that left the account below the low balance threshold",
			},
		),

		UsageDriftAccounts: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "credit_usage_drift_accounts",
				Help: "Accounts whose used_credits differs from their usage log sum",
			},
		),
		PendingExpired: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credit_pending_expired_total",
				Help: "Pending transactions rejected by the expiry job",
			},
		),
		LockAcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_job_lock_acquire_total",
				Help: "Total number of job lock acquisition attempts",
			},
			[]string{"job", "result"},
		),
	}
}

var (
	defaultMetrics *CreditMetrics
	once           sync.Once
)

// GetMetrics 获取全局指标实例
func GetMetrics() *CreditMetrics {
	once.Do(func() {
		defaultMetrics = NewCreditMetrics()
	})
	return defaultMetrics
}
