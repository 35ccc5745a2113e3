package constants

import "time"

// 时间格式常量
const (
	// TimeFormatMonth 月份格式 (YYYY-MM)，用于免费套餐的月度领取桶
	TimeFormatMonth = "2006-01"
)

// Redis Key 前缀常量
const (
	// RedisKeyBalance 积分余额缓存 key 前缀
	RedisKeyBalance = "credit:balance:"
	// RedisKeyJobLock 定时任务锁 key 前缀
	RedisKeyJobLock = "credit:job:lock:"
)

// 账本默认值
const (
	// DefaultInitialCredits 新账户的初始赠送积分
	DefaultInitialCredits = 500
	// DefaultTimezone 月度桶使用的默认时区
	DefaultTimezone = "UTC"
	// ExpiredNote 过期自动拒绝时写入的备注
	ExpiredNote = "expired"
)

// 交易状态常量（与数据库 status 列取值一致）
const (
	// TransactionStatusPending 待审核
	TransactionStatusPending = "pending"
	// TransactionStatusCompleted 已完成（积分已入账）
	TransactionStatusCompleted = "completed"
	// TransactionStatusRejected 已拒绝（积分从未入账）
	TransactionStatusRejected = "rejected"
)

// 支付方式常量
const (
	// PaymentMethodFree 免费套餐
	PaymentMethodFree = "free"
	// PaymentMethodCash 现金（需人工审核）
	PaymentMethodCash = "cash"
	// PaymentMethodBkash bKash 移动钱包
	PaymentMethodBkash = "bkash"
	// PaymentMethodNagad Nagad 移动钱包
	PaymentMethodNagad = "nagad"
	// PaymentMethodRocket Rocket 移动钱包
	PaymentMethodRocket = "rocket"
	// PaymentMethodBankTransfer 银行转账
	PaymentMethodBankTransfer = "bank_transfer"
)

// 账本事件类型
const (
	EventPurchaseCreated   = "purchase.created"
	EventPurchaseCompleted = "purchase.completed"
	EventPurchaseRejected  = "purchase.rejected"
	EventUsageConsumed     = "usage.consumed"
)

// 审核动作（用于指标）
const (
	ApprovalActionApprove = "approve"
	ApprovalActionReject  = "reject"
	ApprovalActionExpire  = "expire"
)

// 指标结果标签
const (
	ResultSuccess      = "success"
	ResultRejected     = "rejected"
	ResultError        = "error"
	ResultReplayed     = "replayed"
	ResultInsufficient = "insufficient"
	ResultClaimed      = "already_claimed"
	ResultHit          = "hit"
	ResultMiss         = "miss"
)

// 定时任务名称
const (
	JobReconcileUsage = "reconcile_usage"
	JobExpirePending  = "expire_pending"
)

// CronJobTimeout 单次定时任务的执行上限，任务锁的过期时间必须大于它
const CronJobTimeout = 10 * time.Minute

// 请求头
const (
	// HeaderAdminToken 管理接口令牌
	HeaderAdminToken = "X-Admin-Token"
)
