package errors

import (
	"strconv"

	kratosErrors "github.com/go-kratos/kratos/v2/errors"
)

// Credit Service 错误码定义
// 错误码格式：SSMMEE (6位数字)
//   SS: 服务标识，Credit 固定为 20
//   MM: 模块标识，按业务划分
//   EE: 模块内错误序号
//
// 模块划分：
//   00: 通用模块
//   01: 账户模块
//   02: 交易模块
//   03: 消费模块
//   04: 审核模块
//
// 错误对象使用 kratos errors，HTTP 状态码 + reason 用于 errors.Is 比较，
// 业务错误码写入 metadata["code"]。

// 通用模块错误码 (200000-200099)
const (
	// ErrCodeStoreUnavailable 存储不可用
	ErrCodeStoreUnavailable = 200001
	// ErrCodeAdminForbidden 管理接口令牌无效
	ErrCodeAdminForbidden = 200002
	// ErrCodeFieldTooLong 文本字段超过列宽
	ErrCodeFieldTooLong = 200003
)

// 账户模块错误码 (200100-200199)
const (
	// ErrCodeInvalidAmount 积分数量无效
	ErrCodeInvalidAmount = 200101
	// ErrCodeInsufficientCredits 积分不足
	ErrCodeInsufficientCredits = 200102
	// ErrCodeAccountNotFound 账户不存在
	ErrCodeAccountNotFound = 200103
	// ErrCodeInvalidAccountID 账户ID无效
	ErrCodeInvalidAccountID = 200104
)

// 交易模块错误码 (200200-200299)
const (
	// ErrCodeMissingPaymentProof 缺少付款凭证
	ErrCodeMissingPaymentProof = 200201
	// ErrCodeFreePackageAlreadyClaimed 本月免费套餐已领取
	ErrCodeFreePackageAlreadyClaimed = 200202
	// ErrCodeUnknownPackage 未知套餐
	ErrCodeUnknownPackage = 200203
	// ErrCodeInvalidPaymentMethod 支付方式无效
	ErrCodeInvalidPaymentMethod = 200204
)

// 消费模块错误码 (200300-200399)
const (
	// ErrCodeInvalidFeature 功能标识为空
	ErrCodeInvalidFeature = 200301
	// ErrCodeDuplicateUsage 重复的消费请求
	ErrCodeDuplicateUsage = 200302
	// ErrCodeInvalidRequestID 幂等键过长
	ErrCodeInvalidRequestID = 200303
)

// 审核模块错误码 (200400-200499)
const (
	// ErrCodeTransactionNotFound 交易不存在
	ErrCodeTransactionNotFound = 200401
	// ErrCodeInvalidState 交易状态不允许该操作
	ErrCodeInvalidState = 200402
)

var (
	ErrStoreUnavailable = newError(503, ErrCodeStoreUnavailable, "STORE_UNAVAILABLE", "credit store unavailable")
	ErrAdminForbidden   = newError(403, ErrCodeAdminForbidden, "ADMIN_FORBIDDEN", "admin token required")
	ErrFieldTooLong     = newError(400, ErrCodeFieldTooLong, "FIELD_TOO_LONG", "field exceeds maximum length")

	ErrInvalidAmount       = newError(400, ErrCodeInvalidAmount, "INVALID_AMOUNT", "credit amount must be positive")
	ErrInsufficientCredits = newError(402, ErrCodeInsufficientCredits, "INSUFFICIENT_CREDITS", "insufficient credits")
	ErrAccountNotFound     = newError(404, ErrCodeAccountNotFound, "ACCOUNT_NOT_FOUND", "account not found")
	ErrInvalidAccountID    = newError(400, ErrCodeInvalidAccountID, "INVALID_ACCOUNT_ID", "account id is required")

	ErrMissingPaymentProof       = newError(400, ErrCodeMissingPaymentProof, "MISSING_PAYMENT_PROOF", "payment number and external reference are required")
	ErrFreePackageAlreadyClaimed = newError(409, ErrCodeFreePackageAlreadyClaimed, "FREE_PACKAGE_ALREADY_CLAIMED", "free package already claimed this month")
	ErrUnknownPackage            = newError(404, ErrCodeUnknownPackage, "UNKNOWN_PACKAGE", "unknown credit package")
	ErrInvalidPaymentMethod      = newError(400, ErrCodeInvalidPaymentMethod, "INVALID_PAYMENT_METHOD", "invalid payment method")

	ErrInvalidFeature   = newError(400, ErrCodeInvalidFeature, "INVALID_FEATURE", "feature is required")
	ErrDuplicateUsage   = newError(409, ErrCodeDuplicateUsage, "DUPLICATE_USAGE", "usage request already recorded")
	ErrInvalidRequestID = newError(400, ErrCodeInvalidRequestID, "INVALID_REQUEST_ID", "request id is too long")

	ErrTransactionNotFound = newError(404, ErrCodeTransactionNotFound, "TRANSACTION_NOT_FOUND", "transaction not found")
	ErrInvalidState        = newError(409, ErrCodeInvalidState, "INVALID_STATE", "transaction is not pending")
)

func newError(httpCode, bizCode int, reason, message string) *kratosErrors.Error {
	return kratosErrors.New(httpCode, reason, message).
		WithMetadata(map[string]string{"code": strconv.Itoa(bizCode)})
}

// StoreUnavailable 将底层存储错误包装为 STORE_UNAVAILABLE
func StoreUnavailable(cause error) error {
	if cause == nil {
		return nil
	}
	return ErrStoreUnavailable.WithCause(cause)
}

// IsBusiness 判断是否为确定性的业务错误（非存储故障）
func IsBusiness(err error) bool {
	e := kratosErrors.FromError(err)
	if e == nil {
		return false
	}
	return e.Code >= 400 && e.Code < 500
}
