package biz

import (
	"context"
	"errors"
	"time"

	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"
	"credit-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

const (
	maxFeatureLength           = 64
	maxRequestIDLength         = 64
	maxDescriptionLength       = 255
	maxDocumentReferenceLength = 128
)

// UsageLog 积分消费流水领域对象（写入后不可变）
type UsageLog struct {
	ID                string
	AccountID         string
	Feature           string
	Credits           int64
	Description       string
	DocumentReference string
	RequestID         string // 可选：调用方幂等键
	CreatedAt         time.Time
}

// FeatureUsage 按功能汇总的消费统计
type FeatureUsage struct {
	Feature string
	Count   int64
	Credits int64
}

// UsageDrift used_credits 与流水合计不一致的账户
type UsageDrift struct {
	AccountID     string
	UsedCredits   int64
	LoggedCredits int64
}

// UsageRepo 消费数据层接口（定义在 biz 层）
type UsageRepo interface {
	// ConsumeCredits 同一事务内：条件扣减（current_credits >= credits）+ 写入流水。
	// 余额不足返回 ErrInsufficientCredits，账户不存在返回 ErrAccountNotFound，
	// request_id 重复返回 ErrDuplicateUsage；以上情况均无任何变更。
	ConsumeCredits(ctx context.Context, usage *UsageLog) (*Account, error)
	// GetUsageByRequestID 不存在时返回 nil, nil
	GetUsageByRequestID(ctx context.Context, accountID, requestID string) (*UsageLog, error)
	ListUsageLogs(ctx context.Context, accountID string) ([]*UsageLog, error)
	SummarizeUsage(ctx context.Context, accountID string, since time.Time) ([]*FeatureUsage, error)
	ListUsageDrift(ctx context.Context, limit int) ([]*UsageDrift, error)
}

// ConsumeRequest 消费请求（credits 由调用方按功能价格表换算好）
type ConsumeRequest struct {
	AccountID         string
	Feature           string
	Credits           int64
	Description       string
	DocumentReference string
	RequestID         string
}

// ConsumeResult 消费结果
type ConsumeResult struct {
	Usage    *UsageLog
	Account  *Account
	Replayed bool // request_id 已处理过，返回原流水，未重复扣减
}

// UsageUseCase 消费业务逻辑
type UsageUseCase struct {
	repo     UsageRepo
	accounts *AccountUseCase
	conf     *LedgerConfig
	log      *log.Helper
	metrics  *metrics.CreditMetrics
}

// NewUsageUseCase 创建消费 UseCase
func NewUsageUseCase(repo UsageRepo, accounts *AccountUseCase, conf *LedgerConfig, logger log.Logger) *UsageUseCase {
	return &UsageUseCase{
		repo:     repo,
		accounts: accounts,
		conf:     conf,
		log:      log.NewHelper(logger),
		metrics:  metrics.GetMetrics(),
	}
}

// Consume 扣减积分并记录流水（原子）
func (uc *UsageUseCase) Consume(ctx context.Context, req *ConsumeRequest) (*ConsumeResult, error) {
	if err := uc.validate(req); err != nil {
		uc.observe(constants.ResultRejected, "")
		return nil, err
	}

	// 首次访问时创建账户（默认初始积分）
	if _, err := uc.accounts.GetOrCreate(ctx, req.AccountID); err != nil {
		uc.observe(constants.ResultError, req.Feature)
		return nil, err
	}

	usage := &UsageLog{
		ID:                uuid.New().String(),
		AccountID:         req.AccountID,
		Feature:           req.Feature,
		Credits:           req.Credits,
		Description:       req.Description,
		DocumentReference: req.DocumentReference,
		RequestID:         req.RequestID,
		CreatedAt:         uc.conf.now(),
	}

	account, err := uc.repo.ConsumeCredits(ctx, usage)
	if err != nil {
		switch {
		case errors.Is(err, creditErrors.ErrInsufficientCredits):
			uc.log.Warnf("Insufficient credits: account_id=%s, feature=%s, credits=%d", req.AccountID, req.Feature, req.Credits)
			uc.observe(constants.ResultInsufficient, req.Feature)
			return nil, err
		case errors.Is(err, creditErrors.ErrDuplicateUsage):
			return uc.replay(ctx, req)
		default:
			uc.log.Errorf("ConsumeCredits failed: account_id=%s, feature=%s, error=%v", req.AccountID, req.Feature, err)
			uc.observe(constants.ResultError, req.Feature)
			return nil, err
		}
	}

	uc.observe(constants.ResultSuccess, req.Feature)
	uc.metrics.CreditsConsumed.WithLabelValues(req.Feature).Add(float64(req.Credits))
	if uc.conf.LowBalanceThreshold > 0 && account.CurrentCredits < uc.conf.LowBalanceThreshold {
		uc.metrics.LowBalanceTotal.Inc()
	}
	uc.log.Infof("Credits consumed: usage_id=%s, account_id=%s, feature=%s, credits=%d, current=%d, used=%d",
		usage.ID, usage.AccountID, usage.Feature, usage.Credits, account.CurrentCredits, account.UsedCredits)
	return &ConsumeResult{Usage: usage, Account: account}, nil
}

// replay 同一 request_id 的重复请求：返回原流水，不再扣减
func (uc *UsageUseCase) replay(ctx context.Context, req *ConsumeRequest) (*ConsumeResult, error) {
	existing, err := uc.repo.GetUsageByRequestID(ctx, req.AccountID, req.RequestID)
	if err != nil {
		uc.observe(constants.ResultError, req.Feature)
		return nil, err
	}
	if existing == nil {
		// 唯一冲突但查不到记录，说明存储状态异常
		uc.observe(constants.ResultError, req.Feature)
		return nil, creditErrors.StoreUnavailable(creditErrors.ErrDuplicateUsage)
	}
	account, err := uc.accounts.GetOrCreate(ctx, req.AccountID)
	if err != nil {
		uc.observe(constants.ResultError, req.Feature)
		return nil, err
	}
	uc.observe(constants.ResultReplayed, req.Feature)
	uc.log.Infof("Usage request replayed: usage_id=%s, account_id=%s, request_id=%s", existing.ID, existing.AccountID, req.RequestID)
	return &ConsumeResult{Usage: existing, Account: account, Replayed: true}, nil
}

func (uc *UsageUseCase) validate(req *ConsumeRequest) error {
	if err := validateAccountID(req.AccountID); err != nil {
		return err
	}
	if req.Credits <= 0 {
		return creditErrors.ErrInvalidAmount
	}
	if req.Feature == "" || len(req.Feature) > maxFeatureLength {
		return creditErrors.ErrInvalidFeature
	}
	if len(req.RequestID) > maxRequestIDLength {
		return creditErrors.ErrInvalidRequestID
	}
	if !fitsColumn(req.Description, maxDescriptionLength) || !fitsColumn(req.DocumentReference, maxDocumentReferenceLength) {
		return creditErrors.ErrFieldTooLong
	}
	return nil
}

// ListUsage 账户消费流水（新到旧）
func (uc *UsageUseCase) ListUsage(ctx context.Context, accountID string) ([]*UsageLog, error) {
	if err := validateAccountID(accountID); err != nil {
		return nil, err
	}
	return uc.repo.ListUsageLogs(ctx, accountID)
}

// SummarizeMonth 当月按功能汇总
func (uc *UsageUseCase) SummarizeMonth(ctx context.Context, accountID string) ([]*FeatureUsage, error) {
	if err := validateAccountID(accountID); err != nil {
		return nil, err
	}
	return uc.repo.SummarizeUsage(ctx, accountID, uc.conf.MonthStart(uc.conf.now()))
}

func (uc *UsageUseCase) observe(result, feature string) {
	if uc.metrics == nil {
		return
	}
	if feature == "" {
		feature = "unknown"
	}
	uc.metrics.ConsumeTotal.WithLabelValues(feature, result).Inc()
}
