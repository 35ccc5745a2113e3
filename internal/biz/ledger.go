package biz

import (
	"context"
	"time"

	"credit-service/internal/constants"
	"credit-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// LedgerUseCase 账本门面（组合 UseCase）
// 外部调用方只通过它访问账本；负责余额缓存和事件发布
type LedgerUseCase struct {
	accounts     *AccountUseCase
	transactions *TransactionUseCase
	usage        *UsageUseCase
	approvals    *ApprovalUseCase
	catalog      PackageCatalog

	cache     BalanceCache
	publisher EventPublisher
	conf      *LedgerConfig
	log       *log.Helper
	metrics   *metrics.CreditMetrics
}

// NewLedgerUseCase 创建账本 UseCase
func NewLedgerUseCase(
	accounts *AccountUseCase,
	transactions *TransactionUseCase,
	usage *UsageUseCase,
	approvals *ApprovalUseCase,
	catalog PackageCatalog,
	cache BalanceCache,
	publisher EventPublisher,
	conf *LedgerConfig,
	logger log.Logger,
) *LedgerUseCase {
	return &LedgerUseCase{
		accounts:     accounts,
		transactions: transactions,
		usage:        usage,
		approvals:    approvals,
		catalog:      catalog,
		cache:        cache,
		publisher:    publisher,
		conf:         conf,
		log:          log.NewHelper(logger),
		metrics:      metrics.GetMetrics(),
	}
}

// GetBalance 查询余额（优先读缓存，未命中时按需创建账户）
func (uc *LedgerUseCase) GetBalance(ctx context.Context, accountID string) (*Account, error) {
	defer uc.track("get_balance", time.Now())

	if err := validateAccountID(accountID); err != nil {
		return nil, err
	}
	if uc.cache != nil {
		if account, ok := uc.cache.Get(ctx, accountID); ok {
			uc.metrics.BalanceCacheTotal.WithLabelValues(constants.ResultHit).Inc()
			return account, nil
		}
		uc.metrics.BalanceCacheTotal.WithLabelValues(constants.ResultMiss).Inc()
	}

	account, err := uc.accounts.GetOrCreate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	uc.remember(ctx, account)
	return account, nil
}

// InitiatePurchase 发起购买
func (uc *LedgerUseCase) InitiatePurchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResult, error) {
	defer uc.track("initiate_purchase", time.Now())

	result, err := uc.transactions.InitiatePurchase(ctx, req)
	if err != nil {
		return nil, err
	}
	t := result.Transaction
	event := &LedgerEvent{
		Type:          constants.EventPurchaseCreated,
		AccountID:     t.AccountID,
		TransactionID: t.ID,
		Credits:       t.Credits,
		Status:        string(t.Status),
		OccurredAt:    t.CreatedAt,
	}
	if result.AutoCompleted {
		uc.remember(ctx, result.Account)
		event.Type = constants.EventPurchaseCompleted
		event.CurrentCredits = result.Account.CurrentCredits
	}
	uc.publish(ctx, event)
	return result, nil
}

// Consume 消费积分
func (uc *LedgerUseCase) Consume(ctx context.Context, req *ConsumeRequest) (*ConsumeResult, error) {
	defer uc.track("consume", time.Now())

	result, err := uc.usage.Consume(ctx, req)
	if err != nil {
		return nil, err
	}
	if result.Replayed {
		return result, nil
	}
	uc.remember(ctx, result.Account)
	uc.publish(ctx, &LedgerEvent{
		Type:           constants.EventUsageConsumed,
		AccountID:      result.Usage.AccountID,
		UsageID:        result.Usage.ID,
		Feature:        result.Usage.Feature,
		Credits:        result.Usage.Credits,
		CurrentCredits: result.Account.CurrentCredits,
		OccurredAt:     result.Usage.CreatedAt,
	})
	return result, nil
}

// Approve 审核通过
func (uc *LedgerUseCase) Approve(ctx context.Context, transactionID, notes string) (*ApprovalResult, error) {
	defer uc.track("approve", time.Now())

	result, err := uc.approvals.Approve(ctx, transactionID, notes)
	if err != nil {
		return nil, err
	}
	uc.afterResolve(ctx, result, constants.EventPurchaseCompleted)
	return result, nil
}

// Reject 审核拒绝
func (uc *LedgerUseCase) Reject(ctx context.Context, transactionID, notes string) (*ApprovalResult, error) {
	defer uc.track("reject", time.Now())

	result, err := uc.approvals.Reject(ctx, transactionID, notes)
	if err != nil {
		return nil, err
	}
	uc.afterResolve(ctx, result, constants.EventPurchaseRejected)
	return result, nil
}

// ListPending 待审核交易（新到旧）
func (uc *LedgerUseCase) ListPending(ctx context.Context) ([]*Transaction, error) {
	return uc.approvals.ListPending(ctx)
}

// ListTransactions 账户交易记录
func (uc *LedgerUseCase) ListTransactions(ctx context.Context, accountID string) ([]*Transaction, error) {
	return uc.transactions.ListTransactions(ctx, accountID)
}

// ListUsage 账户消费流水
func (uc *LedgerUseCase) ListUsage(ctx context.Context, accountID string) ([]*UsageLog, error) {
	return uc.usage.ListUsage(ctx, accountID)
}

// UsageSummary 当月按功能汇总
func (uc *LedgerUseCase) UsageSummary(ctx context.Context, accountID string) ([]*FeatureUsage, error) {
	return uc.usage.SummarizeMonth(ctx, accountID)
}

// ListPackages 套餐目录
func (uc *LedgerUseCase) ListPackages(ctx context.Context) ([]*Package, error) {
	return uc.catalog.ListPackages(ctx)
}

func (uc *LedgerUseCase) afterResolve(ctx context.Context, result *ApprovalResult, eventType string) {
	t := result.Transaction
	event := &LedgerEvent{
		Type:          eventType,
		AccountID:     t.AccountID,
		TransactionID: t.ID,
		Credits:       t.Credits,
		Status:        string(t.Status),
		OccurredAt:    t.UpdatedAt,
	}
	if result.Account != nil {
		uc.remember(ctx, result.Account)
		event.CurrentCredits = result.Account.CurrentCredits
	}
	uc.publish(ctx, event)
}

// remember 提交后刷新缓存（版本保护，旧数据不会覆盖新数据）
func (uc *LedgerUseCase) remember(ctx context.Context, account *Account) {
	if uc.cache == nil || account == nil {
		return
	}
	uc.cache.Set(ctx, account)
}

func (uc *LedgerUseCase) publish(ctx context.Context, event *LedgerEvent) {
	if uc.publisher == nil {
		return
	}
	if err := uc.publisher.Publish(ctx, event); err != nil {
		uc.log.Warnf("Publish ledger event failed: type=%s, account_id=%s, error=%v", event.Type, event.AccountID, err)
	}
}

func (uc *LedgerUseCase) track(operation string, start time.Time) {
	uc.metrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
