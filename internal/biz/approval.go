package biz

import (
	"context"
	"errors"
	"unicode/utf8"

	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"
	"credit-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

const maxNotesLength = 500

// ApprovalResult 审核结果
type ApprovalResult struct {
	Transaction *Transaction
	Account     *Account // 仅 approve 时返回入账后的账户
}

// ApprovalUseCase 待审核交易的处理
type ApprovalUseCase struct {
	repo    TransactionRepo
	conf    *LedgerConfig
	log     *log.Helper
	metrics *metrics.CreditMetrics
}

// NewApprovalUseCase 创建审核 UseCase
func NewApprovalUseCase(repo TransactionRepo, conf *LedgerConfig, logger log.Logger) *ApprovalUseCase {
	return &ApprovalUseCase{
		repo:    repo,
		conf:    conf,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// Approve pending -> completed，同一事务内入账
func (uc *ApprovalUseCase) Approve(ctx context.Context, transactionID, notes string) (*ApprovalResult, error) {
	result, err := uc.resolve(ctx, constants.ApprovalActionApprove, transactionID, TransactionCompleted, notes)
	if err != nil {
		return nil, err
	}
	uc.metrics.CreditsGranted.Add(float64(result.Transaction.Credits))
	uc.log.Infof("Transaction approved: transaction_id=%s, account_id=%s, credits=%d, current=%d",
		result.Transaction.ID, result.Transaction.AccountID, result.Transaction.Credits, result.Account.CurrentCredits)
	return result, nil
}

// Reject pending -> rejected，不变更余额
func (uc *ApprovalUseCase) Reject(ctx context.Context, transactionID, notes string) (*ApprovalResult, error) {
	result, err := uc.resolve(ctx, constants.ApprovalActionReject, transactionID, TransactionRejected, notes)
	if err != nil {
		return nil, err
	}
	uc.log.Infof("Transaction rejected: transaction_id=%s, account_id=%s", result.Transaction.ID, result.Transaction.AccountID)
	return result, nil
}

// Expire 超时未审核的交易自动拒绝
func (uc *ApprovalUseCase) Expire(ctx context.Context, transactionID string) (*ApprovalResult, error) {
	result, err := uc.resolve(ctx, constants.ApprovalActionExpire, transactionID, TransactionRejected, constants.ExpiredNote)
	if err != nil {
		return nil, err
	}
	uc.metrics.PendingExpired.Inc()
	uc.log.Infof("Transaction expired: transaction_id=%s, account_id=%s, created_at=%s",
		result.Transaction.ID, result.Transaction.AccountID, result.Transaction.CreatedAt)
	return result, nil
}

// ListPending 待审核交易（新到旧），只读
func (uc *ApprovalUseCase) ListPending(ctx context.Context) ([]*Transaction, error) {
	return uc.repo.ListPendingTransactions(ctx)
}

func (uc *ApprovalUseCase) resolve(ctx context.Context, action, transactionID string, to TransactionStatus, notes string) (*ApprovalResult, error) {
	if transactionID == "" {
		uc.observe(action, constants.ResultRejected)
		return nil, creditErrors.ErrTransactionNotFound
	}
	notes = truncateRunes(notes, maxNotesLength)

	t, err := uc.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		uc.log.Errorf("GetTransaction failed: transaction_id=%s, error=%v", transactionID, err)
		uc.observe(action, constants.ResultError)
		return nil, err
	}
	if t == nil {
		uc.observe(action, constants.ResultRejected)
		return nil, creditErrors.ErrTransactionNotFound
	}
	// 快速失败；真正的并发保护在数据层的条件更新上
	if err := t.Status.Transition(to); err != nil {
		uc.log.Warnf("Transaction not pending: transaction_id=%s, status=%s, action=%s", t.ID, t.Status, action)
		uc.observe(action, constants.ResultRejected)
		return nil, err
	}

	resolved, account, err := uc.repo.ResolveTransaction(ctx, transactionID, to, notes, uc.conf.now())
	if err != nil {
		if errors.Is(err, creditErrors.ErrInvalidState) || errors.Is(err, creditErrors.ErrTransactionNotFound) {
			uc.log.Warnf("Transaction resolved concurrently: transaction_id=%s, action=%s", transactionID, action)
			uc.observe(action, constants.ResultRejected)
			return nil, err
		}
		uc.log.Errorf("ResolveTransaction failed: transaction_id=%s, action=%s, error=%v", transactionID, action, err)
		uc.observe(action, constants.ResultError)
		return nil, err
	}
	uc.observe(action, constants.ResultSuccess)
	return &ApprovalResult{Transaction: resolved, Account: account}, nil
}

func (uc *ApprovalUseCase) observe(action, result string) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.ApprovalTotal.WithLabelValues(action, result).Inc()
}

// truncateRunes 按字符截断，不会切开多字节字符
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
