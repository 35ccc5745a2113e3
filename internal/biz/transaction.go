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
	"github.com/shopspring/decimal"
)

// TransactionStatus 交易状态，只有三个取值
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = constants.TransactionStatusPending
	TransactionCompleted TransactionStatus = constants.TransactionStatusCompleted
	TransactionRejected  TransactionStatus = constants.TransactionStatusRejected
)

// ParseTransactionStatus 将数据库中的字符串还原为状态
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	switch status := TransactionStatus(s); status {
	case TransactionPending, TransactionCompleted, TransactionRejected:
		return status, nil
	default:
		return "", creditErrors.ErrInvalidState
	}
}

// IsTerminal completed / rejected 为终态
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionCompleted || s == TransactionRejected
}

// Transition 唯一的状态迁移检查：pending -> completed | rejected
func (s TransactionStatus) Transition(to TransactionStatus) error {
	if s != TransactionPending {
		return creditErrors.ErrInvalidState
	}
	if to != TransactionCompleted && to != TransactionRejected {
		return creditErrors.ErrInvalidState
	}
	return nil
}

// PaymentMethod 支付方式
type PaymentMethod string

const (
	PaymentFree         PaymentMethod = constants.PaymentMethodFree
	PaymentCash         PaymentMethod = constants.PaymentMethodCash
	PaymentBkash        PaymentMethod = constants.PaymentMethodBkash
	PaymentNagad        PaymentMethod = constants.PaymentMethodNagad
	PaymentRocket       PaymentMethod = constants.PaymentMethodRocket
	PaymentBankTransfer PaymentMethod = constants.PaymentMethodBankTransfer
)

// 付款凭证列宽
const (
	maxPaymentNumberLength     = 64
	maxExternalReferenceLength = 128
)

// ParsePaymentMethod 校验支付方式
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case PaymentFree, PaymentCash, PaymentBkash, PaymentNagad, PaymentRocket, PaymentBankTransfer:
		return m, nil
	default:
		return "", creditErrors.ErrInvalidPaymentMethod
	}
}

// RequiresProof 非现金的付费方式必须提供付款凭证
func (m PaymentMethod) RequiresProof() bool {
	return m != PaymentFree && m != PaymentCash
}

// Transaction 积分购买交易领域对象
type Transaction struct {
	ID                string
	AccountID         string
	PackageReference  string
	Credits           int64
	Price             decimal.Decimal
	PaymentMethod     PaymentMethod
	PaymentNumber     string
	ExternalReference string
	Status            TransactionStatus
	Notes             string
	ClaimMonth        string // 仅免费套餐：领取所在月份 (YYYY-MM)
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsFree 免费套餐交易
func (t *Transaction) IsFree() bool {
	return t.PaymentMethod == PaymentFree
}

// TransactionRepo 交易数据层接口（定义在 biz 层）
type TransactionRepo interface {
	// CreatePendingTransaction 写入一条 pending 交易，不变更余额
	CreatePendingTransaction(ctx context.Context, t *Transaction) error
	// CreateFreeTransaction 在同一事务中写入 completed 交易并入账；
	// (account_id, claim_month) 唯一冲突时返回 ErrFreePackageAlreadyClaimed
	CreateFreeTransaction(ctx context.Context, t *Transaction) (*Account, error)
	// ResolveTransaction 仅当状态仍为 pending 时迁移到 to；to 为 completed 时同事务入账。
	// 不存在返回 ErrTransactionNotFound，非 pending 返回 ErrInvalidState。
	ResolveTransaction(ctx context.Context, id string, to TransactionStatus, notes string, at time.Time) (*Transaction, *Account, error)
	// GetTransaction 不存在时返回 nil, nil
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	ListPendingTransactions(ctx context.Context) ([]*Transaction, error)
	ListTransactions(ctx context.Context, accountID string) ([]*Transaction, error)
	// ListPendingBefore 创建时间早于 before 的 pending 交易（最旧优先）
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]*Transaction, error)
}

// PurchaseRequest 购买请求
type PurchaseRequest struct {
	AccountID         string
	PackageReference  string
	PaymentMethod     string
	PaymentNumber     string
	ExternalReference string
}

// PurchaseResult 购买结果
type PurchaseResult struct {
	Transaction   *Transaction
	AutoCompleted bool     // 免费套餐直接完成
	Account       *Account // 购买后的账户状态
}

// TransactionUseCase 交易业务逻辑
type TransactionUseCase struct {
	repo     TransactionRepo
	accounts *AccountUseCase
	catalog  PackageCatalog
	conf     *LedgerConfig
	log      *log.Helper
	metrics  *metrics.CreditMetrics
}

// NewTransactionUseCase 创建交易 UseCase
func NewTransactionUseCase(
	repo TransactionRepo,
	accounts *AccountUseCase,
	catalog PackageCatalog,
	conf *LedgerConfig,
	logger log.Logger,
) *TransactionUseCase {
	return &TransactionUseCase{
		repo:     repo,
		accounts: accounts,
		catalog:  catalog,
		conf:     conf,
		log:      log.NewHelper(logger),
		metrics:  metrics.GetMetrics(),
	}
}

// InitiatePurchase 发起购买
// 免费套餐：同一事务内写入 completed 交易并入账（每账户每月一次）
// 付费套餐：写入 pending 交易，等待审核
func (uc *TransactionUseCase) InitiatePurchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResult, error) {
	pkg, method, err := uc.validate(ctx, req)
	if err != nil {
		uc.observe(methodLabel(req.PaymentMethod), constants.ResultRejected)
		return nil, err
	}

	// 首次访问时创建账户（默认初始积分）
	if _, err := uc.accounts.GetOrCreate(ctx, req.AccountID); err != nil {
		uc.observe(string(method), constants.ResultError)
		return nil, err
	}

	now := uc.conf.now()
	t := &Transaction{
		ID:                uuid.New().String(),
		AccountID:         req.AccountID,
		PackageReference:  pkg.Reference,
		Credits:           pkg.Credits,
		Price:             pkg.Price,
		PaymentMethod:     method,
		PaymentNumber:     req.PaymentNumber,
		ExternalReference: req.ExternalReference,
		Status:            TransactionPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if pkg.IsFree() {
		return uc.claimFree(ctx, t, now)
	}

	if err := uc.repo.CreatePendingTransaction(ctx, t); err != nil {
		uc.log.Errorf("CreatePendingTransaction failed: account_id=%s, package=%s, error=%v", t.AccountID, t.PackageReference, err)
		uc.observe(string(method), constants.ResultError)
		return nil, err
	}
	uc.observe(string(method), constants.ResultSuccess)
	uc.log.Infof("Purchase pending: transaction_id=%s, account_id=%s, package=%s, credits=%d, method=%s",
		t.ID, t.AccountID, t.PackageReference, t.Credits, t.PaymentMethod)
	return &PurchaseResult{Transaction: t}, nil
}

func (uc *TransactionUseCase) claimFree(ctx context.Context, t *Transaction, now time.Time) (*PurchaseResult, error) {
	t.Status = TransactionCompleted
	t.ClaimMonth = uc.conf.MonthBucket(now)

	account, err := uc.repo.CreateFreeTransaction(ctx, t)
	if err != nil {
		if errors.Is(err, creditErrors.ErrFreePackageAlreadyClaimed) {
			uc.log.Warnf("Free package already claimed: account_id=%s, month=%s", t.AccountID, t.ClaimMonth)
			uc.metrics.FreeClaimTotal.WithLabelValues(constants.ResultClaimed).Inc()
			uc.observe(string(PaymentFree), constants.ResultRejected)
			return nil, err
		}
		uc.log.Errorf("CreateFreeTransaction failed: account_id=%s, error=%v", t.AccountID, err)
		uc.metrics.FreeClaimTotal.WithLabelValues(constants.ResultError).Inc()
		uc.observe(string(PaymentFree), constants.ResultError)
		return nil, err
	}

	uc.metrics.FreeClaimTotal.WithLabelValues(constants.ResultSuccess).Inc()
	uc.metrics.CreditsGranted.Add(float64(t.Credits))
	uc.observe(string(PaymentFree), constants.ResultSuccess)
	uc.log.Infof("Free package claimed: transaction_id=%s, account_id=%s, credits=%d, current=%d",
		t.ID, t.AccountID, t.Credits, account.CurrentCredits)
	return &PurchaseResult{Transaction: t, AutoCompleted: true, Account: account}, nil
}

// validate 无副作用的请求校验
func (uc *TransactionUseCase) validate(ctx context.Context, req *PurchaseRequest) (*Package, PaymentMethod, error) {
	if err := validateAccountID(req.AccountID); err != nil {
		return nil, "", err
	}
	if !fitsColumn(req.PaymentNumber, maxPaymentNumberLength) || !fitsColumn(req.ExternalReference, maxExternalReferenceLength) {
		return nil, "", creditErrors.ErrFieldTooLong
	}
	pkg, err := uc.catalog.GetPackage(ctx, req.PackageReference)
	if err != nil {
		return nil, "", err
	}

	if pkg.IsFree() {
		// 免费套餐只能以 free 方式领取（允许省略）
		if req.PaymentMethod != "" && req.PaymentMethod != string(PaymentFree) {
			return nil, "", creditErrors.ErrInvalidPaymentMethod
		}
		return pkg, PaymentFree, nil
	}

	method, err := ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, "", err
	}
	if method == PaymentFree {
		return nil, "", creditErrors.ErrInvalidPaymentMethod
	}
	if method.RequiresProof() && (req.PaymentNumber == "" || req.ExternalReference == "") {
		return nil, "", creditErrors.ErrMissingPaymentProof
	}
	return pkg, method, nil
}

// ListTransactions 账户的交易记录（新到旧）
func (uc *TransactionUseCase) ListTransactions(ctx context.Context, accountID string) ([]*Transaction, error) {
	if err := validateAccountID(accountID); err != nil {
		return nil, err
	}
	return uc.repo.ListTransactions(ctx, accountID)
}

func (uc *TransactionUseCase) observe(method, result string) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.PurchaseTotal.WithLabelValues(method, result).Inc()
}

// methodLabel 只有合法的支付方式才作为指标标签
func methodLabel(s string) string {
	if m, err := ParsePaymentMethod(s); err == nil {
		return string(m)
	}
	return "unknown"
}
