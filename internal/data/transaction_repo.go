package data

import (
	"context"
	"errors"
	"time"

	"credit-service/internal/biz"
	"credit-service/internal/data/model"
	creditErrors "credit-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// maxListSize 列表查询的最大返回条数
const maxListSize = 500

// transactionRepo 交易数据访问
type transactionRepo struct {
	data *Data
	log  *log.Helper
}

// NewTransactionRepo 创建交易 repo（返回 biz.TransactionRepo 接口）
func NewTransactionRepo(data *Data, logger log.Logger) biz.TransactionRepo {
	return &transactionRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreatePendingTransaction 写入待审核交易
func (r *transactionRepo) CreatePendingTransaction(ctx context.Context, t *biz.Transaction) error {
	if err := r.data.db.WithContext(ctx).Create(toModelTransaction(t)).Error; err != nil {
		r.log.Errorf("Create transaction failed: transaction_id=%s, account_id=%s, error=%v", t.ID, t.AccountID, err)
		return storeError(err)
	}
	return nil
}

// CreateFreeTransaction 写入已完成的免费交易并入账（同一事务）
// (account_id, claim_month) 唯一索引保证每月只能领取一次
func (r *transactionRepo) CreateFreeTransaction(ctx context.Context, t *biz.Transaction) (*biz.Account, error) {
	if t.ClaimMonth == "" || t.Status != biz.TransactionCompleted {
		return nil, creditErrors.ErrInvalidState
	}

	var account *biz.Account
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(toModelTransaction(t)).Error; err != nil {
			if isDuplicateKey(err) {
				return creditErrors.ErrFreePackageAlreadyClaimed
			}
			return storeError(err)
		}
		var err error
		account, err = creditAccount(tx, t.AccountID, t.Credits, t.UpdatedAt)
		return err
	})
	if err != nil {
		if !creditErrors.IsBusiness(err) {
			r.log.Errorf("CreateFreeTransaction failed: account_id=%s, month=%s, error=%v", t.AccountID, t.ClaimMonth, err)
		}
		return nil, storeError(err)
	}
	return account, nil
}

// ResolveTransaction 条件更新 status = 'pending' 的行；completed 时同事务入账
func (r *transactionRepo) ResolveTransaction(ctx context.Context, id string, to biz.TransactionStatus, notes string, at time.Time) (*biz.Transaction, *biz.Account, error) {
	if err := biz.TransactionPending.Transition(to); err != nil {
		return nil, nil, err
	}

	var (
		resolved *biz.Transaction
		account  *biz.Account
	)
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.CreditTransaction{}).
			Where("transaction_id = ? AND status = ?", id, model.TransactionStatusPending).
			Updates(map[string]interface{}{
				"status":     string(to),
				"notes":      notes,
				"updated_at": at,
			})
		if result.Error != nil {
			return storeError(result.Error)
		}

		var m model.CreditTransaction
		if err := tx.Where("transaction_id = ?", id).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return creditErrors.ErrTransactionNotFound
			}
			return storeError(err)
		}
		if result.RowsAffected == 0 {
			// 行存在但已不是 pending：重复审核或并发审核
			return creditErrors.ErrInvalidState
		}

		t, err := toBizTransaction(&m)
		if err != nil {
			return err
		}
		resolved = t

		if to == biz.TransactionCompleted {
			account, err = creditAccount(tx, m.AccountID, m.Credits, at)
			return err
		}
		return nil
	})
	if err != nil {
		if !creditErrors.IsBusiness(err) {
			r.log.Errorf("ResolveTransaction failed: transaction_id=%s, to=%s, error=%v", id, to, err)
		}
		return nil, nil, storeError(err)
	}
	return resolved, account, nil
}

// GetTransaction 按 ID 查询，不存在返回 nil, nil
func (r *transactionRepo) GetTransaction(ctx context.Context, id string) (*biz.Transaction, error) {
	var m model.CreditTransaction
	if err := r.data.db.WithContext(ctx).Where("transaction_id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeError(err)
	}
	return toBizTransaction(&m)
}

// ListPendingTransactions 待审核交易（新到旧）
func (r *transactionRepo) ListPendingTransactions(ctx context.Context) ([]*biz.Transaction, error) {
	var list []*model.CreditTransaction
	err := r.data.db.WithContext(ctx).
		Where("status = ?", model.TransactionStatusPending).
		Order("created_at DESC").
		Limit(maxListSize).
		Find(&list).Error
	if err != nil {
		return nil, storeError(err)
	}
	return toBizTransactions(list)
}

// ListTransactions 账户交易记录（新到旧）
func (r *transactionRepo) ListTransactions(ctx context.Context, accountID string) ([]*biz.Transaction, error) {
	var list []*model.CreditTransaction
	err := r.data.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(maxListSize).
		Find(&list).Error
	if err != nil {
		return nil, storeError(err)
	}
	return toBizTransactions(list)
}

// ListPendingBefore 创建时间早于 before 的待审核交易（旧到新）
func (r *transactionRepo) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]*biz.Transaction, error) {
	var list []*model.CreditTransaction
	err := r.data.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.TransactionStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, storeError(err)
	}
	return toBizTransactions(list)
}

func toModelTransaction(t *biz.Transaction) *model.CreditTransaction {
	m := &model.CreditTransaction{
		TransactionID:     t.ID,
		AccountID:         t.AccountID,
		PackageReference:  t.PackageReference,
		Credits:           t.Credits,
		Price:             t.Price,
		PaymentMethod:     string(t.PaymentMethod),
		PaymentNumber:     t.PaymentNumber,
		ExternalReference: t.ExternalReference,
		Status:            string(t.Status),
		Notes:             t.Notes,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
	if t.ClaimMonth != "" {
		month := t.ClaimMonth
		m.ClaimMonth = &month
	}
	return m
}

func toBizTransaction(m *model.CreditTransaction) (*biz.Transaction, error) {
	status, err := biz.ParseTransactionStatus(m.Status)
	if err != nil {
		return nil, storeError(errors.New("unknown transaction status " + m.Status))
	}
	t := &biz.Transaction{
		ID:                m.TransactionID,
		AccountID:         m.AccountID,
		PackageReference:  m.PackageReference,
		Credits:           m.Credits,
		Price:             m.Price,
		PaymentMethod:     biz.PaymentMethod(m.PaymentMethod),
		PaymentNumber:     m.PaymentNumber,
		ExternalReference: m.ExternalReference,
		Status:            status,
		Notes:             m.Notes,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.ClaimMonth != nil {
		t.ClaimMonth = *m.ClaimMonth
	}
	return t, nil
}

func toBizTransactions(list []*model.CreditTransaction) ([]*biz.Transaction, error) {
	result := make([]*biz.Transaction, 0, len(list))
	for _, m := range list {
		t, err := toBizTransaction(m)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}
