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
	"gorm.io/gorm/clause"
)

// accountRepo 账户数据访问
type accountRepo struct {
	data *Data
	log  *log.Helper
}

// NewAccountRepo 创建账户 repo（返回 biz.AccountRepo 接口）
func NewAccountRepo(data *Data, logger log.Logger) biz.AccountRepo {
	return &accountRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetOrCreateAccount 插入（冲突忽略）后再读取，并发首次访问只会有一行生效
func (r *accountRepo) GetOrCreateAccount(ctx context.Context, accountID string, initialCredits int64) (*biz.Account, error) {
	m := model.CreditAccount{
		AccountID:      accountID,
		CurrentCredits: initialCredits,
		Version:        1,
	}
	if err := r.data.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
		r.log.Errorf("Create account failed: account_id=%s, error=%v", accountID, err)
		return nil, storeError(err)
	}

	account, err := loadAccount(r.data.db.WithContext(ctx), accountID)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// loadAccount 读取账户，不存在返回 ErrAccountNotFound
func loadAccount(db *gorm.DB, accountID string) (*biz.Account, error) {
	var m model.CreditAccount
	if err := db.Where("account_id = ?", accountID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, creditErrors.ErrAccountNotFound
		}
		return nil, storeError(err)
	}
	return toBizAccount(&m), nil
}

// creditAccount 事务内入账：current_credits += amount
func creditAccount(tx *gorm.DB, accountID string, amount int64, at time.Time) (*biz.Account, error) {
	if amount <= 0 {
		return nil, creditErrors.ErrInvalidAmount
	}
	result := tx.Model(&model.CreditAccount{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"current_credits": gorm.Expr("current_credits + ?", amount),
			"version":         gorm.Expr("version + 1"),
			"updated_at":      at,
		})
	if result.Error != nil {
		return nil, storeError(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, creditErrors.ErrAccountNotFound
	}
	return loadAccount(tx, accountID)
}

// debitAccount 事务内扣减：余额检查和扣减在同一条 UPDATE 中完成
func debitAccount(tx *gorm.DB, accountID string, amount int64, at time.Time) (*biz.Account, error) {
	if amount <= 0 {
		return nil, creditErrors.ErrInvalidAmount
	}
	result := tx.Model(&model.CreditAccount{}).
		Where("account_id = ? AND current_credits >= ?", accountID, amount).
		Updates(map[string]interface{}{
			"current_credits": gorm.Expr("current_credits - ?", amount),
			"used_credits":    gorm.Expr("used_credits + ?", amount),
			"version":         gorm.Expr("version + 1"),
			"updated_at":      at,
		})
	if result.Error != nil {
		return nil, storeError(result.Error)
	}
	if result.RowsAffected == 0 {
		// 区分账户不存在和余额不足
		if _, err := loadAccount(tx, accountID); err != nil {
			return nil, err
		}
		return nil, creditErrors.ErrInsufficientCredits
	}
	return loadAccount(tx, accountID)
}

func toBizAccount(m *model.CreditAccount) *biz.Account {
	return &biz.Account{
		AccountID:      m.AccountID,
		CurrentCredits: m.CurrentCredits,
		BonusCredits:   m.BonusCredits,
		UsedCredits:    m.UsedCredits,
		Version:        m.Version,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
