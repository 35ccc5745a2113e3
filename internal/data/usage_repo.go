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

// usageRepo 消费流水数据访问
type usageRepo struct {
	data *Data
	log  *log.Helper
}

// NewUsageRepo 创建消费 repo（返回 biz.UsageRepo 接口）
func NewUsageRepo(data *Data, logger log.Logger) biz.UsageRepo {
	return &usageRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// ConsumeCredits 写入流水 + 条件扣减，同一事务
// 先写流水：request_id 重复时直接冲突返回，不再检查余额
func (r *usageRepo) ConsumeCredits(ctx context.Context, usage *biz.UsageLog) (*biz.Account, error) {
	var account *biz.Account
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(toModelUsage(usage)).Error; err != nil {
			if isDuplicateKey(err) {
				return creditErrors.ErrDuplicateUsage
			}
			return storeError(err)
		}
		var err error
		account, err = debitAccount(tx, usage.AccountID, usage.Credits, usage.CreatedAt)
		return err
	})
	if err != nil {
		if !creditErrors.IsBusiness(err) {
			r.log.Errorf("ConsumeCredits failed: account_id=%s, feature=%s, error=%v", usage.AccountID, usage.Feature, err)
		}
		return nil, storeError(err)
	}
	return account, nil
}

// GetUsageByRequestID 按幂等键查询，不存在返回 nil, nil
func (r *usageRepo) GetUsageByRequestID(ctx context.Context, accountID, requestID string) (*biz.UsageLog, error) {
	var m model.UsageLog
	err := r.data.db.WithContext(ctx).
		Where("account_id = ? AND request_id = ?", accountID, requestID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeError(err)
	}
	return toBizUsage(&m), nil
}

// ListUsageLogs 账户消费流水（新到旧）
func (r *usageRepo) ListUsageLogs(ctx context.Context, accountID string) ([]*biz.UsageLog, error) {
	var list []*model.UsageLog
	err := r.data.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(maxListSize).
		Find(&list).Error
	if err != nil {
		return nil, storeError(err)
	}
	result := make([]*biz.UsageLog, 0, len(list))
	for _, m := range list {
		result = append(result, toBizUsage(m))
	}
	return result, nil
}

// SummarizeUsage since 之后按功能汇总
func (r *usageRepo) SummarizeUsage(ctx context.Context, accountID string, since time.Time) ([]*biz.FeatureUsage, error) {
	var rows []struct {
		Feature string
		Count   int64
		Credits int64
	}
	err := r.data.db.WithContext(ctx).
		Model(&model.UsageLog{}).
		Select("feature, COUNT(*) AS count, COALESCE(SUM(credits), 0) AS credits").
		Where("account_id = ? AND created_at >= ?", accountID, since).
		Group("feature").
		Order("feature").
		Scan(&rows).Error
	if err != nil {
		return nil, storeError(err)
	}
	result := make([]*biz.FeatureUsage, 0, len(rows))
	for _, row := range rows {
		result = append(result, &biz.FeatureUsage{
			Feature: row.Feature,
			Count:   row.Count,
			Credits: row.Credits,
		})
	}
	return result, nil
}

// ListUsageDrift used_credits 与流水合计不一致的账户
func (r *usageRepo) ListUsageDrift(ctx context.Context, limit int) ([]*biz.UsageDrift, error) {
	var rows []struct {
		AccountID     string
		UsedCredits   int64
		LoggedCredits int64
	}
	err := r.data.db.WithContext(ctx).Raw(`
		SELECT a.account_id, a.used_credits, COALESCE(u.logged_credits, 0) AS logged_credits
		FROM credit_account a
		LEFT JOIN (
			SELECT account_id, SUM(credits) AS logged_credits
			FROM credit_usage_log
			GROUP BY account_id
		) u ON u.account_id = a.account_id
		WHERE a.used_credits <> COALESCE(u.logged_credits, 0)
		ORDER BY a.account_id
		LIMIT ?`, limit).Scan(&rows).Error
	if err != nil {
		return nil, storeError(err)
	}
	result := make([]*biz.UsageDrift, 0, len(rows))
	for _, row := range rows {
		result = append(result, &biz.UsageDrift{
			AccountID:     row.AccountID,
			UsedCredits:   row.UsedCredits,
			LoggedCredits: row.LoggedCredits,
		})
	}
	return result, nil
}

func toModelUsage(u *biz.UsageLog) *model.UsageLog {
	m := &model.UsageLog{
		UsageID:           u.ID,
		AccountID:         u.AccountID,
		Feature:           u.Feature,
		Credits:           u.Credits,
		Description:       u.Description,
		DocumentReference: u.DocumentReference,
		CreatedAt:         u.CreatedAt,
	}
	if u.RequestID != "" {
		requestID := u.RequestID
		m.RequestID = &requestID
	}
	return m
}

func toBizUsage(m *model.UsageLog) *biz.UsageLog {
	u := &biz.UsageLog{
		ID:                m.UsageID,
		AccountID:         m.AccountID,
		Feature:           m.Feature,
		Credits:           m.Credits,
		Description:       m.Description,
		DocumentReference: m.DocumentReference,
		CreatedAt:         m.CreatedAt,
	}
	if m.RequestID != nil {
		u.RequestID = *m.RequestID
	}
	return u
}
