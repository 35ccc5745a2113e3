package model

import (
	"time"

	"credit-service/internal/constants"

	"github.com/shopspring/decimal"
)

// 交易状态常量（引用 constants 包中的常量，保持一致性）
const (
	TransactionStatusPending   = constants.TransactionStatusPending   // 待审核
	TransactionStatusCompleted = constants.TransactionStatusCompleted // 已完成
	TransactionStatusRejected  = constants.TransactionStatusRejected  // 已拒绝
)

// CreditTransaction 积分购买交易表
type CreditTransaction struct {
	TransactionID     string          `gorm:"primaryKey;type:varchar(36)"`
	AccountID         string          `gorm:"type:varchar(64);not null;index:idx_account_created,priority:1;uniqueIndex:uk_account_claim_month,priority:1"`
	PackageReference  string          `gorm:"type:varchar(64);not null"`
	Credits           int64           `gorm:"not null"`
	Price             decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PaymentMethod     string          `gorm:"type:varchar(32);not null"`
	PaymentNumber     string          `gorm:"type:varchar(64)"`
	ExternalReference string          `gorm:"type:varchar(128)"`
	Status            string          `gorm:"type:varchar(16);not null;default:'pending';index:idx_status_created,priority:1"`
	Notes             string          `gorm:"type:varchar(500)"`
	ClaimMonth        *string         `gorm:"type:varchar(7);uniqueIndex:uk_account_claim_month,priority:2"` // 仅免费套餐，付费交易为 NULL
	CreatedAt         time.Time       `gorm:"autoCreateTime;index:idx_account_created,priority:2;index:idx_status_created,priority:2"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (CreditTransaction) TableName() string {
	return "credit_transaction"
}
