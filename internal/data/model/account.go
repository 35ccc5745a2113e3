package model

import (
	"time"
)

// CreditAccount 积分账户表
type CreditAccount struct {
	AccountID      string    `gorm:"primaryKey;type:varchar(64)"`
	CurrentCredits int64     `gorm:"not null;default:0"` // 可用积分，扣减使用条件更新保证不为负
	BonusCredits   int64     `gorm:"not null;default:0"`
	UsedCredits    int64     `gorm:"not null;default:0"`
	Version        int64     `gorm:"not null;default:1"` // 每次变更 +1，用于缓存写保护
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (CreditAccount) TableName() string {
	return "credit_account"
}
