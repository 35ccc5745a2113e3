package model

import (
	"time"
)

// UsageLog 积分消费流水表（只增不改）
type UsageLog struct {
	UsageID           string    `gorm:"primaryKey;type:varchar(36)"`
	AccountID         string    `gorm:"type:varchar(64);not null;index:idx_usage_account_created,priority:1;uniqueIndex:uk_account_request,priority:1"`
	Feature           string    `gorm:"type:varchar(64);not null"`
	Credits           int64     `gorm:"not null"`
	Description       string    `gorm:"type:varchar(255)"`
	DocumentReference string    `gorm:"type:varchar(128)"`
	RequestID         *string   `gorm:"type:varchar(64);uniqueIndex:uk_account_request,priority:2"` // 调用方幂等键，可为 NULL
	CreatedAt         time.Time `gorm:"autoCreateTime;index:idx_usage_account_created,priority:2"`
}

// TableName 指定表名
func (UsageLog) TableName() string {
	return "credit_usage_log"
}
