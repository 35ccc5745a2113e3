package biz

import (
	"context"
	"time"
)

// LedgerEvent 账本变更事件（提交成功后发布）
type LedgerEvent struct {
	Type           string    `json:"type"`
	AccountID      string    `json:"account_id"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	UsageID        string    `json:"usage_id,omitempty"`
	Feature        string    `json:"feature,omitempty"`
	Credits        int64     `json:"credits"`
	CurrentCredits int64     `json:"current_credits"`
	Status         string    `json:"status,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// EventPublisher 事件发布（尽力而为，失败不影响已提交的变更）
type EventPublisher interface {
	Publish(ctx context.Context, event *LedgerEvent) error
}

// BalanceCache 余额读缓存
//
// Set 按 Version 做写保护：缓存中已有更新版本时忽略旧数据。
type BalanceCache interface {
	Get(ctx context.Context, accountID string) (*Account, bool)
	Set(ctx context.Context, account *Account)
	Delete(ctx context.Context, accountID string)
}
