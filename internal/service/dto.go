package service

import (
	"time"

	"credit-service/internal/biz"
)

// AccountRequest 路径中带 account_id 的请求
type AccountRequest struct {
	AccountID string `json:"account_id"`
}

// BalanceReply 账户余额
type BalanceReply struct {
	AccountID      string    `json:"account_id"`
	CurrentCredits int64     `json:"current_credits"`
	BonusCredits   int64     `json:"bonus_credits"`
	UsedCredits    int64     `json:"used_credits"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PackageReply 套餐
type PackageReply struct {
	Reference string `json:"reference"`
	Name      string `json:"name"`
	Credits   int64  `json:"credits"`
	Price     string `json:"price"`
	Free      bool   `json:"free"`
}

// ListPackagesReply 套餐列表
type ListPackagesReply struct {
	Packages []*PackageReply `json:"packages"`
}

// PurchaseRequest 发起购买
type PurchaseRequest struct {
	AccountID         string `json:"account_id"`
	PackageReference  string `json:"package_reference"`
	PaymentMethod     string `json:"payment_method"`
	PaymentNumber     string `json:"payment_number,omitempty"`
	ExternalReference string `json:"external_reference,omitempty"`
}

// TransactionReply 交易
type TransactionReply struct {
	ID                string    `json:"id"`
	AccountID         string    `json:"account_id"`
	PackageReference  string    `json:"package_reference"`
	Credits           int64     `json:"credits"`
	Price             string    `json:"price"`
	PaymentMethod     string    `json:"payment_method"`
	PaymentNumber     string    `json:"payment_number,omitempty"`
	ExternalReference string    `json:"external_reference,omitempty"`
	Status            string    `json:"status"`
	Notes             string    `json:"notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// PurchaseReply 购买结果
type PurchaseReply struct {
	Transaction   *TransactionReply `json:"transaction"`
	AutoCompleted bool              `json:"auto_completed"`
	Balance       *BalanceReply     `json:"balance,omitempty"`
}

// ConsumeRequest 消费请求
type ConsumeRequest struct {
	AccountID         string `json:"account_id"`
	Feature           string `json:"feature"`
	Credits           int64  `json:"credits"`
	Description       string `json:"description"`
	DocumentReference string `json:"document_reference,omitempty"`
	RequestID         string `json:"request_id,omitempty"`
}

// UsageReply 消费流水
type UsageReply struct {
	ID                string    `json:"id"`
	AccountID         string    `json:"account_id"`
	Feature           string    `json:"feature"`
	Credits           int64     `json:"credits"`
	Description       string    `json:"description,omitempty"`
	DocumentReference string    `json:"document_reference,omitempty"`
	RequestID         string    `json:"request_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// ConsumeReply 消费结果
type ConsumeReply struct {
	Usage          *UsageReply `json:"usage"`
	CurrentCredits int64       `json:"current_credits"`
	Replayed       bool        `json:"replayed"`
}

// ListTransactionsReply 交易列表
type ListTransactionsReply struct {
	Transactions []*TransactionReply `json:"transactions"`
}

// ListUsageReply 消费流水列表
type ListUsageReply struct {
	Usage []*UsageReply `json:"usage"`
}

// FeatureUsageReply 按功能汇总
type FeatureUsageReply struct {
	Feature string `json:"feature"`
	Count   int64  `json:"count"`
	Credits int64  `json:"credits"`
}

// UsageSummaryReply 当月消费汇总
type UsageSummaryReply struct {
	AccountID string               `json:"account_id"`
	Features  []*FeatureUsageReply `json:"features"`
}

// ResolveRequest 审核请求
type ResolveRequest struct {
	TransactionID string `json:"transaction_id"`
	Notes         string `json:"notes,omitempty"`
}

// ResolveReply 审核结果
type ResolveReply struct {
	Transaction *TransactionReply `json:"transaction"`
	Balance     *BalanceReply     `json:"balance,omitempty"`
}

func toBalanceReply(a *biz.Account) *BalanceReply {
	if a == nil {
		return nil
	}
	return &BalanceReply{
		AccountID:      a.AccountID,
		CurrentCredits: a.CurrentCredits,
		BonusCredits:   a.BonusCredits,
		UsedCredits:    a.UsedCredits,
		UpdatedAt:      a.UpdatedAt,
	}
}

func toTransactionReply(t *biz.Transaction) *TransactionReply {
	return &TransactionReply{
		ID:                t.ID,
		AccountID:         t.AccountID,
		PackageReference:  t.PackageReference,
		Credits:           t.Credits,
		Price:             t.Price.StringFixed(2),
		PaymentMethod:     string(t.PaymentMethod),
		PaymentNumber:     t.PaymentNumber,
		ExternalReference: t.ExternalReference,
		Status:            string(t.Status),
		Notes:             t.Notes,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func toTransactionReplies(list []*biz.Transaction) []*TransactionReply {
	replies := make([]*TransactionReply, 0, len(list))
	for _, t := range list {
		replies = append(replies, toTransactionReply(t))
	}
	return replies
}

func toUsageReply(u *biz.UsageLog) *UsageReply {
	return &UsageReply{
		ID:                u.ID,
		AccountID:         u.AccountID,
		Feature:           u.Feature,
		Credits:           u.Credits,
		Description:       u.Description,
		DocumentReference: u.DocumentReference,
		RequestID:         u.RequestID,
		CreatedAt:         u.CreatedAt,
	}
}
