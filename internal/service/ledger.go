package service

import (
	"context"

	"credit-service/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// LedgerService 面向业务调用方的积分服务
type LedgerService struct {
	uc  *biz.LedgerUseCase
	log *log.Helper
}

// NewLedgerService 创建 LedgerService
func NewLedgerService(uc *biz.LedgerUseCase, logger log.Logger) *LedgerService {
	return &LedgerService{
		uc:  uc,
		log: log.NewHelper(logger),
	}
}

// ListPackages 套餐目录
func (s *LedgerService) ListPackages(ctx context.Context, _ *AccountRequest) (*ListPackagesReply, error) {
	packages, err := s.uc.ListPackages(ctx)
	if err != nil {
		return nil, err
	}
	reply := &ListPackagesReply{Packages: make([]*PackageReply, 0, len(packages))}
	for _, p := range packages {
		reply.Packages = append(reply.Packages, &PackageReply{
			Reference: p.Reference,
			Name:      p.Name,
			Credits:   p.Credits,
			Price:     p.Price.StringFixed(2),
			Free:      p.IsFree(),
		})
	}
	return reply, nil
}

// GetBalance 查询余额
func (s *LedgerService) GetBalance(ctx context.Context, req *AccountRequest) (*BalanceReply, error) {
	account, err := s.uc.GetBalance(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	return toBalanceReply(account), nil
}

// InitiatePurchase 发起购买
func (s *LedgerService) InitiatePurchase(ctx context.Context, req *PurchaseRequest) (*PurchaseReply, error) {
	result, err := s.uc.InitiatePurchase(ctx, &biz.PurchaseRequest{
		AccountID:         req.AccountID,
		PackageReference:  req.PackageReference,
		PaymentMethod:     req.PaymentMethod,
		PaymentNumber:     req.PaymentNumber,
		ExternalReference: req.ExternalReference,
	})
	if err != nil {
		return nil, err
	}
	return &PurchaseReply{
		Transaction:   toTransactionReply(result.Transaction),
		AutoCompleted: result.AutoCompleted,
		Balance:       toBalanceReply(result.Account),
	}, nil
}

// Consume 消费积分
func (s *LedgerService) Consume(ctx context.Context, req *ConsumeRequest) (*ConsumeReply, error) {
	result, err := s.uc.Consume(ctx, &biz.ConsumeRequest{
		AccountID:         req.AccountID,
		Feature:           req.Feature,
		Credits:           req.Credits,
		Description:       req.Description,
		DocumentReference: req.DocumentReference,
		RequestID:         req.RequestID,
	})
	if err != nil {
		return nil, err
	}
	return &ConsumeReply{
		Usage:          toUsageReply(result.Usage),
		CurrentCredits: result.Account.CurrentCredits,
		Replayed:       result.Replayed,
	}, nil
}

// ListTransactions 账户交易记录
func (s *LedgerService) ListTransactions(ctx context.Context, req *AccountRequest) (*ListTransactionsReply, error) {
	list, err := s.uc.ListTransactions(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	return &ListTransactionsReply{Transactions: toTransactionReplies(list)}, nil
}

// ListUsage 账户消费流水
func (s *LedgerService) ListUsage(ctx context.Context, req *AccountRequest) (*ListUsageReply, error) {
	list, err := s.uc.ListUsage(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	reply := &ListUsageReply{Usage: make([]*UsageReply, 0, len(list))}
	for _, u := range list {
		reply.Usage = append(reply.Usage, toUsageReply(u))
	}
	return reply, nil
}

// UsageSummary 当月按功能汇总
func (s *LedgerService) UsageSummary(ctx context.Context, req *AccountRequest) (*UsageSummaryReply, error) {
	summary, err := s.uc.UsageSummary(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	reply := &UsageSummaryReply{
		AccountID: req.AccountID,
		Features:  make([]*FeatureUsageReply, 0, len(summary)),
	}
	for _, f := range summary {
		reply.Features = append(reply.Features, &FeatureUsageReply{
			Feature: f.Feature,
			Count:   f.Count,
			Credits: f.Credits,
		})
	}
	return reply, nil
}
