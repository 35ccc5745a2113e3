package service

import (
	"context"
	"crypto/subtle"

	"credit-service/internal/biz"
	"credit-service/internal/conf"
	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
)

// AdminService 面向管理员的审核服务
type AdminService struct {
	uc    *biz.LedgerUseCase
	token string
	log   *log.Helper
}

// NewAdminService 创建 AdminService
func NewAdminService(uc *biz.LedgerUseCase, c *conf.Bootstrap, logger log.Logger) *AdminService {
	s := &AdminService{
		uc:  uc,
		log: log.NewHelper(logger),
	}
	if c.Admin != nil {
		s.token = c.Admin.Token
	}
	if s.token == "" {
		s.log.Warn("admin token is not configured, admin endpoints are disabled")
	}
	return s
}

// ListPending 待审核交易（新到旧）
func (s *AdminService) ListPending(ctx context.Context, _ *AccountRequest) (*ListTransactionsReply, error) {
	list, err := s.uc.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	return &ListTransactionsReply{Transactions: toTransactionReplies(list)}, nil
}

// Approve 审核通过
func (s *AdminService) Approve(ctx context.Context, req *ResolveRequest) (*ResolveReply, error) {
	result, err := s.uc.Approve(ctx, req.TransactionID, req.Notes)
	if err != nil {
		return nil, err
	}
	return &ResolveReply{
		Transaction: toTransactionReply(result.Transaction),
		Balance:     toBalanceReply(result.Account),
	}, nil
}

// Reject 审核拒绝
func (s *AdminService) Reject(ctx context.Context, req *ResolveRequest) (*ResolveReply, error) {
	result, err := s.uc.Reject(ctx, req.TransactionID, req.Notes)
	if err != nil {
		return nil, err
	}
	return &ResolveReply{Transaction: toTransactionReply(result.Transaction)}, nil
}

// Authorize 校验管理令牌；未配置令牌时拒绝所有管理请求
func (s *AdminService) Authorize() middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			tr, ok := transport.FromServerContext(ctx)
			if !ok || s.token == "" {
				return nil, creditErrors.ErrAdminForbidden
			}
			token := tr.RequestHeader().Get(constants.HeaderAdminToken)
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
				s.log.Warnf("Admin request rejected: operation=%s", tr.Operation())
				return nil, creditErrors.ErrAdminForbidden
			}
			return handler(ctx, req)
		}
	}
}
