package service

import (
	"context"

	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	OperationLedgerListPackages     = "/credit.v1.Ledger/ListPackages"
	OperationLedgerGetBalance       = "/credit.v1.Ledger/GetBalance"
	OperationLedgerInitiatePurchase = "/credit.v1.Ledger/InitiatePurchase"
	OperationLedgerConsume          = "/credit.v1.Ledger/Consume"
	OperationLedgerListTransactions = "/credit.v1.Ledger/ListTransactions"
	OperationLedgerListUsage        = "/credit.v1.Ledger/ListUsage"
	OperationLedgerUsageSummary     = "/credit.v1.Ledger/UsageSummary"
	OperationAdminListPending       = "/credit.v1.Admin/ListPending"
	OperationAdminApprove           = "/credit.v1.Admin/Approve"
	OperationAdminReject            = "/credit.v1.Admin/Reject"
)

// RegisterLedgerHTTPServer 注册 HTTP 路由
func RegisterLedgerHTTPServer(s *http.Server, ledger *LedgerService, admin *AdminService) {
	r := s.Route("/")
	r.GET("/v1/packages", accountHandler(OperationLedgerListPackages, nil, ledger.ListPackages))
	r.GET("/v1/accounts/{account_id}/balance", accountHandler(OperationLedgerGetBalance, nil, ledger.GetBalance))
	r.POST("/v1/accounts/{account_id}/purchases", initiatePurchaseHandler(ledger))
	r.POST("/v1/accounts/{account_id}/usage", consumeHandler(ledger))
	r.GET("/v1/accounts/{account_id}/transactions", accountHandler(OperationLedgerListTransactions, nil, ledger.ListTransactions))
	r.GET("/v1/accounts/{account_id}/usage", accountHandler(OperationLedgerListUsage, nil, ledger.ListUsage))
	r.GET("/v1/accounts/{account_id}/usage/summary", accountHandler(OperationLedgerUsageSummary, nil, ledger.UsageSummary))

	r.GET("/v1/admin/transactions/pending", accountHandler(OperationAdminListPending, admin.Authorize(), admin.ListPending))
	r.POST("/v1/admin/transactions/{transaction_id}/approve", resolveHandler(OperationAdminApprove, admin.Authorize(), admin.Approve))
	r.POST("/v1/admin/transactions/{transaction_id}/reject", resolveHandler(OperationAdminReject, admin.Authorize(), admin.Reject))
}

// accountHandler 只读取路径参数的请求
func accountHandler[R any](operation string, m middleware.Middleware, call func(context.Context, *AccountRequest) (R, error)) http.HandlerFunc {
	return func(ctx http.Context) error {
		in := &AccountRequest{AccountID: ctx.Vars().Get("account_id")}
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(wrap(m, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, req.(*AccountRequest))
		}))
		out, err := h(ctx, in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}

func initiatePurchaseHandler(srv *LedgerService) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in PurchaseRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		in.AccountID = ctx.Vars().Get("account_id")
		http.SetOperation(ctx, OperationLedgerInitiatePurchase)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.InitiatePurchase(ctx, req.(*PurchaseRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}

func consumeHandler(srv *LedgerService) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in ConsumeRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		in.AccountID = ctx.Vars().Get("account_id")
		http.SetOperation(ctx, OperationLedgerConsume)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.Consume(ctx, req.(*ConsumeRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}

func resolveHandler(operation string, m middleware.Middleware, call func(context.Context, *ResolveRequest) (*ResolveReply, error)) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in ResolveRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		in.TransactionID = ctx.Vars().Get("transaction_id")
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(wrap(m, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, req.(*ResolveRequest))
		}))
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}

func wrap(m middleware.Middleware, h middleware.Handler) middleware.Handler {
	if m == nil {
		return h
	}
	return m(h)
}
