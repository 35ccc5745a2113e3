package data

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"credit-service/internal/biz"
	"credit-service/internal/conf"
	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

type testRepos struct {
	accounts     biz.AccountRepo
	transactions biz.TransactionRepo
	usage        biz.UsageRepo
	data         *Data
}

// setupTestRepos 单连接的内存 sqlite，所有请求在连接池上串行
func setupTestRepos(t *testing.T) *testRepos {
	t.Helper()

	bc := &conf.Bootstrap{Data: &conf.Data{Database: &conf.Data_Database{
		Driver:       "sqlite",
		Source:       ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		AutoMigrate:  true,
	}}}
	logger := log.NewStdLogger(io.Discard)
	db, closeDB, err := NewDB(bc, logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(closeDB)
	data, cleanup, err := NewData(logger, db, nil)
	if err != nil {
		t.Fatalf("new data: %v", err)
	}
	t.Cleanup(cleanup)

	return &testRepos{
		accounts:     NewAccountRepo(data, logger),
		transactions: NewTransactionRepo(data, logger),
		usage:        NewUsageRepo(data, logger),
		data:         data,
	}
}

func newPendingTransaction(accountID string, createdAt time.Time) *biz.Transaction {
	return &biz.Transaction{
		ID:               uuid.New().String(),
		AccountID:        accountID,
		PackageReference: "pkgA",
		Credits:          100,
		Price:            decimal.RequireFromString("500"),
		PaymentMethod:    biz.PaymentCash,
		Status:           biz.TransactionPending,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}

func newFreeTransaction(accountID, month string) *biz.Transaction {
	return &biz.Transaction{
		ID:               uuid.New().String(),
		AccountID:        accountID,
		PackageReference: "free",
		Credits:          50,
		Price:            decimal.Zero,
		PaymentMethod:    biz.PaymentFree,
		Status:           biz.TransactionCompleted,
		ClaimMonth:       month,
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}
}

func newUsage(accountID string, credits int64, requestID string) *biz.UsageLog {
	return &biz.UsageLog{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Feature:   "doc-gen",
		Credits:   credits,
		RequestID: requestID,
		CreatedAt: testNow,
	}
}

func TestGetOrCreateAccountIsIdempotent(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.accounts.GetOrCreateAccount(ctx, "acct-1", 500); err != nil {
				t.Errorf("get or create: %v", err)
			}
		}()
	}
	wg.Wait()

	// 已存在时忽略新的初始值
	account, err := r.accounts.GetOrCreateAccount(ctx, "acct-1", 999)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if account.CurrentCredits != 500 || account.Version != 1 {
		t.Fatalf("unexpected account: %+v", account)
	}
}

func TestConsumeCreditsDebitsAtomically(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()
	if _, err := r.accounts.GetOrCreateAccount(ctx, "acct-1", 500); err != nil {
		t.Fatalf("get or create: %v", err)
	}

	account, err := r.usage.ConsumeCredits(ctx, newUsage("acct-1", 50, ""))
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if account.CurrentCredits != 450 || account.UsedCredits != 50 || account.Version != 2 {
		t.Fatalf("unexpected account: %+v", account)
	}

	_, err = r.usage.ConsumeCredits(ctx, newUsage("acct-1", 451, ""))
	if !errors.Is(err, creditErrors.ErrInsufficientCredits) {
		t.Fatalf("expected insufficient credits, got %v", err)
	}
	logs, err := r.usage.ListUsageLogs(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list usage: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("failed consume must roll back its usage row, got %d rows", len(logs))
	}

	_, err = r.usage.ConsumeCredits(ctx, newUsage("nobody", 1, ""))
	if !errors.Is(err, creditErrors.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func TestConcurrentConsumeCreditsNeverOverdraws(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()
	if _, err := r.accounts.GetOrCreateAccount(ctx, "acct-1", 10); err != nil {
		t.Fatalf("get or create: %v", err)
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.usage.ConsumeCredits(ctx, newUsage("acct-1", 8, ""))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, creditErrors.ErrInsufficientCredits):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || insufficient != 1 {
		t.Fatalf("expected one success and one insufficient, got %d/%d", succeeded, insufficient)
	}
	account, err := r.accounts.GetOrCreateAccount(ctx, "acct-1", 10)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.CurrentCredits != 2 || account.UsedCredits != 8 {
		t.Fatalf("unexpected account: %+v", account)
	}
}

func TestConsumeCreditsDuplicateRequestID(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()
	if _, err := r.accounts.GetOrCreateAccount(ctx, "acct-1", 500); err != nil {
		t.Fatalf("get or create: %v", err)
	}

	first := newUsage("acct-1", 20, "req-1")
	if _, err := r.usage.ConsumeCredits(ctx, first); err != nil {
		t.Fatalf("consume: %v", err)
	}
	_, err := r.usage.ConsumeCredits(ctx, newUsage("acct-1", 20, "req-1"))
	if !errors.Is(err, creditErrors.ErrDuplicateUsage) {
		t.Fatalf("expected duplicate usage, got %v", err)
	}

	existing, err := r.usage.GetUsageByRequestID(ctx, "acct-1", "req-1")
	if err != nil {
		t.Fatalf("get by request id: %v", err)
	}
	if existing == nil || existing.ID != first.ID {
		t.Fatalf("expected original usage %s, got %+v", first.ID, existing)
	}

	// 不带幂等键的请求互不冲突
	for i := 0; i < 2; i++ {
		if _, err := r.usage.ConsumeCredits(ctx, newUsage("acct-1", 1, "")); err != nil {
			t.Fatalf("consume without request id: %v", err)
		}
	}
	account, _ := r.accounts.GetOrCreateAccount(ctx, "acct-1", 500)
	if account.UsedCredits != 22 {
		t.Fatalf("expected used 22, got %d", account.UsedCredits)
	}
}

func TestCreateFreeTransactionOncePerMonth(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()
	if _, err := r.accounts.GetOrCreateAccount(ctx, "acct-1", 500); err != nil {
		t.Fatalf("get or create: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		claimed   int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.transactions.CreateFreeTransaction(ctx, newFreeTransaction("acct-1", "2025-03"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				completed++
			case errors.Is(err, creditErrors.ErrFreePackageAlreadyClaimed):
				claimed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if completed != 1 || claimed != 1 {
		t.Fatalf("expected one completed and one claimed, got %d/%d", completed, claimed)
	}

	account, err := r.transactions.CreateFreeTransaction(ctx, newFreeTransaction("acct-1", "2025-04"))
	if err != nil {
		t.Fatalf("next month claim: %v", err)
	}
	if account.CurrentCredits != 600 {
		t.Fatalf("expected 600 credits, got %d", account.CurrentCredits)
	}

	list, err := r.transactions.ListTransactions(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(list) != 2 || list[0].ClaimMonth == "" || !list[0].Price.IsZero() {
		t.Fatalf("unexpected transactions: %+v", list)
	}
}

func TestPaidTransactionsDoNotCollideOnClaimMonth(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := r.transactions.CreatePendingTransaction(ctx, newPendingTransaction("acct-1", testNow.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("create pending %d: %v", i, err)
		}
	}
	pending, err := r.transactions.ListPendingTransactions(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 3 || !pending[0].CreatedAt.After(pending[2].CreatedAt) {
		t.Fatalf("expected three pending, newest first: %+v", pending)
	}
	if pending[0].Price.String() != "500" {
		t.Fatalf("unexpected price %s", pending[0].Price)
	}
}

func TestResolveTransaction(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()
	if _, err := r.accounts.GetOrCreateAccount(ctx, "acct-1", 500); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	approveMe := newPendingTransaction("acct-1", testNow)
	rejectMe := newPendingTransaction("acct-1", testNow.Add(time.Minute))
	for _, tx := range []*biz.Transaction{approveMe, rejectMe} {
		if err := r.transactions.CreatePendingTransaction(ctx, tx); err != nil {
			t.Fatalf("create pending: %v", err)
		}
	}

	resolved, account, err := r.transactions.ResolveTransaction(ctx, approveMe.ID, biz.TransactionCompleted, "ok", testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if resolved.Status != biz.TransactionCompleted || resolved.Notes != "ok" || account.CurrentCredits != 600 {
		t.Fatalf("unexpected approve result: %+v %+v", resolved, account)
	}

	_, _, err = r.transactions.ResolveTransaction(ctx, approveMe.ID, biz.TransactionCompleted, "", testNow)
	if !errors.Is(err, creditErrors.ErrInvalidState) {
		t.Fatalf("expected invalid state on second approve, got %v", err)
	}

	resolved, account, err = r.transactions.ResolveTransaction(ctx, rejectMe.ID, biz.TransactionRejected, "no proof", testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if resolved.Status != biz.TransactionRejected || account != nil {
		t.Fatalf("unexpected reject result: %+v %+v", resolved, account)
	}

	_, _, err = r.transactions.ResolveTransaction(ctx, "missing", biz.TransactionRejected, "", testNow)
	if !errors.Is(err, creditErrors.ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, _, err = r.transactions.ResolveTransaction(ctx, rejectMe.ID, biz.TransactionPending, "", testNow)
	if !errors.Is(err, creditErrors.ErrInvalidState) {
		t.Fatalf("expected invalid state for pending target, got %v", err)
	}

	final, _ := r.accounts.GetOrCreateAccount(ctx, "acct-1", 500)
	if final.CurrentCredits != 600 {
		t.Fatalf("expected exactly one credit, got %d", final.CurrentCredits)
	}
}

func TestConcurrentResolveCreditsOnce(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()
	if _, err := r.accounts.GetOrCreateAccount(ctx, "acct-1", 0); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	tx := newPendingTransaction("acct-1", testNow)
	if err := r.transactions.CreatePendingTransaction(ctx, tx); err != nil {
		t.Fatalf("create pending: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = r.transactions.ResolveTransaction(ctx, tx.ID, biz.TransactionCompleted, "", testNow)
		}()
	}
	wg.Wait()

	account, _ := r.accounts.GetOrCreateAccount(ctx, "acct-1", 0)
	if account.CurrentCredits != 100 {
		t.Fatalf("expected a single credit of 100, got %d", account.CurrentCredits)
	}
}

func TestListPendingBefore(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()

	old := newPendingTransaction("acct-1", testNow.Add(-48*time.Hour))
	older := newPendingTransaction("acct-2", testNow.Add(-72*time.Hour))
	fresh := newPendingTransaction("acct-1", testNow)
	for _, tx := range []*biz.Transaction{old, older, fresh} {
		if err := r.transactions.CreatePendingTransaction(ctx, tx); err != nil {
			t.Fatalf("create pending: %v", err)
		}
	}

	list, err := r.transactions.ListPendingBefore(ctx, testNow.Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("list pending before: %v", err)
	}
	if len(list) != 2 || list[0].ID != older.ID || list[1].ID != old.ID {
		t.Fatalf("expected oldest first, got %+v", list)
	}

	got, err := r.transactions.GetTransaction(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for missing transaction, got %+v, %v", got, err)
	}
}

func TestSummarizeUsageAndDrift(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()
	if _, err := r.accounts.GetOrCreateAccount(ctx, "acct-1", 500); err != nil {
		t.Fatalf("get or create: %v", err)
	}

	lastMonth := newUsage("acct-1", 40, "")
	lastMonth.CreatedAt = testNow.AddDate(0, -1, 0)
	idCard := newUsage("acct-1", 7, "")
	idCard.Feature = "id-card"
	for _, u := range []*biz.UsageLog{lastMonth, newUsage("acct-1", 10, ""), newUsage("acct-1", 5, ""), idCard} {
		if _, err := r.usage.ConsumeCredits(ctx, u); err != nil {
			t.Fatalf("consume: %v", err)
		}
	}

	summary, err := r.usage.SummarizeUsage(ctx, "acct-1", time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(summary) != 2 || summary[0].Feature != "doc-gen" || summary[0].Count != 2 || summary[0].Credits != 15 || summary[1].Credits != 7 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	drifts, err := r.usage.ListUsageDrift(ctx, 10)
	if err != nil {
		t.Fatalf("list drift: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("expected no drift, got %+v", drifts)
	}

	if err := r.data.db.Exec("UPDATE credit_account SET used_credits = used_credits + 3 WHERE account_id = ?", "acct-1").Error; err != nil {
		t.Fatalf("inject drift: %v", err)
	}
	drifts, err = r.usage.ListUsageDrift(ctx, 10)
	if err != nil {
		t.Fatalf("list drift: %v", err)
	}
	if len(drifts) != 1 || drifts[0].UsedCredits != 65 || drifts[0].LoggedCredits != 62 {
		t.Fatalf("unexpected drift: %+v", drifts)
	}
}

func TestStoreErrorMapping(t *testing.T) {
	if err := storeError(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := storeError(creditErrors.ErrInsufficientCredits); !errors.Is(err, creditErrors.ErrInsufficientCredits) {
		t.Fatalf("business errors must pass through, got %v", err)
	}
	if err := storeError(errors.New("driver: bad connection")); !errors.Is(err, creditErrors.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if !isDuplicateKey(errors.New("Error 1062 (23000): Duplicate entry 'a-2025-03' for key 'uk_account_claim_month'")) {
		t.Fatalf("mysql duplicate entry not detected")
	}
}

func TestRedisDisabledComponents(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()
	logger := log.NewStdLogger(io.Discard)

	cache := NewBalanceCache(r.data, &conf.Bootstrap{}, logger)
	cache.Set(ctx, &biz.Account{AccountID: "acct-1", CurrentCredits: 1, Version: 1})
	if _, ok := cache.Get(ctx, "acct-1"); ok {
		t.Fatalf("cache without redis must always miss")
	}
	cache.Delete(ctx, "acct-1")

	locker := NewJobLocker(NewRedsync(nil), &conf.Bootstrap{}, logger)
	ran := false
	ok, err := locker.RunExclusive(ctx, "job", func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ok || !ran {
		t.Fatalf("locker without redis must run the job, got ok=%v ran=%v err=%v", ok, ran, err)
	}

	publisher, cleanup, err := NewEventPublisher(&conf.Bootstrap{}, logger)
	if err != nil {
		t.Fatalf("new event publisher: %v", err)
	}
	defer cleanup()
	if err := publisher.Publish(ctx, &biz.LedgerEvent{Type: "usage.consumed", AccountID: "acct-1"}); err != nil {
		t.Fatalf("disabled publisher must not fail: %v", err)
	}
}

func TestNewDBRejectsUnknownDriver(t *testing.T) {
	logger := log.NewStdLogger(io.Discard)
	_, _, err := NewDB(&conf.Bootstrap{Data: &conf.Data{Database: &conf.Data_Database{Driver: "oracle"}}}, logger)
	if err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if _, _, err := NewDB(&conf.Bootstrap{}, logger); err == nil {
		t.Fatalf("expected error for missing database config")
	}
}

func TestNewDBCleanupClosesPool(t *testing.T) {
	logger := log.NewStdLogger(io.Discard)
	db, cleanup, err := NewDB(&conf.Bootstrap{Data: &conf.Data{Database: &conf.Data_Database{
		Driver: "sqlite",
		Source: ":memory:",
	}}}, logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	if err := sqlDB.Ping(); err != nil {
		t.Fatalf("ping before cleanup: %v", err)
	}

	// Redis 初始化失败时 wireApp 只会调用这个 cleanup
	cleanup()
	if err := sqlDB.Ping(); err == nil {
		t.Fatalf("database must be closed after cleanup")
	}
}

func TestJobLockOutlivesJobTimeout(t *testing.T) {
	logger := log.NewStdLogger(io.Discard)
	cases := []struct {
		name   string
		cron   *conf.Cron
		expect time.Duration
	}{
		{"default", nil, defaultLockExpiry},
		{"too short", &conf.Cron{LockExpiry: &conf.Duration{Duration: time.Minute}}, defaultLockExpiry},
		{"longer", &conf.Cron{LockExpiry: &conf.Duration{Duration: time.Hour}}, time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := NewJobLocker(nil, &conf.Bootstrap{Cron: tc.cron}, logger).(*jobLocker)
			if l.expiry != tc.expect {
				t.Fatalf("expiry = %v, want %v", l.expiry, tc.expect)
			}
			if l.expiry <= constants.CronJobTimeout {
				t.Fatalf("lock expiry %v must exceed job timeout %v", l.expiry, constants.CronJobTimeout)
			}
		})
	}
}
