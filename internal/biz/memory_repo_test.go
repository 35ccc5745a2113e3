package biz

import (
	"context"
	"sort"
	"sync"
	"time"

	creditErrors "credit-service/internal/errors"
)

// memoryRepo 内存实现的 AccountRepo / TransactionRepo / UsageRepo，
// 用一把互斥锁模拟存储层的原子条件更新
type memoryRepo struct {
	mu           sync.Mutex
	accounts     map[string]*Account
	transactions map[string]*Transaction
	txOrder      []string
	usage        []*UsageLog
	claims       map[string]struct{}
	failWith     error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts:     make(map[string]*Account),
		transactions: make(map[string]*Transaction),
		claims:       make(map[string]struct{}),
	}
}

func (r *memoryRepo) GetOrCreateAccount(_ context.Context, accountID string, initialCredits int64) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	a, ok := r.accounts[accountID]
	if !ok {
		a = &Account{AccountID: accountID, CurrentCredits: initialCredits, Version: 1, CreatedAt: time.Now(), UpdatedAt: time.Now()}
		r.accounts[accountID] = a
	}
	copied := *a
	return &copied, nil
}

func (r *memoryRepo) CreatePendingTransaction(_ context.Context, t *Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.insert(t)
	return nil
}

func (r *memoryRepo) CreateFreeTransaction(_ context.Context, t *Transaction) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	key := t.AccountID + "|" + t.ClaimMonth
	if _, ok := r.claims[key]; ok {
		return nil, creditErrors.ErrFreePackageAlreadyClaimed
	}
	a, ok := r.accounts[t.AccountID]
	if !ok {
		return nil, creditErrors.ErrAccountNotFound
	}
	r.claims[key] = struct{}{}
	r.insert(t)
	a.CurrentCredits += t.Credits
	a.Version++
	copied := *a
	return &copied, nil
}

func (r *memoryRepo) ResolveTransaction(_ context.Context, id string, to TransactionStatus, notes string, at time.Time) (*Transaction, *Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, nil, r.failWith
	}
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil, creditErrors.ErrTransactionNotFound
	}
	if t.Status != TransactionPending {
		return nil, nil, creditErrors.ErrInvalidState
	}
	t.Status = to
	t.Notes = notes
	t.UpdatedAt = at

	var account *Account
	if to == TransactionCompleted {
		a, ok := r.accounts[t.AccountID]
		if !ok {
			return nil, nil, creditErrors.ErrAccountNotFound
		}
		a.CurrentCredits += t.Credits
		a.Version++
		copiedAccount := *a
		account = &copiedAccount
	}
	copied := *t
	return &copied, account, nil
}

func (r *memoryRepo) GetTransaction(_ context.Context, id string) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

func (r *memoryRepo) ListPendingTransactions(_ context.Context) ([]*Transaction, error) {
	return r.filter(func(t *Transaction) bool { return t.Status == TransactionPending }, true), nil
}

func (r *memoryRepo) ListTransactions(_ context.Context, accountID string) ([]*Transaction, error) {
	return r.filter(func(t *Transaction) bool { return t.AccountID == accountID }, true), nil
}

func (r *memoryRepo) ListPendingBefore(_ context.Context, before time.Time, limit int) ([]*Transaction, error) {
	list := r.filter(func(t *Transaction) bool {
		return t.Status == TransactionPending && t.CreatedAt.Before(before)
	}, false)
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *memoryRepo) ConsumeCredits(_ context.Context, usage *UsageLog) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	if usage.RequestID != "" {
		for _, u := range r.usage {
			if u.AccountID == usage.AccountID && u.RequestID == usage.RequestID {
				return nil, creditErrors.ErrDuplicateUsage
			}
		}
	}
	a, ok := r.accounts[usage.AccountID]
	if !ok {
		return nil, creditErrors.ErrAccountNotFound
	}
	if a.CurrentCredits < usage.Credits {
		return nil, creditErrors.ErrInsufficientCredits
	}
	a.CurrentCredits -= usage.Credits
	a.UsedCredits += usage.Credits
	a.Version++
	copiedUsage := *usage
	r.usage = append(r.usage, &copiedUsage)
	copied := *a
	return &copied, nil
}

func (r *memoryRepo) GetUsageByRequestID(_ context.Context, accountID, requestID string) (*UsageLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.usage {
		if u.AccountID == accountID && u.RequestID == requestID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memoryRepo) ListUsageLogs(_ context.Context, accountID string) ([]*UsageLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*UsageLog
	for i := len(r.usage) - 1; i >= 0; i-- {
		if r.usage[i].AccountID == accountID {
			copied := *r.usage[i]
			list = append(list, &copied)
		}
	}
	return list, nil
}

func (r *memoryRepo) SummarizeUsage(_ context.Context, accountID string, since time.Time) ([]*FeatureUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byFeature := make(map[string]*FeatureUsage)
	for _, u := range r.usage {
		if u.AccountID != accountID || u.CreatedAt.Before(since) {
			continue
		}
		f, ok := byFeature[u.Feature]
		if !ok {
			f = &FeatureUsage{Feature: u.Feature}
			byFeature[u.Feature] = f
		}
		f.Count++
		f.Credits += u.Credits
	}
	list := make([]*FeatureUsage, 0, len(byFeature))
	for _, f := range byFeature {
		list = append(list, f)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Feature < list[j].Feature })
	return list, nil
}

func (r *memoryRepo) ListUsageDrift(_ context.Context, limit int) ([]*UsageDrift, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logged := make(map[string]int64)
	for _, u := range r.usage {
		logged[u.AccountID] += u.Credits
	}
	var drifts []*UsageDrift
	for id, a := range r.accounts {
		if a.UsedCredits != logged[id] {
			drifts = append(drifts, &UsageDrift{AccountID: id, UsedCredits: a.UsedCredits, LoggedCredits: logged[id]})
		}
	}
	if len(drifts) > limit {
		drifts = drifts[:limit]
	}
	return drifts, nil
}

// account 直接读取账户快照（测试断言用）
func (r *memoryRepo) account(accountID string) Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[accountID]; ok {
		return *a
	}
	return Account{}
}

func (r *memoryRepo) insert(t *Transaction) {
	copied := *t
	r.transactions[t.ID] = &copied
	r.txOrder = append(r.txOrder, t.ID)
}

func (r *memoryRepo) filter(match func(t *Transaction) bool, newestFirst bool) []*Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*Transaction
	for _, id := range r.txOrder {
		if t := r.transactions[id]; match(t) {
			copied := *t
			list = append(list, &copied)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if newestFirst {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []*LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event *LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

// memoryCache 带版本保护的内存余额缓存
type memoryCache struct {
	mu       sync.Mutex
	accounts map[string]Account
}

func newMemoryCache() *memoryCache {
	return &memoryCache{accounts: make(map[string]Account)}
}

func (c *memoryCache) Get(_ context.Context, accountID string) (*Account, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.accounts[accountID]
	if !ok {
		return nil, false
	}
	return &a, true
}

func (c *memoryCache) Set(_ context.Context, account *Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.accounts[account.AccountID]; ok && existing.Version > account.Version {
		return
	}
	c.accounts[account.AccountID] = *account
}

func (c *memoryCache) Delete(_ context.Context, accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.accounts, accountID)
}

// stubLocker 可模拟锁被其他实例持有
type stubLocker struct {
	held bool
	runs int
}

func (l *stubLocker) RunExclusive(ctx context.Context, _ string, fn func(ctx context.Context) error) (bool, error) {
	if l.held {
		return false, nil
	}
	l.runs++
	return true, fn(ctx)
}
