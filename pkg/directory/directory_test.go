package directory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"banca-client/pkg/banking"
	"banca-client/pkg/cache/memory"
	"banca-client/pkg/chain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	accountCalls int32
	txCalls      int32
	delay        time.Duration
	err          error
	accounts     []banking.Account
}

func (f *fakeSource) ListAccounts(ctx context.Context) (*banking.AccountList, error) {
	atomic.AddInt32(&f.accountCalls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &banking.AccountList{
		Accounts: f.accounts,
		Summary:  banking.AccountSummary{TotalAccounts: len(f.accounts)},
	}, nil
}

func (f *fakeSource) ListTransactions(ctx context.Context, accountID string, query banking.TransactionQuery) (*banking.TransactionPage, error) {
	atomic.AddInt32(&f.txCalls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &banking.TransactionPage{
		AccountID:  accountID,
		Pagination: banking.Pagination{Limit: query.Limit},
		Transactions: []banking.Transaction{{
			AccountID: accountID,
			Type:      banking.Debit,
			Amount:    decimal.NewFromInt(10),
		}},
	}, nil
}

func (f *fakeSource) calls() (int, int) {
	return int(atomic.LoadInt32(&f.accountCalls)), int(atomic.LoadInt32(&f.txCalls))
}

type recordingPurger struct {
	mu       sync.Mutex
	prefixes []string
}

func (p *recordingPurger) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prefixes = append(p.prefixes, prefix)
	return 1, nil
}

func newStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()

	l1 := memory.NewMemoryCache(memory.MemoryCacheConfig{Name: "L1", CleanupInterval: -1})
	c, err := chain.New(l1)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return NewStore(c, Config{}, opts...)
}

func sampleAccounts() []banking.Account {
	return []banking.Account{
		{AccountID: "acc-1", Balance: decimal.NewFromInt(1000), Type: banking.AccountChecking, Currency: "USD"},
		{AccountID: "acc-2", Balance: decimal.RequireFromString("250.50"), Type: banking.AccountSavings, Currency: "USD"},
	}
}

func TestNew_RequiresSubject(t *testing.T) {
	_, err := New(newStore(t), &fakeSource{}, "")
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestNewStore_Defaults(t *testing.T) {
	store := newStore(t)

	assert.Equal(t, 5*time.Minute, store.Config().AccountsTTL)
	assert.Equal(t, 2*time.Minute, store.Config().TransactionsTTL)
	assert.Equal(t, "dir", store.Config().KeyPrefix)
}

func TestDirectory_AccountsAreCached(t *testing.T) {
	source := &fakeSource{accounts: sampleAccounts()}
	dir, err := New(newStore(t), source, "customer-1")
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		accounts, err := dir.ListAccounts(ctx)
		require.NoError(t, err)
		require.Len(t, accounts, 2)
		assert.True(t, accounts[1].Balance.Equal(decimal.RequireFromString("250.50")))
	}

	accountCalls, _ := source.calls()
	assert.Equal(t, 1, accountCalls)
}

func TestDirectory_SubjectsAreIsolated(t *testing.T) {
	store := newStore(t)
	alice := &fakeSource{accounts: sampleAccounts()[:1]}
	bob := &fakeSource{accounts: sampleAccounts()}

	aliceDir, _ := New(store, alice, "alice")
	bobDir, _ := New(store, bob, "bob")

	ctx := context.Background()
	a, err := aliceDir.ListAccounts(ctx)
	require.NoError(t, err)
	b, err := bobDir.ListAccounts(ctx)
	require.NoError(t, err)

	assert.Len(t, a, 1)
	assert.Len(t, b, 2)
}

func TestDirectory_Account(t *testing.T) {
	dir, _ := New(newStore(t), &fakeSource{accounts: sampleAccounts()}, "customer-1")

	account, err := dir.Account(context.Background(), "acc-2")
	require.NoError(t, err)
	assert.Equal(t, banking.AccountSavings, account.Type)

	_, err = dir.Account(context.Background(), "acc-404")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestDirectory_SourceErrorsAreNotCached(t *testing.T) {
	source := &fakeSource{err: errors.New("backend down")}
	dir, _ := New(newStore(t), source, "customer-1")

	_, err := dir.ListAccounts(context.Background())
	require.Error(t, err)

	source.err = nil
	source.accounts = sampleAccounts()
	accounts, err := dir.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	accountCalls, _ := source.calls()
	assert.Equal(t, 2, accountCalls)
}

func TestDirectory_InvalidateReloadsAccounts(t *testing.T) {
	source := &fakeSource{accounts: sampleAccounts()}
	dir, _ := New(newStore(t), source, "customer-1")
	ctx := context.Background()

	_, err := dir.ListAccounts(ctx)
	require.NoError(t, err)

	source.accounts[0].Balance = decimal.NewFromInt(900)
	dir.Invalidate(ctx, "acc-1", "acc-2")

	account, err := dir.Account(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(900)), "expected reloaded balance, got %s", account.Balance)

	accountCalls, _ := source.calls()
	assert.Equal(t, 2, accountCalls)
}

func TestDirectory_TransactionsCachedPerQuery(t *testing.T) {
	source := &fakeSource{accounts: sampleAccounts()}
	dir, _ := New(newStore(t), source, "customer-1")
	ctx := context.Background()

	_, err := dir.Transactions(ctx, "acc-1", banking.TransactionQuery{})
	require.NoError(t, err)
	page, err := dir.Transactions(ctx, "acc-1", banking.TransactionQuery{Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, "acc-1", page.AccountID)
	assert.Equal(t, 50, page.Pagination.Limit)

	_, err = dir.Transactions(ctx, "acc-1", banking.TransactionQuery{Limit: 10})
	require.NoError(t, err)

	_, txCalls := source.calls()
	assert.Equal(t, 2, txCalls, "default and explicit limit 50 share an entry")
}

func TestDirectory_InvalidateDropsOnlyNamedHistories(t *testing.T) {
	source := &fakeSource{accounts: sampleAccounts()}
	dir, _ := New(newStore(t), source, "customer-1")
	ctx := context.Background()

	dir.Transactions(ctx, "acc-1", banking.TransactionQuery{})
	dir.Transactions(ctx, "acc-2", banking.TransactionQuery{})

	dir.Invalidate(ctx, "acc-1")

	dir.Transactions(ctx, "acc-1", banking.TransactionQuery{})
	dir.Transactions(ctx, "acc-2", banking.TransactionQuery{})

	_, txCalls := source.calls()
	assert.Equal(t, 3, txCalls)
}

func TestDirectory_TransactionsRequireAccount(t *testing.T) {
	dir, _ := New(newStore(t), &fakeSource{}, "customer-1")

	_, err := dir.Transactions(context.Background(), "", banking.TransactionQuery{})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestDirectory_InvalidatePurgesSharedLayer(t *testing.T) {
	purger := &recordingPurger{}
	dir, _ := New(newStore(t, WithPurger(purger)), &fakeSource{}, "customer-1")

	dir.Invalidate(context.Background(), "acc-1", "acc-2")
	dir.Invalidate(context.Background(), "acc-1")

	// Every generation goes, not just this process's previous one.
	assert.Equal(t, []string{
		"dir:accounts:customer-1:",
		"dir:tx:customer-1:acc-1:",
		"dir:tx:customer-1:acc-2:",
		"dir:accounts:customer-1:",
		"dir:tx:customer-1:acc-1:",
	}, purger.prefixes)
}

func TestDirectory_InvalidateReachesOtherStores(t *testing.T) {
	shared := memory.NewMemoryCache(memory.MemoryCacheConfig{Name: "L2", MaxSize: 100, CleanupInterval: -1})
	source := &fakeSource{accounts: []banking.Account{{AccountID: "acc-1"}}}

	sharedStore := func() *Store {
		c, err := chain.New(shared)
		require.NoError(t, err)
		return NewStore(c, DefaultConfig(), WithPurger(shared))
	}
	a, _ := New(sharedStore(), source, "customer-1")
	b, _ := New(sharedStore(), source, "customer-1")

	// b's generation moves ahead of a's before a caches anything.
	b.Invalidate(context.Background())
	_, err := a.Accounts(context.Background())
	require.NoError(t, err)

	b.Invalidate(context.Background(), "acc-1")
	_, err = a.Accounts(context.Background())
	require.NoError(t, err)

	accountCalls, _ := source.calls()
	assert.Equal(t, 2, accountCalls)
}

func TestDirectory_ConcurrentLoadsCollapse(t *testing.T) {
	source := &fakeSource{accounts: sampleAccounts(), delay: 50 * time.Millisecond}
	dir, _ := New(newStore(t), source, "customer-1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := dir.ListAccounts(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	accountCalls, _ := source.calls()
	assert.Less(t, accountCalls, 10)
}

func TestDirectory_RefreshAfter(t *testing.T) {
	source := &fakeSource{accounts: sampleAccounts()}
	dir, _ := New(newStore(t), source, "customer-1")
	ctx := context.Background()

	dir.ListAccounts(ctx)

	list, err := dir.RefreshAfter(ctx, 10*time.Millisecond, "acc-1")
	require.NoError(t, err)
	assert.Len(t, list.Accounts, 2)

	accountCalls, _ := source.calls()
	assert.Equal(t, 2, accountCalls)
}

func TestDirectory_RefreshAfterCancelled(t *testing.T) {
	source := &fakeSource{accounts: sampleAccounts()}
	dir, _ := New(newStore(t), source, "customer-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dir.RefreshAfter(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)

	accountCalls, _ := source.calls()
	assert.Equal(t, 0, accountCalls)
}

func TestKeysAreValidCacheKeys(t *testing.T) {
	store := newStore(t)

	key := store.accountsKey("user@example.com", 3)
	assert.Equal(t, "dir:accounts:user@example.com:g3", key)
	assert.False(t, strings.ContainsAny(key, " \t\n"))
}
