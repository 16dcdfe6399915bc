// Package directory is the per-user read-through view of accounts and
// transaction histories. Entries live in a shared cache chain, scoped by
// session subject, and are invalidated after money moves.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"banca-client/pkg/banking"
	"banca-client/pkg/logging"

	"go.uber.org/zap"
)

var (
	// ErrAccountNotFound is returned when the id is not among the user's accounts
	ErrAccountNotFound = errors.New("directory: account not found")

	// ErrNoSubject is returned when a directory is built without a user
	ErrNoSubject = errors.New("directory: subject required")
)

// Source is the system of record the directory reads through to.
type Source interface {
	ListAccounts(ctx context.Context) (*banking.AccountList, error)
	ListTransactions(ctx context.Context, accountID string, query banking.TransactionQuery) (*banking.TransactionPage, error)
}

// Directory is one user's view of the store.
type Directory struct {
	store   *Store
	source  Source
	subject string
	logger  *logging.Logger
}

// New binds the store to a user and the source that loads their data.
func New(store *Store, source Source, subject string) (*Directory, error) {
	if subject == "" {
		return nil, ErrNoSubject
	}
	return &Directory{
		store:   store,
		source:  source,
		subject: subject,
		logger:  store.logger.With(zap.String("subject", subject)),
	}, nil
}

// Subject returns the user the directory is scoped to.
func (d *Directory) Subject() string {
	return d.subject
}

// Accounts returns the user's accounts with their summary.
func (d *Directory) Accounts(ctx context.Context) (*banking.AccountList, error) {
	key := d.store.accountsKey(d.subject, d.store.generation(ownerScope(d.subject)))

	data, err := d.store.chain.GetOrLoad(ctx, key, d.store.config.AccountsTTL, func(ctx context.Context) ([]byte, error) {
		list, err := d.source.ListAccounts(ctx)
		if err != nil {
			return nil, err
		}
		d.logger.Debug("loaded accounts", zap.Int("count", len(list.Accounts)))
		return json.Marshal(list)
	})
	if err != nil {
		return nil, err
	}

	var list banking.AccountList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("directory: corrupt account list: %w", err)
	}
	return &list, nil
}

// ListAccounts returns the user's accounts.
func (d *Directory) ListAccounts(ctx context.Context) ([]banking.Account, error) {
	list, err := d.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	return list.Accounts, nil
}

// Account returns one of the user's accounts.
func (d *Directory) Account(ctx context.Context, accountID string) (banking.Account, error) {
	list, err := d.Accounts(ctx)
	if err != nil {
		return banking.Account{}, err
	}
	account, ok := list.Find(accountID)
	if !ok {
		return banking.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	return account, nil
}

// Transactions returns a page of an account's history.
func (d *Directory) Transactions(ctx context.Context, accountID string, query banking.TransactionQuery) (*banking.TransactionPage, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrAccountNotFound)
	}
	query = query.Normalize()

	generation := d.store.generation(accountScope(d.subject, accountID))
	key := d.store.transactionsPrefix(d.subject, accountID, generation) + query.CacheKey()

	data, err := d.store.chain.GetOrLoad(ctx, key, d.store.config.TransactionsTTL, func(ctx context.Context) ([]byte, error) {
		page, err := d.source.ListTransactions(ctx, accountID, query)
		if err != nil {
			return nil, err
		}
		return json.Marshal(page)
	})
	if err != nil {
		return nil, err
	}

	var page banking.TransactionPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("directory: corrupt transaction page: %w", err)
	}
	return &page, nil
}

// Invalidate drops the account list and the histories of accountIDs so the
// next read goes to the source.
func (d *Directory) Invalidate(ctx context.Context, accountIDs ...string) {
	d.store.invalidate(ctx, d.subject, accountIDs...)
	d.logger.Debug("invalidated", zap.Strings("accounts", accountIDs))
}

// RefreshAfter waits delay, then invalidates and reloads the account list.
// It absorbs the lag between a pending transfer and the backend reflecting it.
func (d *Directory) RefreshAfter(ctx context.Context, delay time.Duration, accountIDs ...string) (*banking.AccountList, error) {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	d.Invalidate(ctx, accountIDs...)
	return d.Accounts(ctx)
}
