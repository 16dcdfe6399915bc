package directory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"banca-client/pkg/cache"
	"banca-client/pkg/chain"
	"banca-client/pkg/logging"

	"go.uber.org/zap"
)

// PrefixPurger removes every key under a prefix. The Redis and memory layers
// implement it; layers that don't are left to expire by TTL.
type PrefixPurger interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Config holds directory freshness windows.
type Config struct {
	// AccountsTTL is how long an account list stays fresh (default: 5m)
	AccountsTTL time.Duration

	// TransactionsTTL is how long a transaction page stays fresh (default: 2m)
	TransactionsTTL time.Duration

	// KeyPrefix namespaces every key the directory writes (default: "dir")
	KeyPrefix string
}

// DefaultConfig returns the default freshness windows.
func DefaultConfig() Config {
	return Config{
		AccountsTTL:     5 * time.Minute,
		TransactionsTTL: 2 * time.Minute,
		KeyPrefix:       "dir",
	}
}

// Store is the cache shared by every user's Directory. It owns the chain
// and the generation counters that make invalidated keys unreachable.
type Store struct {
	chain  *chain.Chain
	keys   *cache.KeyPattern
	config Config
	purger PrefixPurger
	logger *logging.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPurger lets invalidation sweep dead generations from a shared layer.
func WithPurger(p PrefixPurger) StoreOption {
	return func(s *Store) { s.purger = p }
}

// WithLogger sets the store logger.
func WithLogger(l *logging.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store over c.
func NewStore(c *chain.Chain, config Config, opts ...StoreOption) *Store {
	defaults := DefaultConfig()
	if config.AccountsTTL <= 0 {
		config.AccountsTTL = defaults.AccountsTTL
	}
	if config.TransactionsTTL <= 0 {
		config.TransactionsTTL = defaults.TransactionsTTL
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}

	s := &Store{
		chain:       c,
		keys:        cache.NewKeyPattern(config.KeyPrefix, ":"),
		config:      config,
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrGlobal(s.logger, "directory")
	return s
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.config
}

// Chain returns the underlying cache chain.
func (s *Store) Chain() *chain.Chain {
	return s.chain
}

func ownerScope(subject string) string {
	return "owner:" + subject
}

func accountScope(subject, accountID string) string {
	return "account:" + subject + ":" + accountID
}

func (s *Store) generation(scope string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[scope]
}

// bump advances scope and returns the generation it replaced.
func (s *Store) bump(scope string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.generations[scope]
	s.generations[scope] = old + 1
	return old
}

func gen(n uint64) string {
	return "g" + strconv.FormatUint(n, 10)
}

func (s *Store) accountsKey(subject string, generation uint64) string {
	return s.keys.Build("accounts", subject, gen(generation))
}

func (s *Store) transactionsPrefix(subject, accountID string, generation uint64) string {
	return s.keys.Build("tx", subject, accountID, gen(generation)) + ":"
}

// Generation-free prefixes cover entries other processes wrote under
// their own counters.
func (s *Store) sharedAccountsPrefix(subject string) string {
	return s.keys.Build("accounts", subject) + ":"
}

func (s *Store) sharedTransactionsPrefix(subject, accountID string) string {
	return s.keys.Build("tx", subject, accountID) + ":"
}

// invalidate retires the owner's account list and the given accounts'
// transaction pages. The bumped generations hide old entries from this
// process; with a purger, every generation is also removed from the shared
// layer so other processes reload once their own L1 copies expire.
// Failures to delete are logged.
func (s *Store) invalidate(ctx context.Context, subject string, accountIDs ...string) {
	oldList := s.accountsKey(subject, s.bump(ownerScope(subject)))
	if err := s.chain.Delete(ctx, oldList); err != nil {
		s.logger.Warn("failed to drop account list",
			zap.String("key", oldList),
			zap.Error(err),
		)
	}
	s.purge(ctx, s.sharedAccountsPrefix(subject))

	for _, id := range accountIDs {
		if id == "" {
			continue
		}
		s.bump(accountScope(subject, id))
		s.purge(ctx, s.sharedTransactionsPrefix(subject, id))
	}
}

func (s *Store) purge(ctx context.Context, prefix string) {
	if s.purger == nil {
		return
	}
	if _, err := s.purger.DeletePrefix(ctx, prefix); err != nil {
		s.logger.Warn("failed to purge shared entries",
			zap.String("prefix", prefix),
			zap.Error(err),
		)
	}
}
