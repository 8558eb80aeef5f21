// Package memory provides in-process implementations of the domain stores.
// Units of work take per-row locks that are held until commit or rollback and
// stage their writes, so concurrent callers observe the same isolation the
// Postgres store gives them.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

type posKey struct {
	userID  string
	tokenID int64
}

// Store holds all market state in memory.
type Store struct {
	mu        sync.RWMutex
	tokens    map[int64]domain.Token
	markets   map[int64]domain.MarketRecord
	wallets   map[string]domain.Wallet
	positions map[posKey]domain.Position
	txns      []domain.Transaction
	events    []domain.MarketEvent
	contacts  map[string]domain.UserContact
	audit     []domain.AuditEntry
	history   []domain.PricePoint
	seq       int64

	locks *rowLocks
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tokens:    make(map[int64]domain.Token),
		markets:   make(map[int64]domain.MarketRecord),
		wallets:   make(map[string]domain.Wallet),
		positions: make(map[posKey]domain.Position),
		contacts:  make(map[string]domain.UserContact),
		locks:     newRowLocks(),
	}
}

var _ domain.UnitOfWork = (*Store)(nil)

// nextID must be called with s.mu held for writing.
func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Store) allocID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID()
}

// InTx runs fn in a unit of work. Staged writes become visible atomically
// when fn returns nil; otherwise they are dropped.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.Tx) error) (err error) {
	t := newTx(s)
	defer t.release()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("memory: unit of work panicked: %v", r)
		}
	}()

	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory: commit: %w", err)
	}
	t.commit()
	return nil
}

// Tokens returns the token read store.
func (s *Store) Tokens() *TokenStore { return &TokenStore{s: s} }

// Markets returns the market read store.
func (s *Store) Markets() *MarketStore { return &MarketStore{s: s} }

// Events returns the market event store.
func (s *Store) Events() *EventStore { return &EventStore{s: s} }

// Wallets returns the wallet read store.
func (s *Store) Wallets() *WalletStore { return &WalletStore{s: s} }

// Positions returns the position read store.
func (s *Store) Positions() *PositionStore { return &PositionStore{s: s} }

// Transactions returns the ledger read store.
func (s *Store) Transactions() *TransactionStore { return &TransactionStore{s: s} }

// Users returns the contact directory.
func (s *Store) Users() *UserDirectory { return &UserDirectory{s: s} }

// Audit returns the audit log.
func (s *Store) Audit() *AuditStore { return &AuditStore{s: s} }

// PriceHistory returns the price time series.
func (s *Store) PriceHistory() *PriceHistoryStore { return &PriceHistoryStore{s: s} }
