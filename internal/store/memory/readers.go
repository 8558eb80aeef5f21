package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// TokenStore is an in-memory implementation of domain.TokenStore.
type TokenStore struct{ s *Store }

var _ domain.TokenStore = (*TokenStore)(nil)

func (r *TokenStore) GetByID(_ context.Context, id int64) (domain.Token, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	tok, ok := r.s.tokens[id]
	if !ok {
		return domain.Token{}, domain.ErrNotFound
	}
	return tok, nil
}

func (r *TokenStore) GetBySymbol(_ context.Context, sym domain.Symbol) (domain.Token, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, tok := range r.s.tokens {
		if tok.Symbol == sym {
			return tok, nil
		}
	}
	return domain.Token{}, domain.ErrNotFound
}

// List returns tokens ordered by symbol.
func (r *TokenStore) List(_ context.Context) ([]domain.Token, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Token, 0, len(r.s.tokens))
	for _, tok := range r.s.tokens {
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// MarketStore is an in-memory implementation of domain.MarketStore.
type MarketStore struct{ s *Store }

var _ domain.MarketStore = (*MarketStore)(nil)

func (r *MarketStore) GetByTokenID(_ context.Context, tokenID int64) (domain.MarketRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.markets[tokenID]
	if !ok {
		return domain.MarketRecord{}, domain.ErrNotFound
	}
	return m, nil
}

// List returns market records ordered by token id.
func (r *MarketStore) List(_ context.Context) ([]domain.MarketRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.MarketRecord, 0, len(r.s.markets))
	for _, m := range r.s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out, nil
}

// EventStore is an in-memory implementation of domain.EventStore.
type EventStore struct{ s *Store }

var _ domain.EventStore = (*EventStore)(nil)

func (r *EventStore) Create(_ context.Context, e domain.MarketEvent) (domain.MarketEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.nextID()
	e.AffectedSymbols = domain.NewSymbolSet(e.AffectedSymbols.Symbols()...)
	r.s.events = append(r.s.events, e)
	return e, nil
}

func (r *EventStore) ListEffective(_ context.Context, at time.Time) ([]domain.MarketEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.MarketEvent
	for _, e := range r.s.events {
		if e.IsEffective(at) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *EventStore) DeactivateExpired(_ context.Context, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for i := range r.s.events {
		if r.s.events[i].Active && r.s.events[i].EndTime.Before(at) {
			r.s.events[i].Active = false
			n++
		}
	}
	return n, nil
}

// All returns every stored event, oldest first.
func (r *EventStore) All() []domain.MarketEvent {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return slices.Clone(r.s.events)
}

// WalletStore is an in-memory implementation of domain.WalletStore.
type WalletStore struct{ s *Store }

var _ domain.WalletStore = (*WalletStore)(nil)

func (r *WalletStore) GetByUser(_ context.Context, userID string) (domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.wallets[userID]
	if !ok {
		return domain.Wallet{}, domain.ErrNotFound
	}
	return w, nil
}

func (r *WalletStore) List(_ context.Context) ([]domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Wallet, 0, len(r.s.wallets))
	for _, w := range r.s.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put overwrites a wallet outside any unit of work. It exists so tests and
// tooling can plant inconsistent state.
func (r *WalletStore) Put(w domain.Wallet) domain.Wallet {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if w.ID == 0 {
		w.ID = r.s.nextID()
	}
	r.s.wallets[w.UserID] = w
	return w
}

// PositionStore is an in-memory implementation of domain.PositionStore.
type PositionStore struct{ s *Store }

var _ domain.PositionStore = (*PositionStore)(nil)

func (r *PositionStore) ListByUser(_ context.Context, userID string) ([]domain.Position, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Position
	for k, p := range r.s.positions {
		if k.userID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out, nil
}

// TransactionStore is an in-memory implementation of domain.TransactionStore.
type TransactionStore struct{ s *Store }

var _ domain.TransactionStore = (*TransactionStore)(nil)

// ListByUser returns matching transactions newest first.
func (r *TransactionStore) ListByUser(_ context.Context, userID string, f domain.TransactionFilter) ([]domain.TradeRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.TradeRecord
	for i := len(r.s.txns) - 1; i >= 0; i-- {
		t := r.s.txns[i]
		if t.UserID != userID {
			continue
		}
		if len(f.Types) > 0 && !slices.Contains(f.Types, t.Type) {
			continue
		}
		if f.Since != nil && t.CreatedAt.Before(*f.Since) {
			continue
		}
		if f.Until != nil && t.CreatedAt.After(*f.Until) {
			continue
		}
		rec := domain.TradeRecord{Transaction: t}
		if t.TokenID != nil {
			if tok, ok := r.s.tokens[*t.TokenID]; ok {
				rec.Symbol = tok.Symbol
				rec.TokenName = tok.Name
			}
		}
		out = append(out, rec)
	}

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *TransactionStore) SumAmountByWallet(_ context.Context, walletID int64) (decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sum := decimal.Zero
	for _, t := range r.s.txns {
		if t.WalletID == walletID && t.Status == domain.TxCompleted {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

// All returns every ledger entry in insertion order.
func (r *TransactionStore) All() []domain.Transaction {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return slices.Clone(r.s.txns)
}

// UserDirectory is an in-memory implementation of domain.UserDirectory.
type UserDirectory struct{ s *Store }

var _ domain.UserDirectory = (*UserDirectory)(nil)

func (r *UserDirectory) GetContact(_ context.Context, userID string) (domain.UserContact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.contacts[userID]
	if !ok {
		return domain.UserContact{}, domain.ErrNotFound
	}
	return c, nil
}

// SaveContact creates or replaces the contact details of c.UserID.
func (r *UserDirectory) SaveContact(_ context.Context, c domain.UserContact) error {
	r.Put(c)
	return nil
}

// Put registers contact details.
func (r *UserDirectory) Put(c domain.UserContact) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.contacts[c.UserID] = c
}

// AuditStore is an in-memory implementation of domain.AuditStore.
type AuditStore struct{ s *Store }

var _ domain.AuditStore = (*AuditStore)(nil)

func (r *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, domain.AuditEntry{
		ID:        r.s.nextID(),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// List returns entries newest first.
func (r *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.AuditEntry
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		e := r.s.audit[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// PriceHistoryStore is an in-memory implementation of
// domain.PriceHistoryStore.
type PriceHistoryStore struct{ s *Store }

var _ domain.PriceHistoryStore = (*PriceHistoryStore)(nil)

func (r *PriceHistoryStore) Append(_ context.Context, points []domain.PricePoint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.history = append(r.s.history, points...)
	return nil
}

// List returns points for sym newest first.
func (r *PriceHistoryStore) List(_ context.Context, sym domain.Symbol, opts domain.ListOpts) ([]domain.PricePoint, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.PricePoint
	for i := len(r.s.history) - 1; i >= 0; i-- {
		p := r.s.history[i]
		if p.Symbol != sym {
			continue
		}
		if opts.Since != nil && p.Time.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && p.Time.After(*opts.Until) {
			continue
		}
		out = append(out, p)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
