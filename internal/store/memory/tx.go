package memory

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

type tx struct {
	s       *Store
	held    []string
	heldSet map[string]bool

	tokens    map[int64]domain.Token
	markets   map[int64]domain.MarketRecord
	wallets   map[string]domain.Wallet
	positions map[posKey]*domain.Position // nil marks a deletion
	txns      []domain.Transaction
}

var _ domain.Tx = (*tx)(nil)

func newTx(s *Store) *tx {
	return &tx{
		s:         s,
		heldSet:   make(map[string]bool),
		tokens:    make(map[int64]domain.Token),
		markets:   make(map[int64]domain.MarketRecord),
		wallets:   make(map[string]domain.Wallet),
		positions: make(map[posKey]*domain.Position),
	}
}

func tokenKey(id int64) string     { return "token:" + strconv.FormatInt(id, 10) }
func marketKey(id int64) string    { return "market:" + strconv.FormatInt(id, 10) }
func walletKey(user string) string { return "wallet:" + user }
func positionKey(k posKey) string {
	return "position:" + k.userID + ":" + strconv.FormatInt(k.tokenID, 10)
}

const catalogKey = "catalog"

func (t *tx) acquire(ctx context.Context, key string) error {
	if t.heldSet[key] {
		return nil
	}
	if err := t.s.locks.lock(ctx, key); err != nil {
		return fmt.Errorf("memory: lock %s: %w", key, err)
	}
	t.heldSet[key] = true
	t.held = append(t.held, key)
	return nil
}

func (t *tx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.s.locks.unlock(t.held[i])
	}
	t.held = nil
}

func (t *tx) commit() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, tok := range t.tokens {
		s.tokens[id] = tok
	}
	for id, m := range t.markets {
		s.markets[id] = m
	}
	for user, w := range t.wallets {
		s.wallets[user] = w
	}
	for k, p := range t.positions {
		if p == nil {
			delete(s.positions, k)
			continue
		}
		s.positions[k] = *p
	}
	s.txns = append(s.txns, t.txns...)
}

func (t *tx) token(id int64) (domain.Token, error) {
	if tok, ok := t.tokens[id]; ok {
		return tok, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	tok, ok := t.s.tokens[id]
	if !ok {
		return domain.Token{}, domain.ErrNotFound
	}
	return tok, nil
}

func (t *tx) market(tokenID int64) (domain.MarketRecord, error) {
	if m, ok := t.markets[tokenID]; ok {
		return m, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	m, ok := t.s.markets[tokenID]
	if !ok {
		return domain.MarketRecord{}, domain.ErrNotFound
	}
	return m, nil
}

func (t *tx) wallet(userID string) (domain.Wallet, bool) {
	if w, ok := t.wallets[userID]; ok {
		return w, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	w, ok := t.s.wallets[userID]
	return w, ok
}

func (t *tx) TokenForUpdate(ctx context.Context, id int64) (domain.Token, error) {
	if err := t.acquire(ctx, tokenKey(id)); err != nil {
		return domain.Token{}, err
	}
	return t.token(id)
}

func (t *tx) MarketForUpdate(ctx context.Context, tokenID int64) (domain.MarketRecord, error) {
	if err := t.acquire(ctx, marketKey(tokenID)); err != nil {
		return domain.MarketRecord{}, err
	}
	return t.market(tokenID)
}

func (t *tx) WalletForUpdate(ctx context.Context, userID string) (domain.Wallet, error) {
	if err := t.acquire(ctx, walletKey(userID)); err != nil {
		return domain.Wallet{}, err
	}
	w, ok := t.wallet(userID)
	if !ok {
		return domain.Wallet{}, domain.ErrNotFound
	}
	return w, nil
}

func (t *tx) PositionForUpdate(ctx context.Context, userID string, tokenID int64) (domain.Position, error) {
	k := posKey{userID: userID, tokenID: tokenID}
	if err := t.acquire(ctx, positionKey(k)); err != nil {
		return domain.Position{}, err
	}
	if p, ok := t.positions[k]; ok {
		if p == nil {
			return domain.Position{}, domain.ErrNotFound
		}
		return *p, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	p, ok := t.s.positions[k]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (t *tx) UpdateTokenSupply(_ context.Context, id int64, circulating decimal.Decimal) error {
	tok, err := t.token(id)
	if err != nil {
		return err
	}
	tok.CirculatingSupply = circulating
	t.tokens[id] = tok
	return nil
}

func (t *tx) UpdateMarket(_ context.Context, m domain.MarketRecord) error {
	if _, err := t.market(m.TokenID); err != nil {
		return err
	}
	t.markets[m.TokenID] = m
	return nil
}

func (t *tx) UpdateWallet(_ context.Context, w domain.Wallet) error {
	if _, ok := t.wallet(w.UserID); !ok {
		return domain.ErrNotFound
	}
	t.wallets[w.UserID] = w
	return nil
}

func (t *tx) CreateWallet(ctx context.Context, w domain.Wallet) (domain.Wallet, error) {
	if err := t.acquire(ctx, walletKey(w.UserID)); err != nil {
		return domain.Wallet{}, err
	}
	if _, ok := t.wallet(w.UserID); ok {
		return domain.Wallet{}, domain.ErrAlreadyExists
	}
	w.ID = t.s.allocID()
	t.wallets[w.UserID] = w
	return w, nil
}

func (t *tx) InsertPosition(_ context.Context, p domain.Position) (domain.Position, error) {
	p.ID = t.s.allocID()
	t.positions[posKey{userID: p.UserID, tokenID: p.TokenID}] = &p
	return p, nil
}

func (t *tx) UpdatePosition(_ context.Context, p domain.Position) error {
	k := posKey{userID: p.UserID, tokenID: p.TokenID}
	t.positions[k] = &p
	return nil
}

func (t *tx) DeletePosition(_ context.Context, id int64) error {
	for k, p := range t.positions {
		if p != nil && p.ID == id {
			t.positions[k] = nil
			return nil
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for k, p := range t.s.positions {
		if p.ID == id {
			if staged, ok := t.positions[k]; ok && staged == nil {
				return domain.ErrNotFound
			}
			t.positions[k] = nil
			return nil
		}
	}
	return domain.ErrNotFound
}

func (t *tx) InsertTransaction(_ context.Context, tr domain.Transaction) (domain.Transaction, error) {
	tr.ID = t.s.allocID()
	t.txns = append(t.txns, tr)
	return tr, nil
}

func (t *tx) LockCatalog(ctx context.Context) (int, error) {
	if err := t.acquire(ctx, catalogKey); err != nil {
		return 0, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	n := len(t.s.tokens)
	for id := range t.tokens {
		if _, ok := t.s.tokens[id]; !ok {
			n++
		}
	}
	return n, nil
}

func (t *tx) InsertToken(_ context.Context, tok domain.Token) (domain.Token, error) {
	t.s.mu.RLock()
	for _, existing := range t.s.tokens {
		if existing.Symbol == tok.Symbol {
			t.s.mu.RUnlock()
			return domain.Token{}, domain.ErrAlreadyExists
		}
	}
	t.s.mu.RUnlock()
	for _, staged := range t.tokens {
		if staged.Symbol == tok.Symbol {
			return domain.Token{}, domain.ErrAlreadyExists
		}
	}
	tok.ID = t.s.allocID()
	t.tokens[tok.ID] = tok
	return tok, nil
}

func (t *tx) InsertMarket(_ context.Context, m domain.MarketRecord) error {
	if _, err := t.token(m.TokenID); err != nil {
		return err
	}
	t.markets[m.TokenID] = m
	return nil
}
