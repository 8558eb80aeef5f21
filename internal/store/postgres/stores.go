package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// TokenStore implements domain.TokenStore.
type TokenStore struct {
	pool *pgxpool.Pool
}

var _ domain.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a TokenStore backed by pool.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

func (s *TokenStore) GetByID(ctx context.Context, id int64) (domain.Token, error) {
	t, err := scanToken(s.pool.QueryRow(ctx, `SELECT `+tokenCols+` FROM tokens WHERE id = $1`, id))
	if err != nil {
		return domain.Token{}, mapErr(err)
	}
	return t, nil
}

func (s *TokenStore) GetBySymbol(ctx context.Context, sym domain.Symbol) (domain.Token, error) {
	t, err := scanToken(s.pool.QueryRow(ctx, `SELECT `+tokenCols+` FROM tokens WHERE symbol = $1`, string(sym)))
	if err != nil {
		return domain.Token{}, mapErr(err)
	}
	return t, nil
}

func (s *TokenStore) List(ctx context.Context) ([]domain.Token, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tokenCols+` FROM tokens ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tokens: %w", err)
	}
	tokens, err := collect(rows, scanToken)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan tokens: %w", err)
	}
	return tokens, nil
}

// MarketStore implements domain.MarketStore.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a MarketStore backed by pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

func (s *MarketStore) GetByTokenID(ctx context.Context, tokenID int64) (domain.MarketRecord, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE token_id = $1`, tokenID))
	if err != nil {
		return domain.MarketRecord{}, mapErr(err)
	}
	return m, nil
}

func (s *MarketStore) List(ctx context.Context) ([]domain.MarketRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketCols+` FROM markets ORDER BY token_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	markets, err := collect(rows, scanMarket)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan markets: %w", err)
	}
	return markets, nil
}

// WalletStore implements domain.WalletStore.
type WalletStore struct {
	pool *pgxpool.Pool
}

var _ domain.WalletStore = (*WalletStore)(nil)

// NewWalletStore creates a WalletStore backed by pool.
func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

func (s *WalletStore) GetByUser(ctx context.Context, userID string) (domain.Wallet, error) {
	w, err := scanWallet(s.pool.QueryRow(ctx, `SELECT `+walletCols+` FROM wallets WHERE user_id = $1`, userID))
	if err != nil {
		return domain.Wallet{}, mapErr(err)
	}
	return w, nil
}

func (s *WalletStore) List(ctx context.Context) ([]domain.Wallet, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+walletCols+` FROM wallets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wallets: %w", err)
	}
	wallets, err := collect(rows, scanWallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan wallets: %w", err)
	}
	return wallets, nil
}

// PositionStore implements domain.PositionStore.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a PositionStore backed by pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

func (s *PositionStore) ListByUser(ctx context.Context, userID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions WHERE user_id = $1 ORDER BY token_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", userID, err)
	}
	positions, err := collect(rows, scanPosition)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

// TransactionStore implements domain.TransactionStore.
type TransactionStore struct {
	pool *pgxpool.Pool
}

var _ domain.TransactionStore = (*TransactionStore)(nil)

// NewTransactionStore creates a TransactionStore backed by pool.
func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

func scanTradeRecord(row pgx.Row) (domain.TradeRecord, error) {
	var (
		r            domain.TradeRecord
		typ, status  string
		symbol, name *string
	)
	err := row.Scan(&r.ID, &r.Reference, &r.WalletID, &r.UserID, &typ, &r.TokenID,
		&r.Quantity, &r.Price, &r.Fee, &r.ProfitLoss, &r.Amount, &status,
		&r.Description, &r.CreatedAt, &symbol, &name)
	if err != nil {
		return domain.TradeRecord{}, err
	}
	r.Type = domain.TransactionType(typ)
	r.Status = domain.TransactionStatus(status)
	if symbol != nil {
		r.Symbol = domain.Symbol(*symbol)
	}
	if name != nil {
		r.TokenName = *name
	}
	return r, nil
}

// ListByUser returns the user's transactions newest first, joined with their
// token.
func (s *TransactionStore) ListByUser(ctx context.Context, userID string, f domain.TransactionFilter) ([]domain.TradeRecord, error) {
	var b strings.Builder
	b.WriteString(`
		SELECT t.id, t.reference, t.wallet_id, t.user_id, t.type, t.token_id,
			t.quantity, t.price, t.fee, t.profit_loss, t.amount, t.status,
			t.description, t.created_at, k.symbol, k.name
		FROM transactions t
		LEFT JOIN tokens k ON k.id = t.token_id
		WHERE t.user_id = $1`)
	args := []any{userID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		b.WriteString(" AND t.type = ANY(" + arg(types) + ")")
	}
	if f.Since != nil {
		b.WriteString(" AND t.created_at >= " + arg(*f.Since))
	}
	if f.Until != nil {
		b.WriteString(" AND t.created_at <= " + arg(*f.Until))
	}
	b.WriteString(" ORDER BY t.created_at DESC, t.id DESC")
	if f.Limit > 0 {
		b.WriteString(" LIMIT " + arg(f.Limit))
	}
	if f.Offset > 0 {
		b.WriteString(" OFFSET " + arg(f.Offset))
	}

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions for %s: %w", userID, err)
	}
	records, err := collect(rows, scanTradeRecord)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions: %w", err)
	}
	return records, nil
}

func (s *TransactionStore) SumAmountByWallet(ctx context.Context, walletID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE wallet_id = $1 AND status = 'COMPLETED'`,
		walletID,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum wallet %d: %w", walletID, err)
	}
	return sum, nil
}

// UserDirectory implements domain.UserDirectory over the users table.
type UserDirectory struct {
	pool *pgxpool.Pool
}

var _ domain.UserDirectory = (*UserDirectory)(nil)

// NewUserDirectory creates a UserDirectory backed by pool.
func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

func (s *UserDirectory) GetContact(ctx context.Context, userID string) (domain.UserContact, error) {
	c := domain.UserContact{UserID: userID}
	err := s.pool.QueryRow(ctx, `SELECT email, first_name FROM users WHERE id = $1`, userID).
		Scan(&c.Email, &c.FirstName)
	if err != nil {
		return domain.UserContact{}, mapErr(err)
	}
	return c, nil
}

func (s *UserDirectory) SaveContact(ctx context.Context, c domain.UserContact) error {
	const query = `
		INSERT INTO users (id, email, first_name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, first_name = EXCLUDED.first_name`
	if _, err := s.pool.Exec(ctx, query, c.UserID, c.Email, c.FirstName); err != nil {
		return fmt.Errorf("postgres: save contact %s: %w", c.UserID, err)
	}
	return nil
}

// EventStore implements domain.EventStore.
type EventStore struct {
	pool *pgxpool.Pool
}

var _ domain.EventStore = (*EventStore)(nil)

// NewEventStore creates an EventStore backed by pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventCols = `id, name, description, effect_type, magnitude, affected_symbols,
	start_time, end_time, active, created_at`

func scanEvent(row pgx.Row) (domain.MarketEvent, error) {
	var (
		e       domain.MarketEvent
		effect  string
		symbols []string
	)
	err := row.Scan(&e.ID, &e.Name, &e.Description, &effect, &e.Magnitude, &symbols,
		&e.StartTime, &e.EndTime, &e.Active, &e.CreatedAt)
	if err != nil {
		return domain.MarketEvent{}, err
	}
	e.EffectType = domain.EffectType(effect)
	e.AffectedSymbols = make(domain.SymbolSet, len(symbols))
	for _, s := range symbols {
		e.AffectedSymbols[domain.Symbol(s)] = struct{}{}
	}
	return e, nil
}

func (s *EventStore) Create(ctx context.Context, e domain.MarketEvent) (domain.MarketEvent, error) {
	const query = `
		INSERT INTO market_events (name, description, effect_type, magnitude,
			affected_symbols, start_time, end_time, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx, query, e.Name, e.Description, string(e.EffectType), e.Magnitude,
		e.AffectedSymbols.Strings(), e.StartTime, e.EndTime, e.Active, createdAt,
	).Scan(&e.ID)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("postgres: create market event %q: %w", e.Name, err)
	}
	e.CreatedAt = createdAt
	return e, nil
}

func (s *EventStore) ListEffective(ctx context.Context, at time.Time) ([]domain.MarketEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventCols+` FROM market_events WHERE start_time <= $1 AND end_time >= $1 ORDER BY id`, at)
	if err != nil {
		return nil, fmt.Errorf("postgres: list effective events: %w", err)
	}
	events, err := collect(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events: %w", err)
	}
	return events, nil
}

func (s *EventStore) DeactivateExpired(ctx context.Context, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE market_events SET active = FALSE WHERE active AND end_time < $1`, at)
	if err != nil {
		return 0, fmt.Errorf("postgres: deactivate expired events: %w", err)
	}
	return tag.RowsAffected(), nil
}
