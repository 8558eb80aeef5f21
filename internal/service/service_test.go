package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
	"github.com/alanyoungcy/tokenmarket/internal/notify"
	"github.com/alanyoungcy/tokenmarket/internal/store/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// outsideHours is 20:00 in Lagos, so ticks are not amplified.
var outsideHours = time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)

type captureMailer struct {
	mu   sync.Mutex
	sent []notify.Mail
	got  chan notify.Mail
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{got: make(chan notify.Mail, 16)}
}

func (c *captureMailer) SendMail(_ context.Context, m notify.Mail) error {
	c.mu.Lock()
	c.sent = append(c.sent, m)
	c.mu.Unlock()
	c.got <- m
	return nil
}

type fixture struct {
	store     *memory.Store
	clock     *clockwork.FakeClock
	rules     domain.PriceRules
	feed      *MarketFeed
	mailer    *captureMailer
	trades    *TradeExecutor
	wallets   *WalletService
	market    *MarketService
	portfolio *PortfolioService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.New()
	clock := clockwork.NewFakeClockAt(outsideHours)
	rules := domain.DefaultPriceRules()
	logger := discardLogger()

	feed := NewMarketFeed(nil, nil, s.PriceHistory(), logger)
	mailer := newCaptureMailer()
	dispatcher := notify.NewDispatcher(mailer, s.Users(), notify.DispatcherConfig{Workers: 1, Attempts: 1}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = dispatcher.Run(ctx) }()

	return &fixture{
		store:     s,
		clock:     clock,
		rules:     rules,
		feed:      feed,
		mailer:    mailer,
		trades:    NewTradeExecutor(s, feed, s.Audit(), dispatcher, rules, clock, logger),
		wallets:   NewWalletService(s, s.Users(), s.Audit(), clock, logger),
		market:    NewMarketService(s.Tokens(), s.Markets(), s.PriceHistory(), s, feed, clock, logger),
		portfolio: NewPortfolioService(s.Wallets(), s.Positions(), s.Tokens(), s.Markets(), s.Transactions(), logger),
	}
}

// seed creates UNILAG at 100 with 100,000 of 1,000,000 circulating.
func (f *fixture) seed(t *testing.T, entries ...domain.CatalogEntry) []domain.MarketQuote {
	t.Helper()
	if len(entries) == 0 {
		entries = []domain.CatalogEntry{{
			Symbol:       "UNILAG",
			Name:         "UNILAG Token",
			Institution:  "University of Lagos",
			InitialPrice: dec("100"),
			TotalSupply:  dec("1000000"),
		}}
	}
	quotes, err := f.market.SeedCatalog(context.Background(), entries)
	require.NoError(t, err)
	return quotes
}

func (f *fixture) fund(t *testing.T, userID, amount string) domain.Wallet {
	t.Helper()
	ctx := context.Background()
	_, err := f.wallets.Open(ctx, userID)
	require.NoError(t, err)
	_, err = f.wallets.RecordDeposit(ctx, userID, dec(amount), "")
	require.NoError(t, err)
	w, err := f.store.Wallets().GetByUser(ctx, userID)
	require.NoError(t, err)
	return w
}

func (f *fixture) marketOf(t *testing.T, tokenID int64) domain.MarketRecord {
	t.Helper()
	m, err := f.store.Markets().GetByTokenID(context.Background(), tokenID)
	require.NoError(t, err)
	return m
}

func (f *fixture) tokenOf(t *testing.T, tokenID int64) domain.Token {
	t.Helper()
	tok, err := f.store.Tokens().GetByID(context.Background(), tokenID)
	require.NoError(t, err)
	return tok
}

func requireDecEqual(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, got.Equal(dec(want)), "want %s, got %s %v", want, got, msgAndArgs)
}
