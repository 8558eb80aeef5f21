package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

func TestPortfolio_ValuesPositions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	quotes := f.seed(t, domain.UniversityCatalog()[:2]...)
	unilag, unilorin := quotes[0], quotes[1]
	f.fund(t, "ada", "100000")

	_, err := f.trades.Buy(ctx, "ada", domain.TradeRequest{TokenID: unilag.TokenID, Quantity: dec("1000"), Price: dec("100")})
	require.NoError(t, err)
	_, err = f.trades.Sell(ctx, "ada", domain.TradeRequest{TokenID: unilag.TokenID, Quantity: dec("500"), Price: dec("105")})
	require.NoError(t, err)
	_, err = f.trades.Buy(ctx, "ada", domain.TradeRequest{TokenID: unilorin.TokenID, Quantity: dec("100"), Price: dec("95")})
	require.NoError(t, err)

	p, err := f.portfolio.Portfolio(ctx, "ada")
	require.NoError(t, err)
	require.Len(t, p.Positions, 2)
	requireDecEqual(t, "42750", p.CashBalance)
	requireDecEqual(t, "2500", p.RealizedProfit)
	requireDecEqual(t, "250", p.TotalFeesPaid)
	requireDecEqual(t, "109500", p.TotalInvested)

	u := p.Positions[0]
	assert.Equal(t, domain.Symbol("UNILAG"), u.Symbol)
	requireDecEqual(t, "500", u.Quantity)
	requireDecEqual(t, "100", u.AverageBuyPrice)
	m := f.marketOf(t, unilag.TokenID)
	wantValue := domain.RoundMoney(dec("500").Mul(m.Price))
	requireDecEqual(t, wantValue.String(), u.CurrentValue)
	requireDecEqual(t, wantValue.Sub(dec("100000")).String(), u.UnrealizedProfit)

	sumValue := p.Positions[0].CurrentValue.Add(p.Positions[1].CurrentValue)
	sumUnrealized := p.Positions[0].UnrealizedProfit.Add(p.Positions[1].UnrealizedProfit)
	requireDecEqual(t, sumValue.String(), p.TotalCurrentValue)
	requireDecEqual(t, sumUnrealized.String(), p.UnrealizedProfit)

	wantROI := domain.Percent(p.UnrealizedProfit.Add(dec("2500")).Sub(dec("250")), dec("109500"))
	requireDecEqual(t, wantROI.String(), p.TotalROI)

	require.NotNil(t, p.BestPerformer)
	require.NotNil(t, p.WorstPerformer)
	assert.True(t, p.BestPerformer.ProfitPercentage.GreaterThanOrEqual(p.WorstPerformer.ProfitPercentage))
}

func TestPortfolio_EmptyWallet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "new", "10")

	p, err := f.portfolio.Portfolio(ctx, "new")
	require.NoError(t, err)
	assert.Empty(t, p.Positions)
	assert.Nil(t, p.BestPerformer)
	requireDecEqual(t, "0", p.TotalROI)
	requireDecEqual(t, "10", p.CashBalance)
}

func TestPortfolio_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.portfolio.Portfolio(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactionHistory_TradesOnlyWithSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tok := f.seed(t)[0]
	f.fund(t, "ada", "100000")

	_, err := f.trades.Buy(ctx, "ada", domain.TradeRequest{TokenID: tok.TokenID, Quantity: dec("1000"), Price: dec("100")})
	require.NoError(t, err)
	_, err = f.trades.Sell(ctx, "ada", domain.TradeRequest{TokenID: tok.TokenID, Quantity: dec("500"), Price: dec("105")})
	require.NoError(t, err)

	h, err := f.portfolio.TransactionHistory(ctx, "ada", domain.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, h.Trades, 2)
	assert.Equal(t, domain.TxSell, h.Trades[0].Type)
	assert.Equal(t, domain.TxBuy, h.Trades[1].Type)
	assert.Equal(t, domain.Symbol("UNILAG"), h.Trades[0].Symbol)
	assert.Equal(t, "Bought 1000 UNILAG tokens at ₦100 each", h.Trades[1].Description)

	assert.Equal(t, 2, h.Summary.TotalTrades)
	assert.Equal(t, 1, h.Summary.ProfitableTrades)
	requireDecEqual(t, "152500", h.Summary.TotalVolume)
	requireDecEqual(t, "250", h.Summary.TotalFees)
}

func TestMarketService_SnapshotTrends(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	quotes := f.seed(t, domain.UniversityCatalog()...)
	f.fund(t, "ada", "10000")

	_, err := f.trades.Buy(ctx, "ada", domain.TradeRequest{TokenID: quotes[0].TokenID, Quantity: dec("50"), Price: quotes[0].Price})
	require.NoError(t, err)

	snap, err := f.market.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Prices, len(quotes))
	assert.Len(t, snap.TopGainers, 3)
	assert.Len(t, snap.TopLosers, 3)
	require.Len(t, snap.MostTraded, 3)
	assert.Equal(t, quotes[0].Symbol, snap.MostTraded[0].Symbol)
	assert.Equal(t, quotes[0].Symbol, snap.TopGainers[0].Symbol)
}

func TestMarketService_SeedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	quotes := f.seed(t, domain.UniversityCatalog()...)
	require.Len(t, quotes, 10)

	unilag, err := f.store.Tokens().GetBySymbol(ctx, "UNILAG")
	require.NoError(t, err)
	requireDecEqual(t, "100000", unilag.CirculatingSupply)
	m := f.marketOf(t, unilag.ID)
	requireDecEqual(t, "5", m.Volatility)
	requireDecEqual(t, "10000000", m.LiquidityPool)

	_, err = f.market.SeedCatalog(ctx, domain.UniversityCatalog())
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestMarketService_PriceHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	points, err := f.market.PriceHistory(ctx, "UNILAG", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, points, 1)
	requireDecEqual(t, "100", points[0].Price)

	_, err = f.market.PriceHistory(ctx, "NOPE", domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWalletService_OpenIsIdempotentAndDepositsPost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	w1, err := f.wallets.Open(ctx, "ada")
	require.NoError(t, err)
	w2, err := f.wallets.Open(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, w1.ID, w2.ID)

	rec, err := f.wallets.RecordDeposit(ctx, "ada", dec("250.50"), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TxDeposit, rec.Type)
	assert.Equal(t, "pay-1", rec.Reference)

	w, err := f.store.Wallets().GetByUser(ctx, "ada")
	require.NoError(t, err)
	requireDecEqual(t, "250.5", w.CashBalance)

	_, err = f.wallets.RecordDeposit(ctx, "ada", dec("1.001"), "")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = f.wallets.RecordDeposit(ctx, "ghost", dec("1"), "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, f.wallets.SaveContact(ctx, domain.UserContact{UserID: "ada", Email: "ada@example.com"}))
	c, err := f.store.Users().GetContact(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", c.Email)
}
