package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

func seedToken(t *testing.T, s *Store) domain.Token {
	t.Helper()
	var tok domain.Token
	err := s.InTx(context.Background(), func(tx domain.Tx) error {
		var err error
		tok, err = tx.InsertToken(context.Background(), domain.Token{
			Symbol:            "UNILAG",
			TotalSupply:       decimal.NewFromInt(1000),
			CirculatingSupply: decimal.NewFromInt(100),
		})
		if err != nil {
			return err
		}
		return tx.InsertMarket(context.Background(), domain.MarketRecord{TokenID: tok.ID, Price: decimal.NewFromInt(100)})
	})
	require.NoError(t, err)
	return tok
}

func TestInTx_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	tok := seedToken(t, s)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx domain.Tx) error {
		if err := tx.UpdateTokenSupply(ctx, tok.ID, decimal.NewFromInt(900)); err != nil {
			return err
		}
		if _, err := tx.InsertTransaction(ctx, domain.Transaction{UserID: "u1", Type: domain.TxBuy}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Tokens().GetByID(ctx, tok.ID)
	require.NoError(t, err)
	assert.True(t, got.CirculatingSupply.Equal(decimal.NewFromInt(100)))
	assert.Empty(t, s.Transactions().All())
}

func TestInTx_ReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.InTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.CreateWallet(ctx, domain.Wallet{UserID: "u1", CashBalance: decimal.NewFromInt(10)}); err != nil {
			return err
		}
		w, err := tx.WalletForUpdate(ctx, "u1")
		if err != nil {
			return err
		}
		assert.True(t, w.CashBalance.Equal(decimal.NewFromInt(10)))

		p, err := tx.InsertPosition(ctx, domain.Position{UserID: "u1", TokenID: 7, Balance: decimal.NewFromInt(1)})
		if err != nil {
			return err
		}
		if err := tx.DeletePosition(ctx, p.ID); err != nil {
			return err
		}
		_, err = tx.PositionForUpdate(ctx, "u1", 7)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	_, err = s.Wallets().GetByUser(ctx, "u1")
	require.NoError(t, err)
	positions, err := s.Positions().ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestInTx_RowLockBlocksUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := New()
	tok := seedToken(t, s)

	locked := make(chan struct{})
	proceed := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.InTx(ctx, func(tx domain.Tx) error {
			if _, err := tx.TokenForUpdate(ctx, tok.ID); err != nil {
				return err
			}
			close(locked)
			<-proceed
			return tx.UpdateTokenSupply(ctx, tok.ID, decimal.NewFromInt(150))
		})
	}()
	<-locked

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := s.InTx(waitCtx, func(tx domain.Tx) error {
		_, err := tx.TokenForUpdate(waitCtx, tok.ID)
		return err
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(proceed)
	wg.Wait()

	err = s.InTx(ctx, func(tx domain.Tx) error {
		got, err := tx.TokenForUpdate(ctx, tok.ID)
		if err != nil {
			return err
		}
		assert.True(t, got.CirculatingSupply.Equal(decimal.NewFromInt(150)))
		return nil
	})
	require.NoError(t, err)
}

func TestInsertToken_DuplicateSymbol(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedToken(t, s)

	err := s.InTx(ctx, func(tx domain.Tx) error {
		n, err := tx.LockCatalog(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = tx.InsertToken(ctx, domain.Token{Symbol: "UNILAG"})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestTransactionStore_ListAndSum(t *testing.T) {
	ctx := context.Background()
	s := New()
	tok := seedToken(t, s)
	tokenID := tok.ID

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	err := s.InTx(ctx, func(tx domain.Tx) error {
		entries := []domain.Transaction{
			{WalletID: 1, UserID: "u1", Type: domain.TxDeposit, Amount: decimal.NewFromInt(1000), Status: domain.TxCompleted, CreatedAt: base},
			{WalletID: 1, UserID: "u1", Type: domain.TxBuy, TokenID: &tokenID, Amount: decimal.NewFromInt(-300), Status: domain.TxCompleted, CreatedAt: base.Add(time.Minute)},
			{WalletID: 1, UserID: "u1", Type: domain.TxSell, TokenID: &tokenID, Amount: decimal.NewFromInt(120), Status: domain.TxCompleted, CreatedAt: base.Add(2 * time.Minute)},
			{WalletID: 1, UserID: "u1", Type: domain.TxBuy, TokenID: &tokenID, Amount: decimal.NewFromInt(-50), Status: domain.TxFailed, CreatedAt: base.Add(3 * time.Minute)},
		}
		for _, e := range entries {
			if _, err := tx.InsertTransaction(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	sum, err := s.Transactions().SumAmountByWallet(ctx, 1)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(820)), "sum %s", sum)

	trades, err := s.Transactions().ListByUser(ctx, "u1", domain.TransactionFilter{
		Types:    []domain.TransactionType{domain.TxBuy, domain.TxSell},
		ListOpts: domain.ListOpts{Limit: 2},
	})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, domain.TxBuy, trades[0].Type)
	assert.Equal(t, domain.TxSell, trades[1].Type)
	assert.Equal(t, domain.Symbol("UNILAG"), trades[1].Symbol)
}
