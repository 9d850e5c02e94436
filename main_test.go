package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dnldd/abletrend/broker"
	"github.com/dnldd/abletrend/database"
	"github.com/dnldd/abletrend/notify"
	"github.com/dnldd/abletrend/position"
	"github.com/dnldd/abletrend/session"
	"github.com/dnldd/abletrend/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestSetupBacktest(t *testing.T) {
	cfg := &Config{
		Ticker:               "MES",
		Backtest:             true,
		BacktestDataFilepath: "fetch/testdata/bars.json",
		SQLitePath:           filepath.Join(t.TempDir(), "abletrend.db"),
	}
	cfg.applyDefaults()
	assert.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trader, st, err := setup(ctx, cfg, cancel, zerolog.Nop())
	assert.NoError(t, err)
	assert.NotNil(t, st.local)
	assert.Nil(t, st.journal)
	defer st.local.Close()

	done := make(chan struct{})
	go func() {
		trader.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("expected the backtest to complete")
	}

	report := trader.Report()
	assert.NotNil(t, report)
	assert.Equal(t, len(report.Trades), 1)

	// Closed trades and the settled account state reach the local store.
	trades, err := st.local.LoadTrades(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, len(trades), 1)
	assert.Equal(t, trades[0].ExitMethod, shared.SignalReversed)

	state, ok, err := st.local.LoadAccountState(context.Background())
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, state.ModelBalance.Equal(decimal.NewFromInt(10015)))
	assert.True(t, state.AccBalance.Equal(state.AccPeak))
}

func TestSetupRejectsMissingSettings(t *testing.T) {
	cfg := &Config{
		Ticker:               "MES",
		Backtest:             true,
		BacktestDataFilepath: "fetch/testdata/bars.json",
		SettingsPath:         filepath.Join(t.TempDir(), "missing.yaml"),
	}
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _, err := setup(ctx, cfg, cancel, zerolog.Nop())
	assert.Error(t, err)
}

func TestRestorePosition(t *testing.T) {
	ctx := context.Background()

	local, err := database.NewSQLiteStore(ctx, &database.SQLiteConfig{
		Path:   filepath.Join(t.TempDir(), "abletrend.db"),
		Logger: zerolog.Nop(),
	})
	assert.NoError(t, err)
	defer local.Close()

	newManager := func() *session.Manager {
		mgr, err := session.NewManager(&session.ManagerConfig{
			Broker:          broker.NewPaper(&broker.PaperConfig{}),
			Notify:          notify.Nop{},
			PersistPosition: local.PersistPosition,
			MaxRetries:      3,
			Logger:          zerolog.Nop(),
		})
		assert.NoError(t, err)

		return mgr
	}

	// Ensure nothing is restored from an empty store.
	mgr := newManager()
	assert.NoError(t, restorePosition(ctx, local, mgr))
	assert.Nil(t, mgr.Position())

	entry := time.Date(2025, 3, 4, 10, 5, 0, 0, time.UTC)
	pos, err := position.NewPosition(shared.Long, shared.InitialEntry, entry, 100, 1,
		position.StopLoss{Stop: 97, Source: shared.SupportResistanceLevel})
	assert.NoError(t, err)
	pos.StopOrderRef = "stop-ref"
	assert.NoError(t, local.PersistPosition(ctx, pos))

	mgr = newManager()
	assert.NoError(t, restorePosition(ctx, local, mgr))
	restored := mgr.Position()
	assert.NotNil(t, restored)
	assert.Equal(t, restored.ID, pos.ID)
	assert.Equal(t, restored.StopLoss.Stop, float64(97))
	assert.Equal(t, restored.StopOrderRef, "stop-ref")

	// A fresh paper broker holds nothing, the restored position reconciles closed.
	assert.NoError(t, mgr.RefreshStatus(ctx))
	assert.Nil(t, mgr.Position())

	stored, err := local.LoadPosition(ctx)
	assert.NoError(t, err)
	assert.Nil(t, stored)
}
