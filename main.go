package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dnldd/abletrend/account"
	"github.com/dnldd/abletrend/bot"
	"github.com/dnldd/abletrend/broker"
	"github.com/dnldd/abletrend/database"
	"github.com/dnldd/abletrend/engine"
	"github.com/dnldd/abletrend/fetch"
	"github.com/dnldd/abletrend/notify"
	"github.com/dnldd/abletrend/position"
	"github.com/dnldd/abletrend/service"
	"github.com/dnldd/abletrend/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/shopspring/decimal"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt, syscall.SIGTERM}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

// stores holds the optional persistence layers.
type stores struct {
	journal *database.Database
	local   *database.SQLiteStore
}

// persistTrade stores the provided trade in every configured store.
func (s *stores) persistTrade(ctx context.Context, trade position.Trade) error {
	if s.local != nil {
		err := s.local.PersistTrade(ctx, trade)
		if err != nil {
			return err
		}
	}
	if s.journal != nil {
		err := s.journal.PersistTrade(ctx, trade)
		if err != nil {
			return fmt.Errorf("journaling trade: %w", err)
		}
	}

	return nil
}

// persistAccountState stores the provided account state locally.
func (s *stores) persistAccountState(ctx context.Context, state account.State) error {
	if s.local == nil {
		return nil
	}

	return s.local.PersistAccountState(ctx, state)
}

// persistPosition stores the provided open position locally.
func (s *stores) persistPosition(ctx context.Context, pos *position.Position) error {
	if s.local == nil {
		return nil
	}

	return s.local.PersistPosition(ctx, pos)
}

// restorePosition resumes managing the locally stored open position. The first status refresh
// reconciles it with the broker.
func restorePosition(ctx context.Context, local *database.SQLiteStore, mgr *session.Manager) error {
	pos, err := local.LoadPosition(ctx)
	if err != nil {
		return fmt.Errorf("loading open position: %w", err)
	}
	if pos == nil {
		return nil
	}

	return mgr.Restore(pos)
}

// setup wires the trading service from the provided config.
func setup(ctx context.Context, cfg *Config, cancel context.CancelFunc, logger zerolog.Logger) (*service.Trader, *stores, error) {
	settings, err := engine.LoadSettings(cfg.SettingsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading settings: %w", err)
	}

	e, err := engine.NewEngine(&engine.EngineConfig{Settings: settings, Logger: logger})
	if err != nil {
		return nil, nil, fmt.Errorf("creating engine: %w", err)
	}
	loc := e.Location()

	st := &stores{}
	if cfg.SQLitePath != "" {
		st.local, err = database.NewSQLiteStore(ctx, &database.SQLiteConfig{Path: cfg.SQLitePath, Logger: logger})
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
	}
	if cfg.DBEndpoint != "" {
		st.journal, err = database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.DBEndpoint,
			User:     cfg.DBUser,
			Pass:     cfg.DBPass,
			Ticker:   cfg.Ticker,
			Location: loc,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting trade journal: %w", err)
		}
	}

	tracker, err := account.NewTracker(&account.TrackerConfig{
		PointValue:           cfg.PointValue,
		InitialBalance:       cfg.InitialBalance,
		MaxDrawdown:          cfg.MaxDrawdown,
		RecoveryToLive:       cfg.RecoveryToLive,
		ProbationMaxDrawdown: cfg.ProbationMaxDrawdown,
		Location:             loc,
		Logger:               logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating account tracker: %w", err)
	}

	// Backtests start from a clean slate, live trading resumes the stored ledger.
	var history []position.Trade
	if st.local != nil && !cfg.Backtest {
		history, err = st.local.LoadTrades(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("loading trades: %w", err)
		}

		state, ok, err := st.local.LoadAccountState(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("loading account state: %w", err)
		}
		if !ok {
			state = account.NewState(decimal.NewFromFloat(cfg.InitialBalance))
		}
		tracker.Restore(state, history)

		logger.Info().Msgf("restored %d trades, account %s", len(history), state.String())
	}

	hub := notify.NewHub(&notify.HubConfig{Logger: logger})
	hub.Subscribe(notify.LogSubscriber(logger.With().Str("component", "events").Logger()))

	paperCfg := &broker.PaperConfig{Commission: cfg.PaperCommission, Slippage: cfg.PaperSlippage}
	mgr, err := newSession(hub, tracker, history, st, paperCfg, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	if st.local != nil && !cfg.Backtest {
		err = restorePosition(ctx, st.local, mgr)
		if err != nil {
			return nil, nil, err
		}
	}

	b, err := bot.NewBot(&bot.BotConfig{Engine: e, Session: mgr, Account: tracker, Logger: logger})
	if err != nil {
		return nil, nil, fmt.Errorf("creating bot: %w", err)
	}

	traderCfg := &service.TraderConfig{
		Ticker:            cfg.Ticker,
		Bot:               b,
		Session:           mgr,
		Hub:               hub,
		Backtest:          cfg.Backtest,
		Location:          loc,
		BarCloseDelay:     cfg.BarCloseDelay,
		RefreshInterval:   cfg.RefreshInterval,
		FlatPositionsTime: settings.FlatPositionsTime,
		Cancel:            cancel,
		Logger:            logger,
	}

	switch cfg.Backtest {
	case true:
		traderCfg.Historic, err = fetch.NewHistoricData(&fetch.HistoricDataConfig{
			Ticker:   cfg.Ticker,
			FilePath: cfg.BacktestDataFilepath,
			Location: loc,
			Logger:   logger.With().Str("component", "historicdata").Logger(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating historic data: %w", err)
		}

	case false:
		client, err := fetch.NewFeedClient(&fetch.FeedConfig{
			BaseURL:  cfg.FeedURL,
			APIKey:   cfg.FeedAPIKey,
			Ticker:   cfg.Ticker,
			Location: loc,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating feed client: %w", err)
		}
		traderCfg.Source = fetch.NewFeedSource(&fetch.FeedSourceConfig{Client: client, Logger: logger})
	}

	trader, err := service.NewTrader(traderCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating trader: %w", err)
	}

	return trader, st, nil
}

// newSession creates the session manager. Orders route through paper gateways, a broker
// integration plugs in as the live gateway.
func newSession(hub *notify.Hub, tracker *account.Tracker, history []position.Trade, st *stores,
	paperCfg *broker.PaperConfig, cfg *Config, logger zerolog.Logger) (*session.Manager, error) {
	mgr, err := session.NewManager(&session.ManagerConfig{
		Broker:              broker.NewPaper(paperCfg),
		Paper:               broker.NewPaper(paperCfg),
		Account:             tracker,
		Notify:              hub,
		History:             history,
		PersistTrade:        st.persistTrade,
		PersistAccountState: st.persistAccountState,
		PersistPosition:     st.persistPosition,
		MaxRetries:          cfg.MaxRetries,
		RetryBackoff:        cfg.RetryBackoff,
		Logger:              logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session manager: %w", err)
	}

	return mgr, nil
}

func main() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		logger.Error().Err(err).Msg("loading config")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Error().Err(err).Msg("parsing log level")
		os.Exit(1)
	}
	logger = logger.Level(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trader, st, err := setup(ctx, &cfg, cancel, logger)
	if err != nil {
		logger.Error().Err(err).Msg("setting up trader")
		os.Exit(1)
	}
	if st.local != nil {
		defer st.local.Close()
	}

	go handleTermination(ctx, cancel)
	trader.Run(ctx)
}
