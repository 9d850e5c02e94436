package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/abletrend/account"
	"github.com/dnldd/abletrend/position"
	"github.com/dnldd/abletrend/shared"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

const (
	createLocalTradeTableSQL = `CREATE TABLE IF NOT EXISTS trades (
		id          TEXT PRIMARY KEY,
		direction   INTEGER NOT NULL,
		size        INTEGER NOT NULL,
		entrytime   INTEGER NOT NULL,
		idealentry  REAL,
		actualentry REAL,
		exittime    INTEGER NOT NULL,
		idealexit   REAL,
		actualexit  REAL,
		exitmethod  INTEGER,
		commission  REAL,
		simulated   INTEGER
	)`
	createTradeIndexSQL        = `CREATE INDEX IF NOT EXISTS idx_trades_exit ON trades(exittime)`
	createAccountStateTableSQL = `CREATE TABLE IF NOT EXISTS account_state (
		id             INTEGER PRIMARY KEY CHECK (id = 1),
		simmode        INTEGER NOT NULL,
		probationmode  INTEGER NOT NULL,
		modelbalance   TEXT NOT NULL,
		accbalance     TEXT NOT NULL,
		modelpeak      TEXT NOT NULL,
		accpeak        TEXT NOT NULL,
		latesttrough   TEXT NOT NULL,
		probationstart TEXT NOT NULL,
		updatedon      INTEGER NOT NULL
	)`
	createOpenPositionTableSQL = `CREATE TABLE IF NOT EXISTS open_position (
		id          INTEGER PRIMARY KEY CHECK (id = 1),
		positionid  TEXT NOT NULL,
		direction   INTEGER NOT NULL,
		entrytype   INTEGER NOT NULL,
		entrytime   INTEGER NOT NULL,
		idealentry  REAL NOT NULL,
		actualentry REAL,
		size        INTEGER NOT NULL,
		stop        REAL NOT NULL,
		stopsource  INTEGER NOT NULL,
		entryref    TEXT,
		stopref     TEXT,
		commission  REAL,
		simulated   INTEGER
	)`
	insertTradeSQL = `INSERT OR IGNORE INTO trades(id, direction, size, entrytime, idealentry,
		actualentry, exittime, idealexit, actualexit, exitmethod, commission, simulated)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`
	selectTradesSQL = `SELECT id, direction, size, entrytime, idealentry, actualentry, exittime,
		idealexit, actualexit, exitmethod, commission, simulated FROM trades ORDER BY exittime, entrytime`
	upsertAccountStateSQL = `INSERT INTO account_state(id, simmode, probationmode, modelbalance,
		accbalance, modelpeak, accpeak, latesttrough, probationstart, updatedon)
		VALUES(1,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET simmode = excluded.simmode,
		probationmode = excluded.probationmode, modelbalance = excluded.modelbalance,
		accbalance = excluded.accbalance, modelpeak = excluded.modelpeak,
		accpeak = excluded.accpeak, latesttrough = excluded.latesttrough,
		probationstart = excluded.probationstart, updatedon = excluded.updatedon`
	selectAccountStateSQL = `SELECT simmode, probationmode, modelbalance, accbalance, modelpeak,
		accpeak, latesttrough, probationstart FROM account_state WHERE id = 1`
	upsertOpenPositionSQL = `INSERT INTO open_position(id, positionid, direction, entrytype,
		entrytime, idealentry, actualentry, size, stop, stopsource, entryref, stopref, commission,
		simulated) VALUES(1,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET positionid = excluded.positionid,
		direction = excluded.direction, entrytype = excluded.entrytype,
		entrytime = excluded.entrytime, idealentry = excluded.idealentry,
		actualentry = excluded.actualentry, size = excluded.size, stop = excluded.stop,
		stopsource = excluded.stopsource, entryref = excluded.entryref, stopref = excluded.stopref,
		commission = excluded.commission, simulated = excluded.simulated`
	deleteOpenPositionSQL = `DELETE FROM open_position WHERE id = 1`
	selectOpenPositionSQL = `SELECT positionid, direction, entrytype, entrytime, idealentry,
		actualentry, size, stop, stopsource, entryref, stopref, commission, simulated
		FROM open_position WHERE id = 1`
)

// StateStorer defines the requirements for restoring the bot across restarts.
type StateStorer interface {
	TradeStorer
	// LoadTrades returns the stored trades ordered by exit time.
	LoadTrades(ctx context.Context) ([]position.Trade, error)
	// PersistAccountState stores the provided account state.
	PersistAccountState(ctx context.Context, state account.State) error
	// LoadAccountState returns the stored account state, if one exists.
	LoadAccountState(ctx context.Context) (account.State, bool, error)
	// PersistPosition stores the provided open position, nil clears it.
	PersistPosition(ctx context.Context, pos *position.Position) error
	// LoadPosition returns the stored open position, nil when flat.
	LoadPosition(ctx context.Context) (*position.Position, error)
}

// SQLiteConfig is the configuration for the local state store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string
	// Logger is the store logger.
	Logger zerolog.Logger
}

// SQLiteStore persists trades and account state to a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	mtx    sync.Mutex
	logger zerolog.Logger
}

// Ensure the sqlite store implements the StateStorer interface.
var _ StateStorer = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the SQLite database and runs migrations.
func NewSQLiteStore(ctx context.Context, cfg *SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("no sqlite path provided")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	_, err = db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: cfg.Logger.With().Str("component", "sqlite").Logger(),
	}

	err = s.migrate(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating: %w", err)
	}

	s.logger.Info().Msgf("sqlite store opened: %s", cfg.Path)

	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		createLocalTradeTableSQL,
		createTradeIndexSQL,
		createAccountStateTableSQL,
		createOpenPositionTableSQL,
	}

	for _, stmt := range stmts {
		_, err := s.db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return nil
}

// PersistTrade stores the provided closed trade. Storing a trade twice is a no-op.
func (s *SQLiteStore) PersistTrade(ctx context.Context, trade position.Trade) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	_, err := s.db.ExecContext(ctx, insertTradeSQL, trade.ID, int(trade.Direction), trade.Size,
		trade.EntryTime.UnixMilli(), trade.IdealEntryPrice, trade.ActualEntryPrice,
		trade.ExitTime.UnixMilli(), trade.IdealExitPrice, trade.ActualExitPrice,
		int(trade.ExitMethod), trade.Commission, trade.Simulated)
	if err != nil {
		return fmt.Errorf("inserting trade %s: %w", trade.ID, err)
	}

	return nil
}

// LoadTrades returns the stored trades ordered by exit time.
func (s *SQLiteStore) LoadTrades(ctx context.Context) ([]position.Trade, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	rows, err := s.db.QueryContext(ctx, selectTradesSQL)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var trades []position.Trade
	for rows.Next() {
		var trade position.Trade
		var direction, method int
		var entryTime, exitTime int64

		err := rows.Scan(&trade.ID, &direction, &trade.Size, &entryTime, &trade.IdealEntryPrice,
			&trade.ActualEntryPrice, &exitTime, &trade.IdealExitPrice, &trade.ActualExitPrice,
			&method, &trade.Commission, &trade.Simulated)
		if err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}

		trade.Direction = shared.Direction(direction)
		trade.ExitMethod = shared.ExitMethod(method)
		trade.EntryTime = time.UnixMilli(entryTime)
		trade.ExitTime = time.UnixMilli(exitTime)
		trades = append(trades, trade)
	}

	return trades, rows.Err()
}

// PersistAccountState stores the provided account state, replacing the previous one.
func (s *SQLiteStore) PersistAccountState(ctx context.Context, state account.State) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	_, err := s.db.ExecContext(ctx, upsertAccountStateSQL, state.SimMode, state.ProbationMode,
		state.ModelBalance.String(), state.AccBalance.String(), state.ModelPeak.String(),
		state.AccPeak.String(), state.LatestTrough.String(), state.ProbationStart.String(),
		time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upserting account state: %w", err)
	}

	return nil
}

// LoadAccountState returns the stored account state. The boolean is false when no state
// has been stored yet.
func (s *SQLiteStore) LoadAccountState(ctx context.Context) (account.State, bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var state account.State
	var balances [6]string

	err := s.db.QueryRowContext(ctx, selectAccountStateSQL).Scan(&state.SimMode, &state.ProbationMode,
		&balances[0], &balances[1], &balances[2], &balances[3], &balances[4], &balances[5])
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return account.State{}, false, nil
	case err != nil:
		return account.State{}, false, fmt.Errorf("querying account state: %w", err)
	}

	fields := []*decimal.Decimal{&state.ModelBalance, &state.AccBalance, &state.ModelPeak,
		&state.AccPeak, &state.LatestTrough, &state.ProbationStart}
	for idx, field := range fields {
		value, err := decimal.NewFromString(balances[idx])
		if err != nil {
			return account.State{}, false, fmt.Errorf("parsing account balance %q: %w", balances[idx], err)
		}
		*field = value
	}

	return state, true, nil
}

// PersistPosition stores the provided open position, replacing the previous one. A nil position
// clears the stored one.
func (s *SQLiteStore) PersistPosition(ctx context.Context, pos *position.Position) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if pos == nil {
		_, err := s.db.ExecContext(ctx, deleteOpenPositionSQL)
		if err != nil {
			return fmt.Errorf("clearing open position: %w", err)
		}

		return nil
	}

	_, err := s.db.ExecContext(ctx, upsertOpenPositionSQL, pos.ID, int(pos.Direction),
		int(pos.EntryType), pos.EntryTime.UnixMilli(), pos.IdealEntryPrice, pos.ActualEntryPrice,
		pos.Size, pos.StopLoss.Stop, int(pos.StopLoss.Source), pos.EntryOrderRef, pos.StopOrderRef,
		pos.Commission, pos.Simulated)
	if err != nil {
		return fmt.Errorf("upserting open position %s: %w", pos.ID, err)
	}

	return nil
}

// LoadPosition returns the stored open position, nil when none is stored.
func (s *SQLiteStore) LoadPosition(ctx context.Context) (*position.Position, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var pos position.Position
	var direction, entryType, source int
	var entryTime int64
	var actualEntry sql.NullFloat64

	err := s.db.QueryRowContext(ctx, selectOpenPositionSQL).Scan(&pos.ID, &direction, &entryType,
		&entryTime, &pos.IdealEntryPrice, &actualEntry, &pos.Size, &pos.StopLoss.Stop, &source,
		&pos.EntryOrderRef, &pos.StopOrderRef, &pos.Commission, &pos.Simulated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("querying open position: %w", err)
	}

	pos.Direction = shared.Direction(direction)
	pos.EntryType = shared.EntryType(entryType)
	pos.StopLoss.Source = shared.StopLossSource(source)
	pos.EntryTime = time.UnixMilli(entryTime)
	if actualEntry.Valid {
		price := actualEntry.Float64
		pos.ActualEntryPrice = &price
	}

	return &pos, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
