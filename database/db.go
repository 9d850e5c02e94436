package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/abletrend/position"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// SQL statements.
	createTradeTableSQL    = "CREATE TABLE IF NOT EXISTS trade (id TEXT PRIMARY KEY, ticker TEXT, direction INTEGER, size INTEGER, entrytime INTEGER, idealentry REAL, actualentry REAL, exittime INTEGER, idealexit REAL, actualexit REAL, exitmethod INTEGER, commission REAL, simulated INTEGER)"
	createMetadataTableSQL = "CREATE TABLE IF NOT EXISTS metadata (id TEXT PRIMARY KEY, total INTEGER, wins INTEGER, winpoints REAL, losses INTEGER, losspoints REAL, createdon INTEGER)"
	persistTradeSQL        = "INSERT OR IGNORE INTO trade(id, ticker, direction, size, entrytime, idealentry, actualentry, exittime, idealexit, actualexit, exitmethod, commission, simulated) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)"
	findMetadataSQL        = "SELECT * FROM metadata WHERE id = ?"
	updateMetadataSQL      = "UPDATE metadata SET total = total + 1, wins = wins + ?, winpoints = winpoints + ?, losses = losses + ?, losspoints = losspoints + ? WHERE id = ?"
	persistMetadataSQL     = "INSERT INTO metadata(id, total, wins, winpoints, losses, losspoints, createdon) VALUES(?,?,?,?,?,?,?)"
)

// TradeStorer defines the requirements for storing trades.
type TradeStorer interface {
	// PersistTrade stores the provided closed trade.
	PersistTrade(ctx context.Context, trade position.Trade) error
}

// DatabaseConfig is the configuration for the rqlite trade journal.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Ticker is the traded instrument, recorded with every trade.
	Ticker string
	// Location is the exchange location metadata ids are derived in.
	Location *time.Location
	// Logger is the database logger.
	Logger zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *DatabaseConfig) Validate() error {
	var errs error
	if cfg.Endpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("no database endpoint provided"))
	}
	if cfg.Ticker == "" {
		errs = errors.Join(errs, fmt.Errorf("no ticker provided"))
	}
	if cfg.Location == nil {
		errs = errors.Join(errs, fmt.Errorf("no location provided"))
	}

	return errs
}

// Database represents the rqlite trade journal.
type Database struct {
	cfg    *DatabaseConfig
	client *rqlitehttp.Client
	logger zerolog.Logger
}

// Ensure the database implements the TradeStorer interface.
var _ TradeStorer = (*Database)(nil)

// NewDatabase initializes a new database connection.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating database config: %w", err)
	}

	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		client: client,
		logger: cfg.Logger.With().Str("component", "rqlite").Logger(),
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// bootstrap initializes the database.
func (db *Database) bootstrap(ctx context.Context) error {
	resp, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createMetadataTableSQL},
		{SQL: createTradeTableSQL},
	}, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}
	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("creating tables: %d -> %s", idx, errStr)
	}

	return nil
}

// generateMetadataID generates deterministic ids for metadata using the
// month, week and ticker of the provided time.
func generateMetadataID(at time.Time, ticker string) string {
	month := at.Month().String()
	week := at.Day() / 7

	return fmt.Sprintf("%s-Week-%d-%s", month, week, ticker)
}

// tally returns the metadata increments for the provided trade.
func tally(trade *position.Trade) (int, float64, int, float64, bool) {
	profit := trade.Profit()
	switch {
	case profit > 0:
		return 1, profit, 0, 0, true
	case profit < 0:
		return 0, 0, 1, profit, true
	default:
		return 0, 0, 0, 0, false
	}
}

// PersistTrade stores the provided closed trade and updates the weekly metadata.
func (db *Database) PersistTrade(ctx context.Context, trade position.Trade) error {
	resp, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: persistTradeSQL,
			PositionalParams: []any{trade.ID, db.cfg.Ticker, int(trade.Direction), trade.Size,
				trade.EntryTime.Unix(), trade.IdealEntryPrice, trade.ActualEntryPrice,
				trade.ExitTime.Unix(), trade.IdealExitPrice, trade.ActualExitPrice,
				int(trade.ExitMethod), trade.Commission, trade.Simulated},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}
	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("persisting trade %s: %d -> %s", trade.ID, idx, errStr)
	}

	win, winPoints, loss, lossPoints, ok := tally(&trade)
	if !ok {
		db.logger.Debug().Msgf("breakeven trade not tallied in metadata: %s", spew.Sdump(trade))
	}

	at := trade.ExitTime.In(db.cfg.Location)
	id := generateMetadataID(at, db.cfg.Ticker)
	qresp, err := db.client.QuerySingle(ctx, findMetadataSQL, id)
	if err != nil {
		return err
	}

	exists := len(qresp.GetQueryResultsAssoc()) > 0
	statements := rqlitehttp.SQLStatements{
		{
			SQL:              updateMetadataSQL,
			PositionalParams: []any{win, winPoints, loss, lossPoints, id},
		},
	}
	if !exists {
		statements = rqlitehttp.SQLStatements{
			{
				SQL:              persistMetadataSQL,
				PositionalParams: []any{id, 1, win, winPoints, loss, lossPoints, at.Unix()},
			},
		}
	}

	resp, err = db.client.Execute(ctx, statements,
		&rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}
	has, idx, errStr = resp.HasError()
	if has {
		return fmt.Errorf("updating metadata %s: %d -> %s", id, idx, errStr)
	}

	return nil
}
