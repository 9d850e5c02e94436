package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/abletrend/account"
	"github.com/dnldd/abletrend/broker"
	"github.com/dnldd/abletrend/engine"
	"github.com/dnldd/abletrend/notify"
	"github.com/dnldd/abletrend/position"
	"github.com/dnldd/abletrend/shared"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// defaultActionTimeout is the time an action's broker workflow is allowed to take once
	// started, even when the caller's context is cancelled.
	defaultActionTimeout = time.Second * 30
)

var (
	// ErrRetriesExhausted is returned when a broker call kept failing for every allowed attempt.
	ErrRetriesExhausted = errors.New("broker retries exhausted")
	// ErrUnmanagedExposure is returned when the broker holds exposure the session cannot manage.
	// The session force flattens before returning it.
	ErrUnmanagedExposure = errors.New("unmanaged broker exposure")
	// ErrBatchDropped is delivered to a batch that could not be queued for processing.
	ErrBatchDropped = errors.New("action batch dropped")
)

// ManagerConfig represents the session manager configuration.
type ManagerConfig struct {
	// Broker routes live orders.
	Broker broker.Gateway
	// Paper routes orders while the account is in sim mode. Optional.
	Paper broker.Gateway
	// Account tracks the account books. Optional.
	Account *account.Tracker
	// Notify receives session events.
	Notify notify.Sink
	// History is the trade history the ledger starts with.
	History []position.Trade
	// PersistTrade persists the provided closed trade. Optional.
	PersistTrade func(ctx context.Context, trade position.Trade) error
	// PersistAccountState persists the provided account state. Optional.
	PersistAccountState func(ctx context.Context, state account.State) error
	// PersistPosition persists the provided open position, nil once flat. Optional.
	PersistPosition func(ctx context.Context, pos *position.Position) error
	// MaxRetries is the number of attempts a broker call gets.
	MaxRetries int
	// RetryBackoff is the delay before the second attempt, later attempts wait linearly longer.
	RetryBackoff time.Duration
	// ActionTimeout bounds the broker workflow of a single action.
	ActionTimeout time.Duration
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if cfg.Broker == nil {
		errs = errors.Join(errs, fmt.Errorf("no broker gateway provided"))
	}
	if cfg.Notify == nil {
		errs = errors.Join(errs, fmt.Errorf("no notification sink provided"))
	}
	if cfg.MaxRetries < 1 {
		errs = errors.Join(errs, fmt.Errorf("max retries must be at least 1, got %d", cfg.MaxRetries))
	}
	if cfg.RetryBackoff < 0 {
		errs = errors.Join(errs, fmt.Errorf("retry backoff cannot be negative"))
	}

	return errs
}

// ActionBatch represents the trade actions decided for a bar.
type ActionBatch struct {
	Actions []engine.TradeAction
	// Done receives the processing outcome and is closed afterwards. It must have room for the
	// outcome. Optional.
	Done chan error
}

// Manager executes trade actions against the broker. It owns the single open position and the
// trade ledger, actions are processed one bar at a time and each bar at most once.
type Manager struct {
	cfg           *ManagerConfig
	tracker       *position.Tracker
	processMtx    sync.Mutex
	lastProcessed atomic.Int64
	lastBarTime   atomic.Time
	refreshing    atomic.Bool
	batches       chan ActionBatch
	logger        zerolog.Logger
}

// NewManager initializes a new session manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating session config: %w", err)
	}

	if cfg.ActionTimeout == 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}

	return &Manager{
		cfg:     cfg,
		tracker: position.NewTracker(position.NewLedger(cfg.History...)),
		batches: make(chan ActionBatch, bufferSize),
		logger:  cfg.Logger.With().Str("component", "session").Logger(),
	}, nil
}

// Position returns a snapshot of the open position, nil when flat.
func (m *Manager) Position() *position.Position {
	return m.tracker.Current()
}

// Trades returns the closed trades of the session.
func (m *Manager) Trades() []position.Trade {
	return m.tracker.Ledger().Trades()
}

// LastProcessed returns the identifier of the last processed bar.
func (m *Manager) LastProcessed() int64 {
	return m.lastProcessed.Load()
}

// Restore resumes managing the provided open position, typically after a restart.
func (m *Manager) Restore(pos *position.Position) error {
	m.processMtx.Lock()
	defer m.processMtx.Unlock()

	err := m.tracker.Open(pos)
	if err != nil {
		return fmt.Errorf("restoring position: %w", err)
	}

	m.logger.Info().Msgf("restored %s", pos.String())
	m.notifyStatus()

	return nil
}

// gateway returns the gateway new positions are routed to and whether it is simulated.
func (m *Manager) gateway() (broker.Gateway, bool) {
	if m.cfg.Account != nil && m.cfg.Paper != nil && m.cfg.Account.SimMode() {
		return m.cfg.Paper, true
	}

	return m.cfg.Broker, false
}

// gatewayFor returns the gateway the provided position was opened on.
func (m *Manager) gatewayFor(pos *position.Position) broker.Gateway {
	if pos.Simulated && m.cfg.Paper != nil {
		return m.cfg.Paper
	}

	return m.cfg.Broker
}

// now returns the time of the last processed bar, falling back to the wall clock.
func (m *Manager) now() time.Time {
	at := m.lastBarTime.Load()
	if at.IsZero() {
		return time.Now()
	}

	return at
}

// notifyStatus publishes the current position status.
func (m *Manager) notifyStatus() {
	_, simulated := m.gateway()
	m.cfg.Notify.OnPositionStatusChanged(notify.Status{
		Position: m.tracker.Current(),
		SimMode:  simulated,
		At:       m.now(),
	})
}

// clientID returns the idempotency key of an order leg for the provided bar and position.
func clientID(barTime time.Time, leg string, positionID string) string {
	return fmt.Sprintf("%d-%s-%s", shared.BarID(barTime), leg, positionID)
}

// SendActions relays the provided action batch for processing.
func (m *Manager) SendActions(batch ActionBatch) {
	select {
	case m.batches <- batch:
		// do nothing.
	default:
		m.logger.Error().Msgf("action batch channel at capacity: %d/%d",
			len(m.batches), bufferSize)

		if batch.Done != nil {
			batch.Done <- ErrBatchDropped
			close(batch.Done)
		}
	}
}

// Process executes the provided actions of a single bar. Actions of a bar that is not newer than
// the last processed bar are ignored. A bar is marked processed even when its actions fail so a
// failing broker is not hammered on the same bar again.
func (m *Manager) Process(ctx context.Context, actions []engine.TradeAction) error {
	if len(actions) == 0 {
		return nil
	}

	barTime := actions[0].BarTime
	id := shared.BarID(barTime)

	m.processMtx.Lock()
	defer m.processMtx.Unlock()

	if id <= m.lastProcessed.Load() {
		m.logger.Debug().Msgf("actions for bar %s already processed", barTime.Format(shared.DateLayout))
		return nil
	}

	m.lastProcessed.Store(id)
	m.lastBarTime.Store(barTime)

	// Started broker workflows run to completion even when the caller is shutting down.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ActionTimeout)
	defer cancel()

	for idx := range actions {
		action := actions[idx]
		m.cfg.Notify.OnAction(action)

		err := m.execute(actx, action)
		if err != nil {
			return fmt.Errorf("executing %s for bar %s: %w", action.Kind.String(),
				barTime.Format(shared.DateLayout), err)
		}
	}

	return nil
}

// execute runs the broker workflow of the provided action.
func (m *Manager) execute(ctx context.Context, action engine.TradeAction) error {
	switch action.Kind {
	case engine.NoAction:
		return nil
	case engine.OpenPosition:
		return m.openPosition(ctx, action)
	case engine.UpdateStop:
		return m.updateStop(ctx, action)
	case engine.VerifyPositionClosed, engine.ForceClosePosition:
		_, err := m.exitPosition(ctx, action.BarTime, action.ExitPrice, action.ExitMethod)
		return err
	case engine.ReversePosition:
		return m.reversePosition(ctx, action)
	default:
		return fmt.Errorf("unknown action kind %d", action.Kind)
	}
}

// openPosition enters the action's position at market and rests its protective stop.
func (m *Manager) openPosition(ctx context.Context, action engine.TradeAction) error {
	if action.Position == nil {
		return fmt.Errorf("open action carries no position")
	}

	if cur := m.tracker.Current(); cur != nil {
		m.logger.Warn().Msgf("ignoring %s open, %s: %s", action.Position.Direction.String(),
			position.ErrPositionExists, cur.String())
		return nil
	}

	gw, simulated := m.gateway()
	pos := action.Position.Clone()
	pos.Simulated = simulated

	order := broker.Order{
		ClientID:  clientID(action.BarTime, "entry", pos.ID),
		Direction: pos.Direction,
		Size:      pos.Size,
		Price:     pos.IdealEntryPrice,
		Time:      action.BarTime,
	}

	fill, err := m.placeMarketOrder(ctx, gw, order)
	if err != nil {
		return err
	}

	price := fill.Price
	pos.ActualEntryPrice = &price
	pos.EntryOrderRef = fill.OrderID
	pos.Commission = fill.Commission

	err = m.tracker.Open(pos)
	if err != nil {
		return err
	}

	m.logger.Info().Msgf("opened %s via %s", pos.String(), gw.Name())

	stop := broker.Order{
		ClientID:  clientID(action.BarTime, "stop", pos.ID),
		Direction: pos.Direction.Opposite(),
		Size:      pos.Size,
		Price:     pos.StopLoss.Stop,
		Time:      action.BarTime,
	}

	ref, err := m.placeStopOrder(ctx, gw, stop)
	if err != nil {
		return m.escalate(ctx, gw, pkgerrors.Wrapf(err, "protecting %s", pos.String()))
	}

	err = m.tracker.SetStopOrderRef(ref)
	if err != nil {
		return err
	}

	m.persistPosition(ctx)
	m.notifyStatus()

	return nil
}

// placeMarketOrder places the provided market order. A duplicate client id means an earlier
// attempt went through, its fill is recovered from the trade history.
func (m *Manager) placeMarketOrder(ctx context.Context, gw broker.Gateway, order broker.Order) (*broker.Fill, error) {
	op := fmt.Sprintf("placing %s market order", order.Direction.String())
	fill, err := retry(ctx, m.logger, m.cfg.MaxRetries, m.cfg.RetryBackoff, op,
		func(ctx context.Context) (*broker.Fill, error) {
			return gw.PlaceMarketOrder(ctx, order)
		})
	if err == nil {
		return fill, nil
	}

	if !errors.Is(err, broker.ErrAlreadyRegistered) {
		return nil, err
	}

	fills, herr := retry(ctx, m.logger, m.cfg.MaxRetries, m.cfg.RetryBackoff, "fetching recent trades",
		func(ctx context.Context) ([]broker.Fill, error) {
			return gw.RecentTrades(ctx)
		})
	if herr != nil {
		return nil, herr
	}

	for idx := len(fills) - 1; idx >= 0; idx-- {
		if fills[idx].ClientID == order.ClientID {
			return &fills[idx], nil
		}
	}

	m.logger.Warn().Msgf("no fill recorded for duplicate order %s, assuming %.2f", order.ClientID, order.Price)

	return &broker.Fill{
		ClientID:  order.ClientID,
		Direction: order.Direction,
		Size:      order.Size,
		Price:     order.Price,
		Time:      order.Time,
	}, nil
}

// placeStopOrder rests the provided stop order. A duplicate client id means an earlier attempt
// went through, the client id then stands in for the order reference.
func (m *Manager) placeStopOrder(ctx context.Context, gw broker.Gateway, order broker.Order) (string, error) {
	op := fmt.Sprintf("placing %s stop order @ %.2f", order.Direction.String(), order.Price)
	ref, err := retry(ctx, m.logger, m.cfg.MaxRetries, m.cfg.RetryBackoff, op,
		func(ctx context.Context) (string, error) {
			return gw.PlaceStopOrder(ctx, order)
		})
	if errors.Is(err, broker.ErrAlreadyRegistered) {
		return order.ClientID, nil
	}

	return ref, err
}

// updateStop moves the resting stop of the open position. Stops never loosen.
func (m *Manager) updateStop(ctx context.Context, action engine.TradeAction) error {
	cur := m.tracker.Current()
	if cur == nil {
		return fmt.Errorf("updating stop: %w", position.ErrNoPosition)
	}

	if !position.MoreFavorable(cur.Direction, action.Stop.Stop, cur.StopLoss.Stop) {
		m.logger.Debug().Msgf("ignoring stop %s, %s holds", action.Stop.String(), cur.StopLoss.String())
		return nil
	}

	gw := m.gatewayFor(cur)
	ref := cur.StopOrderRef

	var err error
	switch ref {
	case "":
		ref, err = m.placeStopOrder(ctx, gw, broker.Order{
			ClientID:  clientID(action.BarTime, "stop", cur.ID),
			Direction: cur.Direction.Opposite(),
			Size:      cur.Size,
			Price:     action.Stop.Stop,
			Time:      action.BarTime,
		})
	default:
		op := fmt.Sprintf("moving stop to %.2f", action.Stop.Stop)
		err = retryErr(ctx, m.logger, m.cfg.MaxRetries, m.cfg.RetryBackoff, op,
			func(ctx context.Context) error {
				return gw.ModifyStopOrder(ctx, ref, action.Stop.Stop)
			})
	}

	if errors.Is(err, broker.ErrUnknownOrder) {
		// The stop is gone at the broker, most likely filled since the last bar.
		m.logger.Warn().Msgf("stop order %s unknown to %s, reconciling", ref, gw.Name())
		err = m.reconcile(ctx, gw)
		if err != nil {
			return err
		}
		if m.tracker.Current() == nil {
			return nil
		}

		// The broker still holds the position without a resting stop.
		ref, err = m.placeStopOrder(ctx, gw, broker.Order{
			ClientID:  clientID(action.BarTime, "restop", cur.ID),
			Direction: cur.Direction.Opposite(),
			Size:      cur.Size,
			Price:     action.Stop.Stop,
			Time:      action.BarTime,
		})
		if err != nil {
			return m.escalate(ctx, gw, pkgerrors.Wrapf(err, "replacing the stop of %s", cur.String()))
		}

		m.logger.Info().Msgf("replaced missing stop of %s with %s", cur.String(), ref)
	}
	if err != nil {
		return err
	}

	_, err = m.tracker.UpdateStop(action.Stop, ref)
	if err != nil {
		return err
	}

	m.persistPosition(ctx)
	m.notifyStatus()

	return nil
}

// exitPosition closes the open position. When the broker is already flat the stop filled between
// polls and the exit fill is recovered from the trade history, otherwise the resting stop is
// cancelled and the position closed at market.
func (m *Manager) exitPosition(ctx context.Context, at time.Time, exitPrice float64, method shared.ExitMethod) (*position.Trade, error) {
	cur := m.tracker.Current()
	if cur == nil {
		m.logger.Warn().Msgf("no open position to close (%s)", method.String())
		return nil, nil
	}

	gw := m.gatewayFor(cur)

	holding, err := m.currentPosition(ctx, gw)
	if err != nil {
		return nil, err
	}

	switch holding.Direction() {
	case shared.NoDirection:
		fill, err := m.findExitFill(ctx, gw, cur)
		if err != nil {
			return nil, err
		}

		return m.settle(ctx, cur, at, exitPrice, fill, method)

	case cur.Direction:
		if cur.StopOrderRef != "" {
			err = m.cancelOrder(ctx, gw, cur.StopOrderRef)
			if err != nil {
				return nil, err
			}
		}

		fill, err := m.placeMarketOrder(ctx, gw, broker.Order{
			ClientID:  clientID(at, "exit", cur.ID),
			Direction: cur.Direction.Opposite(),
			Size:      cur.Size,
			Price:     exitPrice,
			Time:      at,
		})
		if err != nil {
			return nil, err
		}

		return m.settle(ctx, cur, at, exitPrice, fill, method)

	default:
		return nil, m.escalate(ctx, gw, pkgerrors.Errorf("broker holds %d contracts against %s",
			holding.Size, cur.String()))
	}
}

// reversePosition closes the open position and opens the opposite one once the broker confirms
// the account is flat.
func (m *Manager) reversePosition(ctx context.Context, action engine.TradeAction) error {
	// Settling the exit can move the account between gateways, the checkpoint queries the one
	// the exit went through.
	gw, _ := m.gateway()
	if cur := m.tracker.Current(); cur != nil {
		gw = m.gatewayFor(cur)
	}

	_, err := m.exitPosition(ctx, action.BarTime, action.ExitPrice, action.ExitMethod)
	if err != nil {
		return err
	}

	// Settlement checkpoint.
	holding, err := m.currentPosition(ctx, gw)
	if err != nil {
		return err
	}
	if !holding.Flat() {
		return m.escalate(ctx, gw, pkgerrors.Errorf("broker holds %d contracts after closing for a reversal",
			holding.Size))
	}

	return m.openPosition(ctx, engine.TradeAction{
		Kind:     engine.OpenPosition,
		BarTime:  action.BarTime,
		Position: action.Position,
		Reason:   action.Reason,
	})
}

// currentPosition fetches the broker's view of the account position.
func (m *Manager) currentPosition(ctx context.Context, gw broker.Gateway) (*broker.Holding, error) {
	return retry(ctx, m.logger, m.cfg.MaxRetries, m.cfg.RetryBackoff, "fetching current position",
		func(ctx context.Context) (*broker.Holding, error) {
			return gw.CurrentPosition(ctx)
		})
}

// cancelOrder cancels the referenced order, orders unknown to the broker count as cancelled.
func (m *Manager) cancelOrder(ctx context.Context, gw broker.Gateway, ref string) error {
	err := retryErr(ctx, m.logger, m.cfg.MaxRetries, m.cfg.RetryBackoff, "cancelling order "+ref,
		func(ctx context.Context) error {
			return gw.CancelOrder(ctx, ref)
		})
	if errors.Is(err, broker.ErrUnknownOrder) {
		return nil
	}

	return err
}

// findExitFill looks up the most recent fill closing the provided position. Nil is returned when
// the history has none.
func (m *Manager) findExitFill(ctx context.Context, gw broker.Gateway, pos *position.Position) (*broker.Fill, error) {
	fills, err := retry(ctx, m.logger, m.cfg.MaxRetries, m.cfg.RetryBackoff, "fetching recent trades",
		func(ctx context.Context) ([]broker.Fill, error) {
			return gw.RecentTrades(ctx)
		})
	if err != nil {
		return nil, err
	}

	exitDirection := pos.Direction.Opposite()
	for idx := len(fills) - 1; idx >= 0; idx-- {
		fill := fills[idx]
		if fill.Direction == exitDirection && fill.OrderID != pos.EntryOrderRef && !fill.Time.Before(pos.EntryTime) {
			return &fill, nil
		}
	}

	m.logger.Warn().Msgf("no exit fill found for %s in %d recent trades", pos.String(), len(fills))

	return nil, nil
}

// settle closes the tracked position with the provided exit fill, updates the account books and
// publishes the trade. A nil fill settles at the ideal exit price.
func (m *Manager) settle(ctx context.Context, pos *position.Position, at time.Time, exitPrice float64,
	fill *broker.Fill, method shared.ExitMethod) (*position.Trade, error) {
	var actual *float64
	var commission float64
	if fill != nil {
		price := fill.Price
		actual = &price
		commission = fill.Commission
	}

	trade, err := m.tracker.Close(at, exitPrice, actual, method, commission)
	if err != nil {
		return nil, err
	}

	m.logger.Info().Msgf("closed %s", trade.String())
	m.cfg.Notify.OnTradeClosed(*trade)

	if m.cfg.PersistTrade != nil {
		err = m.cfg.PersistTrade(ctx, *trade)
		if err != nil {
			m.logger.Error().Err(err).Msgf("persisting trade %s", trade.ID)
		}
	}

	if m.cfg.Account != nil {
		state := m.cfg.Account.Settle(*trade)
		if m.cfg.PersistAccountState != nil {
			err = m.cfg.PersistAccountState(ctx, state)
			if err != nil {
				m.logger.Error().Err(err).Msg("persisting account state")
			}
		}
	}

	m.persistPosition(ctx)
	m.notifyStatus()

	return trade, nil
}

// persistPosition stores the open position, clearing the stored one once flat.
func (m *Manager) persistPosition(ctx context.Context) {
	if m.cfg.PersistPosition == nil {
		return
	}

	cur := m.tracker.Current()
	err := m.cfg.PersistPosition(ctx, cur)
	if err != nil {
		m.logger.Error().Err(err).Msgf("persisting open position %s", spew.Sdump(cur))
	}
}

// reconcile closes the tracked position if the broker no longer holds it.
func (m *Manager) reconcile(ctx context.Context, gw broker.Gateway) error {
	cur := m.tracker.Current()
	if cur == nil {
		return nil
	}

	holding, err := m.currentPosition(ctx, gw)
	if err != nil {
		return err
	}

	switch holding.Direction() {
	case cur.Direction:
		return nil

	case shared.NoDirection:
		fill, err := m.findExitFill(ctx, gw, cur)
		if err != nil {
			return err
		}

		at := m.now()
		if fill != nil {
			at = fill.Time
		}

		_, err = m.settle(ctx, cur, at, cur.StopLoss.Stop, fill, shared.ExitMethodFor(cur.StopLoss.Source))
		return err

	default:
		return m.escalate(ctx, gw, pkgerrors.Errorf("broker holds %d contracts against %s", holding.Size,
			cur.String()))
	}
}

// RefreshStatus reconciles the tracked position with the broker, catching stops filled between
// bars. Overlapping refreshes are skipped.
func (m *Manager) RefreshStatus(ctx context.Context) error {
	if !m.refreshing.CompareAndSwap(false, true) {
		m.logger.Debug().Msg("status refresh already in progress")
		return nil
	}
	defer m.refreshing.Store(false)

	m.processMtx.Lock()
	defer m.processMtx.Unlock()

	cur := m.tracker.Current()
	if cur == nil {
		return nil
	}

	return m.reconcile(ctx, m.gatewayFor(cur))
}

// escalate force flattens after the provided unrecoverable error and reports the exposure.
func (m *Manager) escalate(ctx context.Context, gw broker.Gateway, cause error) error {
	m.logger.Error().Stack().Err(cause).Msgf("unmanaged exposure on %s, force flattening", gw.Name())

	err := m.forceFlatten(ctx, gw)
	if err != nil {
		m.logger.Error().Err(err).Msgf("force flattening: %s", spew.Sdump(m.tracker.Current()))
	}

	return pkgerrors.Wrapf(ErrUnmanagedExposure, "%v", cause)
}

// ForceFlatten cancels the resting stop and liquidates every contract held at the broker. It is
// the recovery path for unknown broker state.
func (m *Manager) ForceFlatten(ctx context.Context) error {
	m.processMtx.Lock()
	defer m.processMtx.Unlock()

	gw, _ := m.gateway()
	if cur := m.tracker.Current(); cur != nil {
		gw = m.gatewayFor(cur)
	}

	return m.forceFlatten(ctx, gw)
}

// forceFlatten liquidates the broker position and closes the tracked position.
//
// This assumes the caller is holding the process lock.
func (m *Manager) forceFlatten(ctx context.Context, gw broker.Gateway) error {
	cur := m.tracker.Current()
	if cur != nil && cur.StopOrderRef != "" {
		err := m.cancelOrder(ctx, gw, cur.StopOrderRef)
		if err != nil {
			m.logger.Error().Err(err).Msgf("cancelling stop order %s", cur.StopOrderRef)
		}
	}

	holding, err := m.currentPosition(ctx, gw)
	if err != nil {
		return err
	}

	at := m.now()
	var fill *broker.Fill
	if !holding.Flat() {
		size := holding.Size
		if size < 0 {
			size = -size
		}

		price := holding.AvgPrice
		if cur != nil {
			price = cur.StopLoss.Stop
		}

		fill, err = m.placeMarketOrder(ctx, gw, broker.Order{
			ClientID:  clientID(at, "flatten", fmt.Sprintf("%d", time.Now().UnixNano())),
			Direction: holding.Direction().Opposite(),
			Size:      size,
			Price:     price,
			Time:      at,
		})
		if err != nil {
			return err
		}
	}

	if cur == nil {
		return nil
	}

	exitPrice := cur.StopLoss.Stop
	if fill != nil {
		exitPrice = fill.Price
	}

	_, err = m.settle(ctx, cur, at, exitPrice, fill, shared.ForceFlattened)
	return err
}

// Run manages the lifecycle processes of the session manager.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-m.batches:
			err := m.Process(ctx, batch.Actions)
			if err != nil {
				m.logger.Error().Err(err).Msg("processing actions")
			}

			if batch.Done != nil {
				batch.Done <- err
				close(batch.Done)
			}
		}
	}
}
