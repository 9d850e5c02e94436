package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/dnldd/abletrend/shared"
	"github.com/google/uuid"
)

const (
	// maxPaperFills is the number of fills retained by the paper gateway.
	maxPaperFills = 256
)

// PaperConfig represents the paper gateway configuration.
type PaperConfig struct {
	// Commission is the commission charged per contract per fill.
	Commission float64
	// Slippage is the number of points market fills are worsened by.
	Slippage float64
}

type restingStop struct {
	order Order
}

// Paper is a simulated gateway used for backtests and paper trading. Market orders fill at the
// order's reference price, stop orders rest until cancelled.
type Paper struct {
	cfg      *PaperConfig
	holding  Holding
	stops    map[string]*restingStop
	clientID map[string]struct{}
	fills    []Fill
	mtx      sync.Mutex
}

// Ensure the paper gateway implements the Gateway interface.
var _ Gateway = (*Paper)(nil)

// NewPaper initializes a new paper gateway.
func NewPaper(cfg *PaperConfig) *Paper {
	if cfg == nil {
		cfg = &PaperConfig{}
	}

	return &Paper{
		cfg:      cfg,
		stops:    make(map[string]*restingStop),
		clientID: make(map[string]struct{}),
		fills:    make([]Fill, 0, maxPaperFills),
	}
}

// Name identifies the gateway.
func (p *Paper) Name() string {
	return "paper"
}

// register guards against duplicate client order ids. Callers must hold the lock.
func (p *Paper) register(clientID string) error {
	if clientID == "" {
		return nil
	}

	if _, ok := p.clientID[clientID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, clientID)
	}

	p.clientID[clientID] = struct{}{}

	return nil
}

// PlaceMarketOrder fills the provided order at its reference price.
func (p *Paper) PlaceMarketOrder(ctx context.Context, order Order) (*Fill, error) {
	if order.Size <= 0 {
		return nil, fmt.Errorf("%w: order size must be positive", ErrRejected)
	}
	if order.Price <= 0 {
		return nil, fmt.Errorf("%w: paper market orders require a reference price", ErrRejected)
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	err := p.register(order.ClientID)
	if err != nil {
		return nil, err
	}

	price := order.Price
	switch order.Direction {
	case shared.Long:
		price += p.cfg.Slippage
		p.holding.Size += order.Size
	case shared.Short:
		price -= p.cfg.Slippage
		p.holding.Size -= order.Size
	default:
		return nil, fmt.Errorf("%w: unexpected order direction %s", ErrRejected, order.Direction.String())
	}

	switch {
	case p.holding.Size == 0:
		p.holding.AvgPrice = 0
	default:
		p.holding.AvgPrice = price
	}

	fill := Fill{
		OrderID:    uuid.New().String(),
		ClientID:   order.ClientID,
		Direction:  order.Direction,
		Size:       order.Size,
		Price:      price,
		Time:       order.Time,
		Commission: p.cfg.Commission * float64(order.Size),
	}

	if len(p.fills) == maxPaperFills {
		p.fills = p.fills[1:]
	}
	p.fills = append(p.fills, fill)

	return &fill, nil
}

// PlaceStopOrder rests the provided stop order.
func (p *Paper) PlaceStopOrder(ctx context.Context, order Order) (string, error) {
	if order.Size <= 0 {
		return "", fmt.Errorf("%w: order size must be positive", ErrRejected)
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	err := p.register(order.ClientID)
	if err != nil {
		return "", err
	}

	ref := uuid.New().String()
	p.stops[ref] = &restingStop{order: order}

	return ref, nil
}

// ModifyStopOrder moves the trigger of a resting stop order.
func (p *Paper) ModifyStopOrder(ctx context.Context, ref string, price float64) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	stop, ok := p.stops[ref]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, ref)
	}

	stop.order.Price = price

	return nil
}

// CancelOrder cancels a resting stop order.
func (p *Paper) CancelOrder(ctx context.Context, ref string) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if _, ok := p.stops[ref]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, ref)
	}

	delete(p.stops, ref)

	return nil
}

// RestingStop returns the trigger price of a resting stop order.
func (p *Paper) RestingStop(ref string) (float64, bool) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	stop, ok := p.stops[ref]
	if !ok {
		return 0, false
	}

	return stop.order.Price, true
}

// CurrentPosition returns the simulated holding.
func (p *Paper) CurrentPosition(ctx context.Context) (*Holding, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	holding := p.holding
	return &holding, nil
}

// RecentTrades returns the retained fills, oldest first.
func (p *Paper) RecentTrades(ctx context.Context) ([]Fill, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	set := make([]Fill, len(p.fills))
	copy(set, p.fills)

	return set, nil
}
