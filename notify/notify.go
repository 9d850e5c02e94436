package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/abletrend/engine"
	"github.com/dnldd/abletrend/position"
	"github.com/rs/zerolog"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
)

// Status represents the position status of a session.
type Status struct {
	// Position is the open position, nil when flat.
	Position *position.Position
	// SimMode indicates orders are routed to the paper gateway.
	SimMode bool
	// At is the time the status was observed.
	At time.Time
}

// String stringifies the provided status.
func (s *Status) String() string {
	mode := "live"
	if s.SimMode {
		mode = "sim"
	}

	if s.Position == nil {
		return fmt.Sprintf("flat (%s)", mode)
	}

	return fmt.Sprintf("%s (%s)", s.Position.String(), mode)
}

// Sink receives session events. Implementations must not block.
type Sink interface {
	// OnAction is called for every processed trade action.
	OnAction(action engine.TradeAction)
	// OnTradeClosed is called for every settled trade.
	OnTradeClosed(trade position.Trade)
	// OnPositionStatusChanged is called when the open position changes.
	OnPositionStatusChanged(status Status)
}

// EventKind represents the kind of a session event.
type EventKind int

const (
	// ActionEvent carries a trade action as it is executed.
	ActionEvent EventKind = iota
	// TradeClosedEvent carries a settled trade.
	TradeClosedEvent
	// StatusEvent carries the open position status and trading mode.
	StatusEvent
)

// String stringifies the provided event kind.
func (k EventKind) String() string {
	switch k {
	case ActionEvent:
		return "action"
	case TradeClosedEvent:
		return "trade closed"
	case StatusEvent:
		return "status"
	default:
		return "unknown"
	}
}

// Event represents a session event.
type Event struct {
	Kind   EventKind
	Action engine.TradeAction
	Trade  position.Trade
	Status Status
}

// String stringifies the provided event.
func (e *Event) String() string {
	switch e.Kind {
	case ActionEvent:
		return e.Action.String()
	case TradeClosedEvent:
		return e.Trade.String()
	case StatusEvent:
		return e.Status.String()
	default:
		return "unknown event"
	}
}

// Subscriber consumes hub events.
type Subscriber func(event Event)

// HubConfig represents the notification hub configuration.
type HubConfig struct {
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// Hub fans session events out to its subscribers.
type Hub struct {
	cfg            *HubConfig
	events         chan Event
	subscribers    []Subscriber
	subscribersMtx sync.RWMutex
	logger         zerolog.Logger
}

// NewHub initializes a new notification hub.
func NewHub(cfg *HubConfig) *Hub {
	return &Hub{
		cfg:    cfg,
		events: make(chan Event, bufferSize),
		logger: cfg.Logger.With().Str("component", "notify").Logger(),
	}
}

// Subscribe registers the provided subscriber.
func (h *Hub) Subscribe(sub Subscriber) {
	h.subscribersMtx.Lock()
	h.subscribers = append(h.subscribers, sub)
	h.subscribersMtx.Unlock()
}

// send relays the provided event without blocking.
func (h *Hub) send(event Event) {
	select {
	case h.events <- event:
		// do nothing.
	default:
		h.logger.Error().Msgf("event channel at capacity: %d/%d", len(h.events), bufferSize)
	}
}

// OnAction relays the provided trade action.
func (h *Hub) OnAction(action engine.TradeAction) {
	h.send(Event{Kind: ActionEvent, Action: action})
}

// OnTradeClosed relays the provided closed trade.
func (h *Hub) OnTradeClosed(trade position.Trade) {
	h.send(Event{Kind: TradeClosedEvent, Trade: trade})
}

// OnPositionStatusChanged relays the provided position status.
func (h *Hub) OnPositionStatusChanged(status Status) {
	h.send(Event{Kind: StatusEvent, Status: status})
}

// dispatch hands the provided event to every subscriber.
func (h *Hub) dispatch(event Event) {
	h.subscribersMtx.RLock()
	defer h.subscribersMtx.RUnlock()

	for idx := range h.subscribers {
		h.subscribers[idx](event)
	}
}

// Run manages the lifecycle processes of the notification hub.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Drain buffered events before exiting.
			for {
				select {
				case event := <-h.events:
					h.dispatch(event)
				default:
					return
				}
			}
		case event := <-h.events:
			h.dispatch(event)
		}
	}
}

// LogSubscriber returns a subscriber logging every event.
func LogSubscriber(logger zerolog.Logger) Subscriber {
	return func(event Event) {
		switch event.Kind {
		case ActionEvent:
			if event.Action.Kind == engine.NoAction {
				logger.Debug().Str("event", event.Kind.String()).Msg(event.String())
				return
			}
			logger.Info().Str("event", event.Kind.String()).Msg(event.String())
		default:
			logger.Info().Str("event", event.Kind.String()).Msg(event.String())
		}
	}
}

// Nop is a sink discarding every event.
type Nop struct{}

// OnAction discards the provided action.
func (Nop) OnAction(engine.TradeAction) {}

// OnTradeClosed discards the provided trade.
func (Nop) OnTradeClosed(position.Trade) {}

// OnPositionStatusChanged discards the provided status.
func (Nop) OnPositionStatusChanged(Status) {}
