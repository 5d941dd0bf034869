package httpapi

import (
	"sync"

	"github.com/antoniostano/thicket/internal/observability"
	"github.com/antoniostano/thicket/internal/protocol"
	"github.com/antoniostano/thicket/internal/turn"
)

const subscriberBuffer = 256

// Hub fans turn events out to websocket subscribers. It implements turn.Observer; a subscriber
// that falls behind loses events rather than stalling the turn.
type Hub struct {
	metrics *observability.Metrics

	mu   sync.RWMutex
	subs map[chan any]struct{}
}

func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{metrics: metrics, subs: make(map[chan any]struct{})}
}

func (h *Hub) subscribe() chan any {
	ch := make(chan any, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan any) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// Subscribers reports how many websocket clients are attached.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) broadcast(t protocol.MessageType, msg any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.count("dropped", t)
		}
	}
}

func (h *Hub) count(direction string, t protocol.MessageType) {
	if h.metrics != nil {
		h.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
	}
}

func (h *Hub) TurnStarted(turnID string, number int64) {
	h.broadcast(protocol.TypeTurnStarted, protocol.TurnStarted{Type: protocol.TypeTurnStarted, TurnID: turnID, Number: number})
}

func (h *Hub) PhaseChanged(turnID string, phase turn.Phase) {
	h.broadcast(protocol.TypePhaseChanged, protocol.PhaseChanged{Type: protocol.TypePhaseChanged, TurnID: turnID, Phase: phase})
}

func (h *Hub) IntentCollected(turnID string, intent turn.Intent) {
	h.broadcast(protocol.TypeIntentCollected, protocol.IntentCollected{Type: protocol.TypeIntentCollected, TurnID: turnID, Intent: intent})
}

func (h *Hub) IntentDropped(turnID, actor string, err error) {
	h.broadcast(protocol.TypeIntentDropped, protocol.IntentDropped{
		Type:   protocol.TypeIntentDropped,
		TurnID: turnID,
		Actor:  actor,
		Detail: err.Error(),
	})
}

func (h *Hub) Resolved(turnID string, res turn.Resolution) {
	h.broadcast(protocol.TypeTurnResolved, protocol.TurnResolved{Type: protocol.TypeTurnResolved, TurnID: turnID, Resolution: res})
}

func (h *Hub) TurnCompleted(res turn.Result) {
	h.broadcast(protocol.TypeTurnCompleted, protocol.TurnCompleted{Type: protocol.TypeTurnCompleted, Result: res})
}

func (h *Hub) TurnFailed(_ string, err *turn.Error) {
	h.broadcast(protocol.TypeTurnFailed, protocol.NewTurnFailed(err))
}
