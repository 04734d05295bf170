package internal

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"chatroom/internal/storage"
)

// Hub fans payloads out to every registered session. Broadcasts are
// serialized so all recipients observe them in submission order.
type Hub struct {
	mutex       sync.Mutex
	commitMutex sync.Mutex
	registry    *Registry
	metrics     *Metrics
	logger      zerolog.Logger
}

func NewHub(registry *Registry, metrics *Metrics, logger zerolog.Logger) *Hub {
	return &Hub{registry: registry, metrics: metrics, logger: logger}
}

// Broadcast queues envelope on every session in the current snapshot and
// returns how many accepted it. A session that cannot accept the payload is
// unregistered and closed; other recipients are unaffected.
func (hub *Hub) Broadcast(envelope Envelope) int {
	payload, err := json.Marshal(envelope)
	if err != nil {
		hub.logger.Error().Err(err).Str("type", envelope.Type).Msg("encode broadcast")
		return 0
	}

	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	hub.metrics.Broadcast()

	delivered := 0
	for _, session := range hub.registry.Snapshot() {
		if envelope.Type == EnvelopeCleared {
			session.replayedThrough.Store(0)
		}
		if envelope.Message != nil && envelope.Message.ID <= session.replayedThrough.Load() {
			// already part of this session's history replay
			continue
		}
		if session.offer(payload) {
			delivered++
			continue
		}
		hub.drop(session)
	}
	return delivered
}

// Commit runs write and broadcasts the envelope it returns. Commits do not
// overlap, so broadcast order matches the order writes reached the store.
func (hub *Hub) Commit(write func() (Envelope, error)) error {
	hub.commitMutex.Lock()
	defer hub.commitMutex.Unlock()
	envelope, err := write()
	if err != nil {
		return err
	}
	hub.Broadcast(envelope)
	return nil
}

// Join replays history to session alone and then registers it. Holding the
// broadcast lock guarantees no live message is queued ahead of the replay
// and none is missed between the history query and registration.
func (hub *Hub) Join(session *Session, history func() ([]storage.Message, error)) (SessionID, bool) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	messages, err := history()
	if err != nil {
		hub.logger.Warn().Err(err).Str("username", session.Name()).Msg("history replay skipped")
		messages = nil
	}
	if len(messages) > 0 {
		session.replayedThrough.Store(messages[len(messages)-1].ID)
	}
	if messages == nil {
		messages = []storage.Message{}
	}
	payload, err := json.Marshal(historyEnvelope{Type: EnvelopeHistory, Messages: messages})
	if err != nil {
		hub.logger.Error().Err(err).Msg("encode history")
		return 0, false
	}
	if !session.offer(payload) {
		return 0, false
	}
	id := hub.registry.Register(session)
	return id, id != 0
}

func (hub *Hub) drop(session *Session) {
	if hub.registry.Unregister(session.ID()) {
		hub.metrics.DeliveryFailed()
		hub.logger.Warn().
			Uint64("session_id", uint64(session.ID())).
			Str("username", session.Name()).
			Msg("dropping slow or closed session")
	}
	session.Close()
}
