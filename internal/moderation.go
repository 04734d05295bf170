package internal

import (
	"context"

	"github.com/rs/zerolog"

	"chatroom/internal/storage"
)

type tokenVerifier interface {
	Verify(token string) bool
}

type mediaPurger interface {
	Purge() (removed, failed int)
}

// ModerationGate guards the destructive admin operations.
type ModerationGate struct {
	store   storage.MessageStore
	hub     *Hub
	tokens  tokenVerifier
	media   mediaPurger
	metrics *Metrics
	logger  zerolog.Logger
}

func NewModerationGate(store storage.MessageStore, hub *Hub, tokens tokenVerifier, media mediaPurger, metrics *Metrics, logger zerolog.Logger) *ModerationGate {
	return &ModerationGate{
		store:   store,
		hub:     hub,
		tokens:  tokens,
		media:   media,
		metrics: metrics,
		logger:  logger,
	}
}

// Authorize reports whether token is a valid, unexpired admin credential.
func (gate *ModerationGate) Authorize(token string) bool {
	return gate.tokens.Verify(token)
}

// ClearAll wipes the history and uploaded media, then broadcasts a single
// cleared event. Without a valid token nothing changes and ErrUnauthorized is
// returned. Media deletion is best effort and never fails the call.
func (gate *ModerationGate) ClearAll(ctx context.Context, token string) error {
	if !gate.Authorize(token) {
		gate.metrics.AdminAuthFailed()
		return ErrUnauthorized
	}
	err := gate.hub.Commit(func() (Envelope, error) {
		if err := gate.store.Clear(ctx); err != nil {
			return Envelope{}, err
		}
		if gate.media != nil {
			removed, failed := gate.media.Purge()
			gate.logger.Info().Int("removed", removed).Int("failed", failed).Msg("media purged")
		}
		return Envelope{Type: EnvelopeCleared}, nil
	})
	if err != nil {
		gate.logger.Error().Err(err).Msg("clear history")
		return err
	}
	gate.logger.Info().Msg("history cleared")
	return nil
}
