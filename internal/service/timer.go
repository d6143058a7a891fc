package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/polite-concession/internal/repository"
	redisrepo "github.com/freeeve/polite-concession/internal/repository/redis"
)

// IdleListener aborts hosted sessions whose remote party went quiet. It listens
// for Redis keyspace notifications on expired idle keys and also polls, in
// case notifications are unavailable.
type IdleListener struct {
	rdb          *redis.Client
	svc          *NegotiationService
	cache        repository.SessionCache
	pollInterval time.Duration
}

// NewIdleListener creates an IdleListener.
func NewIdleListener(rdb *redis.Client, svc *NegotiationService, cache repository.SessionCache) *IdleListener {
	return &IdleListener{rdb: rdb, svc: svc, cache: cache, pollInterval: 30 * time.Second}
}

// Start begins listening for expired key events and runs a polling fallback.
func (l *IdleListener) Start(ctx context.Context) {
	go l.listenKeyspace(ctx)
	l.pollIdleSessions(ctx)
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (l *IdleListener) listenKeyspace(ctx context.Context) {
	pubsub := l.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Idle listener started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			l.handleExpiry(ctx, msg.Payload)
		}
	}
}

// pollIdleSessions periodically aborts live sessions whose idle timer is gone.
func (l *IdleListener) pollIdleSessions(ctx context.Context) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", l.pollInterval).Msg("Idle session poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Idle session poller stopped")
			return
		case <-ticker.C:
			l.checkIdleSessions(ctx)
		}
	}
}

// checkIdleSessions aborts live sessions without a running idle timer.
func (l *IdleListener) checkIdleSessions(ctx context.Context) {
	for _, id := range l.svc.ActiveSessionIDs() {
		running, err := l.cache.HasIdleTimer(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("sessionId", id).Msg("Failed to check idle timer")
			continue
		}
		if !running {
			l.abort(ctx, id, "poller")
		}
	}
}

// handleExpiry processes an expired key. Only acts on session idle keys.
func (l *IdleListener) handleExpiry(ctx context.Context, key string) {
	id, ok := redisrepo.IdleKeySessionID(key)
	if !ok {
		return
	}
	l.abort(ctx, id, "timer")
}

func (l *IdleListener) abort(ctx context.Context, sessionID, source string) {
	log.Info().Str("sessionId", sessionID).Str("source", source).Msg("Session idle, aborting")
	_, err := l.svc.AbortSession(ctx, sessionID, "idle timeout")
	if err != nil && !errors.Is(err, ErrSessionNotActive) && !errors.Is(err, ErrSessionNotFound) {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to abort idle session")
	}
}
