package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"nhooyr.io/websocket"
)

// Subscriber keeps one connection to the node event stream alive, resuming
// from the last committed checkpoint after every reconnect.
type Subscriber struct {
	endpoint string
	indexer  *Indexer
	store    *CheckpointStore
	logger   *slog.Logger

	backoffMin time.Duration
	backoffMax time.Duration
}

// NewSubscriber builds a subscriber for the node's /ws/events endpoint.
func NewSubscriber(endpoint string, indexer *Indexer, store *CheckpointStore, logger *slog.Logger, backoffMin, backoffMax time.Duration) (*Subscriber, error) {
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("auditd: invalid stream endpoint: %w", err)
	}
	if indexer == nil || store == nil {
		return nil, errors.New("auditd: indexer and store required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if backoffMin <= 0 {
		backoffMin = time.Second
	}
	if backoffMax < backoffMin {
		backoffMax = backoffMin
	}
	return &Subscriber{
		endpoint:   endpoint,
		indexer:    indexer,
		store:      store,
		logger:     logger,
		backoffMin: backoffMin,
		backoffMax: backoffMax,
	}, nil
}

// Run consumes the stream until the context is cancelled. Connection errors
// reconnect with doubling backoff; indexing errors are fatal because they
// mean the index and the checkpoint could diverge.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := s.backoffMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.consume(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		var indexErr *indexingError
		if errors.As(err, &indexErr) {
			return indexErr.err
		}
		metrics().reconnects.Inc()
		s.logger.Warn("event stream disconnected", "error", err, "retryIn", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.backoffMax {
			backoff = s.backoffMax
		}
	}
}

// indexingError marks failures that must stop the service instead of
// triggering a reconnect.
type indexingError struct {
	err error
}

func (e *indexingError) Error() string { return e.err.Error() }
func (e *indexingError) Unwrap() error { return e.err }

func (s *Subscriber) consume(ctx context.Context) error {
	since, err := s.store.LastSequence()
	if err != nil {
		return &indexingError{err: err}
	}
	target := s.endpoint + "?since=" + strconv.FormatUint(since, 10)

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.Dial(dialCtx, target, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.endpoint, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")
	s.logger.Info("subscribed to event stream", "endpoint", s.endpoint, "since", since)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var envelope StreamEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			s.logger.Warn("dropping malformed stream frame", "error", err)
			continue
		}
		if err := s.indexer.Apply(envelope); err != nil {
			return &indexingError{err: err}
		}
	}
}
