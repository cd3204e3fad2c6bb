package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"barista-backend/internal/models"
	"barista-backend/internal/observability"
	"barista-backend/internal/session"
)

// Replier obtains one reply for a message given the prior history.
type Replier interface {
	Run(ctx context.Context, history []models.Turn, message string) (*Result, error)
}

// ChatService runs chat turns against the session store.
type ChatService struct {
	store   *session.Store
	replier Replier
	events  EventPublisher
	metrics *observability.Metrics
}

func NewChatService(store *session.Store, replier Replier, events EventPublisher, metrics *observability.Metrics) *ChatService {
	if events == nil {
		events = nopPublisher{}
	}
	return &ChatService{
		store:   store,
		replier: replier,
		events:  events,
		metrics: metrics,
	}
}

// HandleTurn appends the user message, asks the replier for an answer and
// commits both turns. When every candidate fails the user turn is rolled
// back and a *BackendExhaustedError is returned.
//
// The turn runs to completion even if ctx is cancelled.
func (s *ChatService) HandleTurn(ctx context.Context, sessionID, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", &InvalidInputError{Message: "Message is required"}
	}

	unlock := s.store.Lock(sessionID)
	defer unlock()

	start := time.Now()
	history := s.store.GetOrCreate(sessionID)
	s.metrics.SetActiveSessions(s.store.Len())

	if err := s.store.Append(sessionID, models.Turn{Role: models.RoleUser, Text: message}); err != nil {
		return "", fmt.Errorf("append user turn: %w", err)
	}
	log.Printf("Session %s: history length %d", sessionID, len(history)+1)

	turnCtx := context.WithoutCancel(ctx)
	result, err := s.replier.Run(turnCtx, history, message)
	if err != nil {
		s.store.RemoveLast(sessionID)

		var exhausted *BackendExhaustedError
		if !errors.As(err, &exhausted) {
			exhausted = &BackendExhaustedError{Err: err}
		}
		s.record(turnCtx, sessionID, "turn_failed", "", exhausted.Attempts, time.Since(start))
		log.Printf("Session %s: rolled back user turn: %v", sessionID, exhausted)
		return "", exhausted
	}

	if err := s.store.Append(sessionID, models.Turn{Role: models.RoleModel, Text: result.Text}); err != nil {
		s.store.RemoveLast(sessionID)
		return "", fmt.Errorf("append model turn: %w", err)
	}

	s.record(turnCtx, sessionID, "turn_completed", result.Model, result.Attempts, time.Since(start))
	log.Printf("Session %s: response from %s sent", sessionID, result.Model)
	return result.Text, nil
}

func (s *ChatService) History(sessionID string) (session.History, error) {
	h, err := s.store.Read(sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, &NotFoundError{Message: "Session not found"}
	}
	return h, err
}

func (s *ChatService) Clear(sessionID string) error {
	unlock := s.store.Lock(sessionID)
	defer unlock()

	if !s.store.Clear(sessionID) {
		return &NotFoundError{Message: "Session not found"}
	}
	s.metrics.SetActiveSessions(s.store.Len())
	return nil
}

func (s *ChatService) record(ctx context.Context, sessionID, eventType, model string, attempts []Attempt, d time.Duration) {
	outcome := "success"
	if eventType == "turn_failed" {
		outcome = "exhausted"
	}
	s.metrics.ObserveTurn(outcome, d)
	for _, a := range attempts {
		result := "success"
		if a.Err != nil {
			result = a.Class.String()
		}
		s.metrics.ObserveAttempt(a.Model, result)
	}

	s.events.PublishTurn(ctx, models.TurnEvent{
		Type:       eventType,
		SessionID:  sessionID,
		Model:      model,
		Attempts:   attemptEvents(attempts),
		DurationMs: d.Milliseconds(),
		At:         time.Now().UTC(),
	})
}
