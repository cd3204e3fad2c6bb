package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"barista-backend/internal/models"
)

// Generator produces one reply with one model. It is called once per attempt.
type Generator interface {
	Generate(ctx context.Context, model string, history []models.Turn, message string) (string, error)
}

// Sleeper waits between attempts. Tests replace it to avoid real timers.
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Action is what the controller does after a failed attempt.
type Action int

const (
	ActionRetry Action = iota
	ActionGiveUp
)

// Decision is the outcome of one transition.
type Decision struct {
	Action    Action
	NextIndex int
	Backoff   time.Duration
}

// Attempt records one call to the backend.
type Attempt struct {
	Index    int
	Model    string
	Err      error
	Class    Class
	Backoff  time.Duration
	Duration time.Duration
}

// Result is the accepted reply of a turn.
type Result struct {
	Text     string
	Model    string
	Attempts []Attempt
}

type FallbackController struct {
	gen             Generator
	models          []string
	fallbackBackoff time.Duration
	repeatBackoff   time.Duration
	sleeper         Sleeper
}

func NewFallbackController(gen Generator, candidates []string, fallbackBackoff, repeatBackoff time.Duration) *FallbackController {
	return &FallbackController{
		gen:             gen,
		models:          append([]string(nil), candidates...),
		fallbackBackoff: fallbackBackoff,
		repeatBackoff:   repeatBackoff,
		sleeper:         realSleeper{},
	}
}

// WithSleeper swaps the wait implementation.
func (c *FallbackController) WithSleeper(s Sleeper) *FallbackController {
	c.sleeper = s
	return c
}

// Models returns the candidate list in try order.
func (c *FallbackController) Models() []string {
	return append([]string(nil), c.models...)
}

// Next decides what follows a failed attempt at index. Both classes move to
// the next candidate; they only differ in how long to wait first. A
// RepeatWorthy failure does not retry the same model.
func (c *FallbackController) Next(index int, class Class) Decision {
	next := index + 1
	if next >= len(c.models) {
		return Decision{Action: ActionGiveUp, NextIndex: next}
	}
	backoff := c.repeatBackoff
	if class == FallbackWorthy {
		backoff = c.fallbackBackoff
	}
	return Decision{Action: ActionRetry, NextIndex: next, Backoff: backoff}
}

// Run tries the candidates in order until one returns non-blank text.
// history must not contain message itself. The error is always a
// *BackendExhaustedError.
func (c *FallbackController) Run(ctx context.Context, history []models.Turn, message string) (*Result, error) {
	if len(c.models) == 0 {
		return nil, &BackendExhaustedError{Err: errors.New("no model candidates configured")}
	}

	var attempts []Attempt
	index := 0
	for {
		model := c.models[index]
		log.Printf("Trying model %d/%d: %s", index+1, len(c.models), model)

		start := time.Now()
		text, err := c.gen.Generate(ctx, model, history, message)
		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrEmptyResponse
		}
		attempt := Attempt{Index: index, Model: model, Duration: time.Since(start)}

		if err == nil {
			attempts = append(attempts, attempt)
			return &Result{Text: text, Model: model, Attempts: attempts}, nil
		}

		attempt.Err = err
		attempt.Class = Classify(err)
		log.Printf("API error with %s (%s): %v", model, attempt.Class, err)

		d := c.Next(index, attempt.Class)
		if d.Action == ActionGiveUp {
			attempts = append(attempts, attempt)
			return nil, &BackendExhaustedError{Tried: len(attempts), Err: err, Attempts: attempts}
		}

		attempt.Backoff = d.Backoff
		attempts = append(attempts, attempt)
		if attempt.Class == FallbackWorthy {
			log.Printf("Rate limit/overload detected, trying next model in %s", d.Backoff)
		} else {
			log.Printf("Non-rate-limit error, trying next model in %s", d.Backoff)
		}

		c.sleeper.Sleep(d.Backoff)
		index = d.NextIndex
	}
}
