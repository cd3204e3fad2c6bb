package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"barista-backend/internal/models"
	"barista-backend/internal/observability"
	"barista-backend/internal/session"
)

type stubPublisher struct {
	mu     sync.Mutex
	events []models.TurnEvent
}

func (p *stubPublisher) PublishTurn(_ context.Context, ev models.TurnEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func newTestChatService(gen Generator) (*ChatService, *session.Store, *stubPublisher) {
	store := session.NewStore()
	ctrl, _ := newTestController(gen)
	pub := &stubPublisher{}
	return NewChatService(store, ctrl, pub, observability.NewMetrics("test")), store, pub
}

func TestHandleTurn_SuccessAddsTwoTurns(t *testing.T) {
	gen := &stubGenerator{replies: []reply{
		{err: errors.New("parse error")},
		{text: "Terima kasih!"},
	}}
	svc, store, pub := newTestChatService(gen)
	before := len(store.GetOrCreate("s1"))

	text, err := svc.HandleTurn(context.Background(), "s1", "Kopi susu satu")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Terima kasih!" {
		t.Fatalf("unexpected reply %q", text)
	}

	h, _ := store.Read("s1")
	if len(h) != before+2 {
		t.Fatalf("history length = %d, want %d", len(h), before+2)
	}
	if h[len(h)-2] != (models.Turn{Role: models.RoleUser, Text: "Kopi susu satu"}) {
		t.Fatalf("unexpected user turn: %+v", h[len(h)-2])
	}
	if h[len(h)-1] != (models.Turn{Role: models.RoleModel, Text: "Terima kasih!"}) {
		t.Fatalf("unexpected model turn: %+v", h[len(h)-1])
	}

	if len(pub.events) != 1 || pub.events[0].Type != "turn_completed" || pub.events[0].Model != "m2" {
		t.Fatalf("unexpected events: %+v", pub.events)
	}
	if len(pub.events[0].Attempts) != 2 || pub.events[0].Attempts[0].Outcome != "repeat" {
		t.Fatalf("unexpected attempt events: %+v", pub.events[0].Attempts)
	}
}

func TestHandleTurn_ExhaustionRollsBack(t *testing.T) {
	gen := &stubGenerator{}
	for range testModels {
		gen.replies = append(gen.replies, reply{err: &googleapi.Error{Code: 503}})
	}
	svc, store, pub := newTestChatService(gen)

	if _, err := svc.HandleTurn(context.Background(), "s1", "warm up"); err == nil {
		t.Fatalf("expected exhaustion")
	}
	// the session was created by the failed turn and holds only the seed pair
	h, err := store.Read("s1")
	if err != nil {
		t.Fatalf("session should exist: %v", err)
	}
	if len(h) != 2 {
		t.Fatalf("history length = %d, want 2", len(h))
	}

	var exhausted *BackendExhaustedError
	_, err = svc.HandleTurn(context.Background(), "s1", "lagi")
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected BackendExhaustedError, got %v", err)
	}
	if len(pub.events) != 2 || pub.events[1].Type != "turn_failed" {
		t.Fatalf("unexpected events: %+v", pub.events)
	}
}

func TestHandleTurn_ExhaustionLeavesEstablishedHistoryUntouched(t *testing.T) {
	gen := &stubGenerator{replies: []reply{{text: "Siap, satu latte."}}}
	for range testModels {
		gen.replies = append(gen.replies, reply{err: &googleapi.Error{Code: 429}})
	}
	svc, store, _ := newTestChatService(gen)

	if _, err := svc.HandleTurn(context.Background(), "s1", "Latte satu"); err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	before, _ := store.Read("s1")
	if len(before) != 4 {
		t.Fatalf("history length after first turn = %d, want 4", len(before))
	}

	var exhausted *BackendExhaustedError
	if _, err := svc.HandleTurn(context.Background(), "s1", "Tambah gula"); !errors.As(err, &exhausted) {
		t.Fatalf("expected BackendExhaustedError, got %v", err)
	}

	after, _ := store.Read("s1")
	if len(after) != len(before) {
		t.Fatalf("history length = %d after exhausted turn, want %d", len(after), len(before))
	}
	for i := range before {
		if after[i] != before[i] {
			t.Fatalf("turn %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestHandleTurn_RejectsBlankMessage(t *testing.T) {
	gen := &stubGenerator{}
	svc, store, _ := newTestChatService(gen)

	_, err := svc.HandleTurn(context.Background(), "s1", "   ")
	var invalid *InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
	if len(gen.calls) != 0 {
		t.Fatalf("backend must not be called for invalid input")
	}
	if _, err := store.Read("s1"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("invalid input must not create a session")
	}
}

func TestHandleTurn_CancelledContextStillCompletes(t *testing.T) {
	gen := &ctxCheckingGenerator{}
	svc, _, _ := newTestChatService(gen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	text, err := svc.HandleTurn(ctx, "s1", "halo")
	if err != nil || text != "ok" {
		t.Fatalf("turn should run to completion, got %q, %v", text, err)
	}
}

type ctxCheckingGenerator struct{}

func (ctxCheckingGenerator) Generate(ctx context.Context, _ string, _ []models.Turn, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "ok", nil
}

// slowGenerator blocks until release is closed, counting concurrent calls.
type slowGenerator struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	release  chan struct{}
}

func (g *slowGenerator) Generate(context.Context, string, []models.Turn, string) (string, error) {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.maxSeen {
		g.maxSeen = g.inFlight
	}
	g.mu.Unlock()

	<-g.release

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	return "ok", nil
}

func TestHandleTurn_SameSessionSerializes(t *testing.T) {
	gen := &slowGenerator{release: make(chan struct{})}
	svc, store, _ := newTestChatService(gen)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.HandleTurn(context.Background(), "same", "halo")
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(gen.release)
	wg.Wait()

	if gen.maxSeen != 1 {
		t.Fatalf("turns on one session overlapped: max in flight %d", gen.maxSeen)
	}
	h, _ := store.Read("same")
	if len(h) != 2+3*2 {
		t.Fatalf("history length = %d, want 8", len(h))
	}
	for i := 2; i < len(h); i += 2 {
		if h[i].Role != models.RoleUser || h[i+1].Role != models.RoleModel {
			t.Fatalf("turns interleaved at %d: %+v", i, h)
		}
	}
}

func TestHandleTurn_DifferentSessionsRunConcurrently(t *testing.T) {
	gen := &slowGenerator{release: make(chan struct{})}
	svc, _, _ := newTestChatService(gen)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			svc.HandleTurn(context.Background(), id, "halo")
		}(id)
	}

	deadline := time.Now().Add(time.Second)
	for {
		gen.mu.Lock()
		n := gen.inFlight
		gen.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			close(gen.release)
			t.Fatalf("turns on different sessions did not overlap")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(gen.release)
	wg.Wait()
}

func TestHistoryAndClear(t *testing.T) {
	svc, store, _ := newTestChatService(&stubGenerator{})

	var nf *NotFoundError
	if _, err := svc.History("nope"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if err := svc.Clear("nope"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	store.GetOrCreate("s1")
	h, err := svc.History("s1")
	if err != nil || len(h) != 2 {
		t.Fatalf("unexpected history %v, %v", h, err)
	}
	if err := svc.Clear("s1"); err != nil {
		t.Fatalf("unexpected clear error: %v", err)
	}
	if _, err := svc.History("s1"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError after clear, got %v", err)
	}
}
