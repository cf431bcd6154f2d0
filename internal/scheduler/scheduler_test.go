package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KafClaw/chatterbox/internal/persona"
	"github.com/KafClaw/chatterbox/internal/timeline"
)

// fastConfig ticks every 5ms.
func fastConfig() Config {
	return Config{CallsPerMinute: 12000, Seed: 1}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func runInBackground(t *testing.T, s *Scheduler) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return done
}

func TestConfigInterval(t *testing.T) {
	if got := (Config{CallsPerMinute: 20}).Interval(); got != 3*time.Second {
		t.Errorf("expected 3s, got %v", got)
	}
	if got := (Config{}).Interval(); got != 3*time.Second {
		t.Errorf("expected default 3s, got %v", got)
	}
	if got := New(Config{CallsPerMinute: 60}, nil).Interval(); got != time.Second {
		t.Errorf("expected 1s, got %v", got)
	}
}

func TestRequestTurnCoalesces(t *testing.T) {
	s := New(fastConfig(), nil)
	p := persona.NewPhilosophy("Hume", "", false)

	s.RequestTurn(p, "C1")
	s.RequestTurn(p, "C1")
	s.RequestTurn(p, "C2")

	pending := s.Pending()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending keys, got %d", len(pending))
	}
	if pending[0].Key != (CallKey{Agent: "Hume", Destination: "C1"}) || pending[0].Weight != 2 {
		t.Errorf("unexpected first entry: %+v", pending[0])
	}

	var gotWeight atomic.Int32
	s.RegisterTurnHandler("Hume", TurnHandlerFunc(func(_ context.Context, turn Turn) (Outcome, error) {
		if turn.Destination == "C1" {
			gotWeight.Store(int32(turn.Weight))
		}
		return OutcomeDelivered, nil
	}))
	runInBackground(t, s)
	waitFor(t, func() bool { return len(s.Pending()) == 0 && gotWeight.Load() != 0 })

	if gotWeight.Load() != 2 {
		t.Errorf("expected coalesced weight 2, got %d", gotWeight.Load())
	}
}

func TestRegisterTurnHandlerLastWriterWins(t *testing.T) {
	s := New(fastConfig(), nil)
	p := persona.NewCustom("Echo", "repeat things", false)

	var first, second atomic.Int32
	s.RegisterTurnHandler("Echo", TurnHandlerFunc(func(context.Context, Turn) (Outcome, error) {
		first.Add(1)
		return OutcomeDelivered, nil
	}))
	s.RegisterTurnHandler("Echo", TurnHandlerFunc(func(context.Context, Turn) (Outcome, error) {
		second.Add(1)
		return OutcomeDelivered, nil
	}))
	s.RequestTurn(p, "C1")

	runInBackground(t, s)
	waitFor(t, func() bool { return second.Load() == 1 })

	if first.Load() != 0 {
		t.Errorf("replaced handler was called %d times", first.Load())
	}
}

func TestMissingRegistrationEndsRun(t *testing.T) {
	s := New(fastConfig(), nil)
	s.RequestTurn(persona.NewPhilosophy("Ghost", "", false), "C1")

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrMissingRegistration) {
			t.Fatalf("expected ErrMissingRegistration, got %v", err)
		}
		if errors.Is(err, ErrCallTimeout) {
			t.Fatal("missing registration must not look like a timeout")
		}
	case <-time.After(2 * time.Second):
		s.Stop()
		t.Fatal("Run did not return")
	}
}

func TestTimeoutKeepsSchedulerRunning(t *testing.T) {
	tl, err := timeline.NewTimelineService(filepath.Join(t.TempDir(), "timeline.db"))
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	t.Cleanup(func() { _ = tl.Close() })

	s := New(fastConfig(), tl)
	p := persona.NewPhilosophy("Zeno", "", false)

	var calls atomic.Int32
	s.RegisterTurnHandler("Zeno", TurnHandlerFunc(func(context.Context, Turn) (Outcome, error) {
		if calls.Add(1) == 1 {
			return "", ErrCallTimeout
		}
		return OutcomeDelivered, nil
	}))
	done := runInBackground(t, s)

	s.RequestTurn(p, "C1")
	waitFor(t, func() bool { return calls.Load() == 1 })
	s.RequestTurn(p, "C1")

	// The journal row is written after the handler returns.
	var counts map[string]int
	waitFor(t, func() bool {
		var err error
		counts, err = tl.OutcomeCounts("Zeno")
		if err != nil {
			t.Fatalf("counts: %v", err)
		}
		return counts[string(OutcomeDelivered)] == 1
	})

	select {
	case err := <-done:
		t.Fatalf("Run returned after a timeout: %v", err)
	default:
	}

	if calls.Load() != 2 || counts[string(OutcomeTimeout)] != 1 {
		t.Errorf("unexpected journal counts after %d calls: %v", calls.Load(), counts)
	}
}

func TestHandlerErrorIsJournaledAndEndsRun(t *testing.T) {
	tl, err := timeline.NewTimelineService(filepath.Join(t.TempDir(), "timeline.db"))
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	t.Cleanup(func() { _ = tl.Close() })

	boom := errors.New("boom")
	s := New(fastConfig(), tl)
	s.RegisterTurnHandler("Kant", TurnHandlerFunc(func(context.Context, Turn) (Outcome, error) {
		return "", boom
	}))
	s.RequestTurn(persona.NewPhilosophy("Kant", "", false), "C9")

	err = s.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	turns, err := tl.RecentTurns(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 journaled turn, got %d", len(turns))
	}
	if turns[0].Outcome != string(OutcomeFailed) || turns[0].ErrorText != "boom" || turns[0].Destination != "C9" {
		t.Errorf("unexpected journal row: %+v", turns[0])
	}
	if turns[0].TraceID == "" {
		t.Error("expected a trace id")
	}
}

func TestSilenceAgentClearsAllDestinations(t *testing.T) {
	s := New(fastConfig(), nil)
	a := persona.NewPhilosophy("A", "", false)
	b := persona.NewPhilosophy("B", "", false)

	s.RequestTurn(a, "C1")
	s.RequestTurn(a, "C2")
	s.RequestTurn(b, "C1")

	if n := s.SilenceAgent("A"); n != 2 {
		t.Errorf("expected 2 dropped, got %d", n)
	}
	pending := s.Pending()
	if len(pending) != 1 || pending[0].Key.Agent != "B" {
		t.Errorf("unexpected pending after silence: %+v", pending)
	}

	s.SilenceAll()
	if len(s.Pending()) != 0 {
		t.Error("expected nothing pending after SilenceAll")
	}
}

func TestSilencedSchedulerDoesNotFire(t *testing.T) {
	s := New(fastConfig(), nil)
	var calls atomic.Int32
	s.RegisterTurnHandler("Quiet", TurnHandlerFunc(func(context.Context, Turn) (Outcome, error) {
		calls.Add(1)
		return OutcomeDelivered, nil
	}))
	s.RequestTurn(persona.NewCustom("Quiet", "shh", false), "C1")
	s.SilenceAll()

	runInBackground(t, s)
	time.Sleep(50 * time.Millisecond)

	if calls.Load() != 0 {
		t.Errorf("expected no turns, got %d", calls.Load())
	}
}

func TestConcurrentRequests(t *testing.T) {
	s := New(fastConfig(), nil)
	p := persona.NewPhilosophy("Plato", "", false)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RequestTurn(p, "C1")
		}()
	}
	wg.Wait()

	pending := s.Pending()
	if len(pending) != 1 || pending[0].Weight != 50 {
		t.Errorf("expected one key of weight 50, got %+v", pending)
	}
}

func TestCallKeyString(t *testing.T) {
	if got := (CallKey{Agent: "A", Destination: "C1"}).String(); got != "A@C1" {
		t.Errorf("unexpected key string %q", got)
	}
}
