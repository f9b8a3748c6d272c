package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scope-engine/scope-assistant/internal/agent"
)

// echoProcessor answers every message with a deterministic reply.
type echoProcessor struct {
	delay time.Duration
	calls atomic.Int64
}

func (p *echoProcessor) ProcessMessage(_ context.Context, history []agent.Turn, message string) (*agent.Result, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	return &agent.Result{Response: fmt.Sprintf("echo(%d): %s", len(history), message)}, nil
}

// failingProcessor always returns the configured error.
type failingProcessor struct{ err error }

func (p *failingProcessor) ProcessMessage(context.Context, []agent.Turn, string) (*agent.Result, error) {
	return nil, p.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(proc Processor) *Manager {
	engine := NewEngine(testLogger(), func(context.Context) (Processor, error) {
		return proc, nil
	})
	return NewManager(testLogger(), engine)
}

func TestGetOrCreateMintsIDs(t *testing.T) {
	m := newTestManager(&echoProcessor{})

	s1 := m.GetOrCreate("")
	if s1.ID == "" {
		t.Fatal("empty session id")
	}

	// A known id returns the same session.
	if s2 := m.GetOrCreate(s1.ID); s2 != s1 {
		t.Error("known id did not return the existing session")
	}

	// An unknown id is not adopted; a fresh one is minted.
	s3 := m.GetOrCreate("no-such-session")
	if s3.ID == "no-such-session" {
		t.Error("unknown id was adopted")
	}
	if s3 == s1 {
		t.Error("unknown id returned an existing session")
	}

	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestProcessAppendsTurnPair(t *testing.T) {
	m := newTestManager(&echoProcessor{})

	res := m.Process(context.Background(), "", "first question")
	if res.Response == "" || res.SessionID == "" {
		t.Fatalf("malformed result: %+v", res)
	}

	turns := m.GetOrCreate(res.SessionID).History()
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].Role != agent.RoleHuman || turns[0].Content != "first question" {
		t.Errorf("human turn = %+v", turns[0])
	}
	if turns[1].Role != agent.RoleAssistant || turns[1].Content != res.Response {
		t.Errorf("assistant turn = %+v", turns[1])
	}

	// Second turn sees the grown history.
	res2 := m.Process(context.Background(), res.SessionID, "second question")
	if res2.SessionID != res.SessionID {
		t.Errorf("session id changed: %s -> %s", res.SessionID, res2.SessionID)
	}
	if res2.Response != "echo(2): second question" {
		t.Errorf("Response = %q", res2.Response)
	}
}

func TestProcessFailureCategories(t *testing.T) {
	t.Run("storage failure appends nothing", func(t *testing.T) {
		m := newTestManager(&failingProcessor{err: errors.New("query complaints: database is locked")})

		res := m.Process(context.Background(), "", "list complaints")
		if res.Response != agent.CategoryStorage.Message() {
			t.Errorf("Response = %q", res.Response)
		}
		if turns := m.GetOrCreate(res.SessionID).History(); len(turns) != 0 {
			t.Errorf("turns = %d, want 0 after non-input failure", len(turns))
		}
	})

	t.Run("empty input appends fallback assistant turn", func(t *testing.T) {
		m := newTestManager(&failingProcessor{err: errors.New("cannot process empty text parameter")})

		res := m.Process(context.Background(), "", "")
		if res.Response != agent.CategoryEmptyInput.Message() {
			t.Errorf("Response = %q", res.Response)
		}
		turns := m.GetOrCreate(res.SessionID).History()
		if len(turns) != 1 || turns[0].Role != agent.RoleAssistant {
			t.Fatalf("turns = %+v, want single assistant fallback", turns)
		}
	})
}

func TestDistinctSessionsProceedConcurrently(t *testing.T) {
	proc := &echoProcessor{delay: 10 * time.Millisecond}
	m := newTestManager(proc)

	const n = 8
	start := time.Now()
	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := m.Process(context.Background(), "", fmt.Sprintf("msg %d", i))
			ids[i] = res.SessionID
		}()
	}
	wg.Wait()

	// Serialized execution would take n*delay; overlap should keep the
	// total well under that.
	if elapsed := time.Since(start); elapsed > time.Duration(n)*10*time.Millisecond {
		t.Errorf("distinct sessions appear serialized: %v", elapsed)
	}

	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Errorf("duplicate session id %s", id)
		}
		seen[id] = true
	}
	if m.Len() != n {
		t.Errorf("Len() = %d, want %d", m.Len(), n)
	}
}

func TestSameSessionSerializes(t *testing.T) {
	m := newTestManager(&echoProcessor{delay: time.Millisecond})
	id := m.GetOrCreate("").ID

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Process(context.Background(), id, fmt.Sprintf("msg %d", i))
		}()
	}
	wg.Wait()

	turns := m.GetOrCreate(id).History()
	if len(turns) != 2*n {
		t.Errorf("turns = %d, want %d", len(turns), 2*n)
	}
	// Turn pairs must interleave human/assistant without corruption.
	for i := 0; i < len(turns); i += 2 {
		if turns[i].Role != agent.RoleHuman || turns[i+1].Role != agent.RoleAssistant {
			t.Fatalf("turn pair %d corrupted: %s/%s", i, turns[i].Role, turns[i+1].Role)
		}
	}
}

// gatedProcessor blocks a designated message until released, so a test
// can hold a session mid-turn.
type gatedProcessor struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *gatedProcessor) ProcessMessage(_ context.Context, _ []agent.Turn, message string) (*agent.Result, error) {
	if message == "slow question" {
		p.once.Do(func() { close(p.started) })
		<-p.release
	}
	return &agent.Result{Response: "done: " + message}, nil
}

func TestPruneDoesNotBlockOtherSessions(t *testing.T) {
	proc := &gatedProcessor{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	m := newTestManager(proc)

	busy := m.GetOrCreate("")
	busyDone := make(chan struct{})
	go func() {
		defer close(busyDone)
		m.Process(context.Background(), busy.ID, "slow question")
	}()
	<-proc.started

	// Prune must skip the busy session instead of waiting on it, and
	// must not leave a pending map write that stalls new sessions.
	if removed := m.Prune(30 * time.Minute); removed != 0 {
		t.Errorf("Prune removed %d sessions while one was mid-turn", removed)
	}

	start := time.Now()
	res := m.Process(context.Background(), "", "quick question")
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("unrelated session blocked for %v behind a busy turn", elapsed)
	}
	if res.Response != "done: quick question" {
		t.Errorf("Response = %q", res.Response)
	}

	close(proc.release)
	<-busyDone

	if s := m.GetOrCreate(busy.ID); s != busy {
		t.Error("busy session was pruned mid-turn")
	}
}

func TestPrune(t *testing.T) {
	m := newTestManager(&echoProcessor{})

	stale := m.GetOrCreate("")
	stale.mu.Lock()
	stale.lastActive = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	fresh := m.GetOrCreate("")
	_ = fresh

	if removed := m.Prune(30 * time.Minute); removed != 1 {
		t.Errorf("Prune removed %d, want 1", removed)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	// The stale id is unknown now; a new session is minted for it.
	if s := m.GetOrCreate(stale.ID); s.ID == stale.ID {
		t.Error("pruned session id was resurrected")
	}
}
