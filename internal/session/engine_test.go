package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/scope-engine/scope-assistant/internal/agent"
)

func TestEngineBuildsOnce(t *testing.T) {
	var builds atomic.Int64
	proc := &echoProcessor{}
	engine := NewEngine(testLogger(), func(context.Context) (Processor, error) {
		builds.Add(1)
		return proc, nil
	})

	const n = 16
	var wg sync.WaitGroup
	results := make([]Processor, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = engine.Get(context.Background())
		}()
	}
	wg.Wait()

	if builds.Load() != 1 {
		t.Errorf("build ran %d times, want 1", builds.Load())
	}
	for i, p := range results {
		if p != Processor(proc) {
			t.Errorf("call %d got a different processor", i)
		}
	}
	if engine.Degraded() {
		t.Error("Degraded() = true after successful build")
	}
}

func TestEngineDegradedIsPermanent(t *testing.T) {
	var builds atomic.Int64
	engine := NewEngine(testLogger(), func(context.Context) (Processor, error) {
		builds.Add(1)
		return nil, errors.New("api key not set")
	})

	for range 5 {
		proc := engine.Get(context.Background())
		res, err := proc.ProcessMessage(context.Background(), nil, "hello")
		if err != nil {
			t.Fatalf("degraded stub returned error: %v", err)
		}
		if res.Response != DegradedApology {
			t.Errorf("Response = %q, want the fixed apology", res.Response)
		}
	}

	if builds.Load() != 1 {
		t.Errorf("build re-attempted %d times, want exactly 1", builds.Load())
	}
	if !engine.Degraded() {
		t.Error("Degraded() = false after failed build")
	}
}

func TestManagerWithDegradedEngine(t *testing.T) {
	engine := NewEngine(testLogger(), func(context.Context) (Processor, error) {
		return nil, errors.New("no backend configured")
	})
	m := NewManager(testLogger(), engine)

	res := m.Process(context.Background(), "", "anything")
	if res.Response != DegradedApology {
		t.Errorf("Response = %q", res.Response)
	}
	if res.SessionID == "" {
		t.Error("degraded result missing session id")
	}

	// The apology is still recorded as a normal turn pair.
	turns := m.GetOrCreate(res.SessionID).History()
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[1].Role != agent.RoleAssistant || turns[1].Content != DegradedApology {
		t.Errorf("assistant turn = %+v", turns[1])
	}
}
