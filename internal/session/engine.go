package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/scope-engine/scope-assistant/internal/agent"
)

// DegradedApology is the fixed response of the degraded stub installed
// when engine construction fails.
const DegradedApology = "I'm sorry, the assistant service is currently unavailable. Please try again later."

// Processor turns one inbound message plus history into a result. The
// conversation loop implements it; so does the degraded stub.
type Processor interface {
	ProcessMessage(ctx context.Context, history []agent.Turn, message string) (*agent.Result, error)
}

// BuildFunc constructs the real processor. It runs at most once per
// process, on first use.
type BuildFunc func(ctx context.Context) (Processor, error)

// Engine lazily constructs the orchestration processor on first use.
// Construction failure permanently installs a degraded stub; the
// transition is one-way and never re-attempted.
type Engine struct {
	logger *slog.Logger
	build  BuildFunc

	once     sync.Once
	proc     Processor
	degraded atomic.Bool
}

// NewEngine creates an engine around the given build function.
func NewEngine(logger *slog.Logger, build BuildFunc) *Engine {
	return &Engine{logger: logger, build: build}
}

// Get returns the processor, constructing it on first call. Concurrent
// first calls construct at most one processor and agree on the result.
func (e *Engine) Get(ctx context.Context) Processor {
	e.once.Do(func() {
		proc, err := e.build(ctx)
		if err != nil {
			e.logger.Error("engine construction failed, installing degraded stub", "error", err)
			e.proc = degradedStub{}
			e.degraded.Store(true)
			return
		}
		e.logger.Info("engine constructed")
		e.proc = proc
	})
	return e.proc
}

// Degraded reports whether the engine fell back to the stub. It only
// returns a meaningful value after the first Get.
func (e *Engine) Degraded() bool {
	return e.degraded.Load()
}

// degradedStub satisfies Processor with one fixed apology.
type degradedStub struct{}

func (degradedStub) ProcessMessage(context.Context, []agent.Turn, string) (*agent.Result, error) {
	return &agent.Result{Response: DegradedApology}, nil
}
