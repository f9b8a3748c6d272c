// Scope is the SCOPE Assistant service: a staff-facing conversational
// interface to the university complaint-tracking dataset.
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	scope serve              Start the API server
//	scope init [dir]         Initialize a working directory with defaults
//	scope seed [file.csv]    Load sample complaints into the database
//	scope ask <question>     Ask a single question (for testing)
//	scope version            Print version and build information
package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/scope-engine/scope-assistant/internal/agent"
	"github.com/scope-engine/scope-assistant/internal/api"
	"github.com/scope-engine/scope-assistant/internal/buildinfo"
	"github.com/scope-engine/scope-assistant/internal/classifier"
	"github.com/scope-engine/scope-assistant/internal/complaint"
	"github.com/scope-engine/scope-assistant/internal/config"
	"github.com/scope-engine/scope-assistant/internal/embeddings"
	"github.com/scope-engine/scope-assistant/internal/llm"
	"github.com/scope-engine/scope-assistant/internal/notify"
	"github.com/scope-engine/scope-assistant/internal/search"
	"github.com/scope-engine/scope-assistant/internal/session"
	"github.com/scope-engine/scope-assistant/internal/tools"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so the
// full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the scope command. OS-level
// dependencies are injected as parameters so tests can drive the
// lifecycle. Arguments are parsed by hand; the flag package's global
// state gets in the way of calling run concurrently from tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "seed":
		csvPath := ""
		if len(cmdArgs) > 0 {
			csvPath = cmdArgs[0]
		}
		return runSeed(ctx, stdout, configPath, csvPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: scope ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "SCOPE Assistant - Student Complaint Optimisation and Prioritization Engine")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: scope [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve            Start the API server")
	fmt.Fprintln(w, "  init [dir]       Initialize a working directory (default: .)")
	fmt.Fprintln(w, "  seed [file.csv]  Load sample complaints into the database")
	fmt.Fprintln(w, "  ask <question>   Ask a single question (for testing)")
	fmt.Fprintln(w, "  version          Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./scope.yaml, ~/.config/scope/scope.yaml, /etc/scope/scope.yaml")
	return nil
}

// newLogger creates a structured logger writing to w at the given
// level. All log output goes through slog; this helper standardizes the
// handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used and must exist.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// openDatabase opens the complaint database with WAL journaling so the
// API server and capability handlers can share it.
func openDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return db, nil
}

// createLLMClient selects the language backend from configuration. An
// anthropic provider with no API key returns an error so the engine
// installs its degraded stub.
func createLLMClient(cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	switch cfg.Model.Provider {
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider selected but anthropic.api_key is not set")
		}
		logger.Info("Anthropic provider configured", "model", cfg.Model.Name)
		return llm.NewAnthropicClient(cfg.Anthropic.APIKey), nil
	case "ollama", "":
		logger.Info("Ollama provider configured", "model", cfg.Model.Name, "url", cfg.Ollama.BaseURL)
		return llm.NewOllamaClient(cfg.Ollama.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
}

// verifyBackend confirms the model backend is reachable before the
// engine goes into service. A failure installs the degraded stub, the
// same as a misconfigured provider. The check is detached from the
// caller's cancellation: the engine builds under the first request's
// context, and that client hanging up must not degrade the engine.
func verifyBackend(ctx context.Context, client llm.Client) error {
	pingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		return fmt.Errorf("model backend unreachable: %w", err)
	}
	return nil
}

// buildRegistry assembles the capability registry over the store and
// search index, with the optional MQTT notifier.
func buildRegistry(store *complaint.Store, index *search.Index, notifier tools.Notifier) *tools.Registry {
	opts := []tools.Option{}
	if notifier != nil {
		opts = append(opts, tools.WithNotifier(notifier))
	}
	return tools.NewRegistry(store, index, opts...)
}

// runServe is the primary operating mode: load config, open the
// database, build the engine lazily, start the API server, and block
// until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting SCOPE Assistant",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime,
	)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level is known.
	if cfg.LogLevel != "" {
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"listen", cfg.Listen.Addr(),
		"provider", cfg.Model.Provider,
		"model", cfg.Model.Name,
	)

	db, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := complaint.NewStore(db)
	if err != nil {
		return fmt.Errorf("open complaint store: %w", err)
	}
	logger.Info("complaint database opened", "path", cfg.Database.Path)

	// Similarity search over complaint text. The vector cache is warmed
	// in the background; the first search works either way.
	embedder := embeddings.New(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
	})
	index := search.NewIndex(embedder, store, logger)
	go func() {
		if err := index.Refresh(ctx); err != nil {
			logger.Warn("search index warm-up failed", "error", err)
		}
	}()

	// Optional status-change notifications.
	var notifier *notify.Publisher
	if cfg.MQTT.Broker != "" {
		notifier = notify.New(cfg.MQTT, logger)
		if err := notifier.Start(ctx); err != nil {
			logger.Warn("mqtt notifier disabled", "error", err)
			notifier = nil
		} else {
			logger.Info("mqtt notifications enabled", "broker", cfg.MQTT.Broker)
		}
	} else {
		logger.Info("mqtt notifications disabled (not configured)")
	}

	// The orchestration engine is constructed lazily on first use. A
	// construction failure (bad provider, missing key) permanently
	// installs the degraded stub instead of crashing the server.
	engine := session.NewEngine(logger, func(buildCtx context.Context) (session.Processor, error) {
		llmClient, err := createLLMClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := verifyBackend(buildCtx, llmClient); err != nil {
			return nil, err
		}
		var n tools.Notifier
		if notifier != nil {
			n = notifier
		}
		registry := buildRegistry(store, index, n)
		return agent.NewLoop(logger, llmClient, cfg.Model.Name, registry, cfg.Model.MaxIterations), nil
	})

	sessions := session.NewManager(logger, engine)

	// Optional idle-session eviction.
	if cfg.Sessions.TTL > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Sessions.TTL / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					sessions.Prune(cfg.Sessions.TTL)
				}
			}
		}()
		logger.Info("session eviction enabled", "ttl", cfg.Sessions.TTL)
	}

	server := api.NewServer(cfg.Listen.Addr(), sessions, logger)

	// SIGINT/SIGTERM cancellation flows through the same ctx used by
	// all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if notifier != nil {
			if err := notifier.Stop(shutdownCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("SCOPE Assistant stopped")
	return nil
}

// runAsk boots a minimal engine and processes a single question,
// printing the response to stdout. Useful for smoke tests without
// starting the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)
	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := complaint.NewStore(db)
	if err != nil {
		return fmt.Errorf("open complaint store: %w", err)
	}

	embedder := embeddings.New(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
	})
	index := search.NewIndex(embedder, store, logger)

	llmClient, err := createLLMClient(cfg, logger)
	if err != nil {
		return err
	}
	if err := verifyBackend(ctx, llmClient); err != nil {
		return err
	}

	loop := agent.NewLoop(logger, llmClient, cfg.Model.Name, buildRegistry(store, index, nil), cfg.Model.MaxIterations)

	res, err := loop.ProcessMessage(ctx, nil, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, res.Response)
	return nil
}

// seedSamples is the built-in dataset used when no CSV is supplied.
var seedSamples = []struct {
	text     string
	category complaint.Category
	urgency  complaint.Urgency
}{
	{"The wifi in the main library drops every few minutes during peak hours, making it impossible to submit assignments.", complaint.CategoryITSupport, complaint.UrgencyHigh},
	{"Heating has been broken in Hartley Hall dorm rooms for over a week and it is below freezing outside.", complaint.CategoryHousing, complaint.UrgencyCritical},
	{"Professor for CS301 has not returned any graded coursework this semester despite repeated requests.", complaint.CategoryAcademic, complaint.UrgencyMedium},
	{"The elevator in the science building has been out of service for a month, blocking wheelchair access to labs.", complaint.CategoryFacilities, complaint.UrgencyCritical},
	{"My financial aid disbursement is three weeks late and I cannot pay rent.", complaint.CategoryFinancialAid, complaint.UrgencyCritical},
	{"Dining hall keeps running out of vegetarian options before 6pm.", complaint.CategoryCampusLife, complaint.UrgencyLow},
	{"Campus gym showers have had no hot water for several days.", complaint.CategoryFacilities, complaint.UrgencyMedium},
	{"The student portal logs me out every five minutes and loses my course registration selections.", complaint.CategoryITSupport, complaint.UrgencyHigh},
	{"Lecture recordings for BIO202 are never uploaded even though the syllabus promises them.", complaint.CategoryAcademic, complaint.UrgencyLow},
	{"There is persistent mold in the bathroom of my shared flat in West Court.", complaint.CategoryHousing, complaint.UrgencyHigh},
}

// runSeed loads complaints into the database: from a CSV when a path is
// given (complaint_text, category, urgency columns), otherwise from the
// built-in samples. Rows missing category or urgency are classified via
// the inference service when configured, with safe defaults otherwise.
func runSeed(ctx context.Context, stdout io.Writer, configPath, csvPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := complaint.NewStore(db)
	if err != nil {
		return fmt.Errorf("open complaint store: %w", err)
	}

	var predictor classifier.Predictor
	if cfg.Classifier.BaseURL != "" {
		predictor = classifier.New(cfg.Classifier.BaseURL)
		logger.Info("classifier enabled", "url", cfg.Classifier.BaseURL)
	}

	var created int
	if csvPath != "" {
		created, err = seedFromCSV(ctx, store, predictor, logger, csvPath)
	} else {
		created, err = seedBuiltins(ctx, store)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Seeded %d complaints into %s\n", created, cfg.Database.Path)
	return nil
}

func seedBuiltins(ctx context.Context, store *complaint.Store) (int, error) {
	created := 0
	for _, s := range seedSamples {
		if _, err := store.Create(ctx, s.text, s.category, s.urgency); err != nil {
			return created, fmt.Errorf("seed complaint: %w", err)
		}
		created++
	}
	return created, nil
}

func seedFromCSV(ctx context.Context, store *complaint.Store, predictor classifier.Predictor, logger *slog.Logger, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	textCol, ok := col["complaint_text"]
	if !ok {
		return 0, fmt.Errorf("csv missing complaint_text column")
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	created := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return created, fmt.Errorf("read csv row: %w", err)
		}

		text := strings.TrimSpace(row[textCol])
		if text == "" {
			continue
		}

		category := complaint.Category(field(row, "category"))
		urgency := complaint.Urgency(field(row, "urgency"))

		if category == "" || urgency == "" {
			pred := classifier.Fallback()
			if predictor != nil {
				p, err := predictor.Predict(ctx, text)
				if err != nil {
					logger.Warn("classification failed, using defaults", "error", err)
				} else {
					pred = p
				}
			}
			if category == "" {
				category = pred.Category
			}
			if urgency == "" {
				urgency = pred.Urgency
			}
		}

		if _, err := store.Create(ctx, text, category, urgency); err != nil {
			return created, fmt.Errorf("seed complaint: %w", err)
		}
		created++
	}

	return created, nil
}
