package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/errandhq/errand/internal/assistant"
	"github.com/errandhq/errand/internal/auth"
	"github.com/errandhq/errand/internal/config"
	"github.com/errandhq/errand/internal/jobs"
	"github.com/errandhq/errand/internal/kv"
	"github.com/errandhq/errand/internal/llm"
	"github.com/errandhq/errand/internal/nlp"
	"github.com/errandhq/errand/internal/scheduler"
	"github.com/errandhq/errand/pkg/types"
)

func main() {
	rulesPath := flag.String("rules", "", "Path to pattern-rule YAML file (overrides ERRAND_RULES_PATH)")
	stdin := flag.Bool("stdin", false, "Read commands from stdin, one per line")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *rulesPath != "" {
		cfg.NLP.RulesPath = *rulesPath
	}

	// Job store
	jobStore, err := openJobStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize job store: %v", err)
	}
	defer jobStore.Close()

	// Durable assistant state
	stateStore, err := openStateStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize state store: %v", err)
	}
	defer stateStore.Close()

	// NLP pipeline: pattern tier first, model tier as fallback
	rules := nlp.DefaultRules()
	if cfg.NLP.RulesPath != "" {
		loaded, err := nlp.LoadRules(cfg.NLP.RulesPath)
		if err != nil {
			log.Fatalf("Failed to load pattern rules: %v", err)
		}
		rules = loaded
		log.Printf("Loaded pattern rules from %s", cfg.NLP.RulesPath)
	}
	pattern, err := nlp.NewPatternClassifier(rules)
	if err != nil {
		log.Fatalf("Failed to compile pattern rules: %v", err)
	}

	if cfg.NLP.RulesPath != "" {
		watcher := nlp.NewRuleWatcher(cfg.NLP.RulesPath, pattern)
		if err := watcher.Start(); err != nil {
			log.Printf("WARNING: rule hot-reload disabled: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	ollama := llm.NewOllamaClient(llm.OllamaConfig{
		BaseURL: cfg.LLM.OllamaURL,
		Model:   cfg.LLM.OllamaModel,
		Timeout: cfg.LLM.Timeout,
	})
	interpreter := nlp.NewInterpreter(nlp.NewFallbackClassifier(
		pattern,
		nlp.NewModelClassifier(ollama),
	))

	// Credential supervision
	var cache auth.TokenCache
	if cfg.Auth.TokenCachePath != "" {
		fileCache, err := auth.NewFileCache(cfg.Auth.TokenCachePath)
		if err != nil {
			log.Fatalf("Failed to open token cache: %v", err)
		}
		cache = fileCache
	}
	supervisor := auth.NewSupervisor(cache, cfg.Auth.RefreshThreshold)
	for _, service := range []string{"calendar", "documents"} {
		if err := supervisor.Register(service, auth.RefresherFunc(
			func(ctx context.Context, token auth.Token) (auth.Token, error) {
				// Local backends take any token; a real provider plugs in here.
				return token, nil
			})); err != nil {
			log.Fatalf("Failed to register %s credentials: %v", service, err)
		}
	}

	// Cron scheduler
	location, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		log.Fatalf("Invalid timezone %q: %v", cfg.Scheduler.Timezone, err)
	}
	sched := scheduler.New(location)
	defer sched.Shutdown()

	// Job manager with configured retry defaults
	manager := jobs.NewManager(jobStore, jobs.ManagerConfig{
		Defaults: jobs.EnqueueOptions{
			MaxAttempts: cfg.Jobs.MaxAttempts,
			Backoff:     backoffPolicy(cfg),
		},
		ShutdownTimeout: cfg.Jobs.ShutdownTimeout,
	})

	sessions, err := kv.NewSessionStore(0)
	if err != nil {
		log.Fatalf("Failed to create session store: %v", err)
	}

	documents, err := assistant.NewLocalDocuments(filepath.Join(cfg.Storage.DataPath, "documents"))
	if err != nil {
		log.Fatalf("Failed to initialize document backend: %v", err)
	}

	a := assistant.New(interpreter, manager, sched, sessions, stateStore, assistant.Services{
		Calendar:  assistant.NewLocalCalendar(stateStore),
		Documents: documents,
		Notifier:  assistant.LogNotifier{},
		Auth:      supervisor,
	}, cfg.NLP.LowConfidenceThreshold)

	queueConfig := jobs.QueueConfig{
		Concurrency:   cfg.Jobs.Workers,
		RatePerSecond: cfg.Jobs.RatePerSecond,
	}
	if err := a.WireQueues(queueConfig, queueConfig); err != nil {
		log.Fatalf("Failed to wire job queues: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.Start(ctx); err != nil {
		log.Fatalf("Failed to start job manager: %v", err)
	}

	if cfg.Scheduler.DocumentCron != "" {
		if !a.ScheduleRecurringDocument("recurring-document", cfg.Scheduler.DocumentCron, "system", "recurring") {
			log.Fatalf("Invalid document cron expression %q", cfg.Scheduler.DocumentCron)
		}
	}

	log.Printf("errand daemon running (storage=%s, workers=%d)", cfg.Storage.StorageEngine, cfg.Jobs.Workers)

	if *stdin {
		go runREPL(ctx, a)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	manager.Shutdown()
}

// runREPL reads free-text commands from stdin, one per line, and prints
// the assistant's structured result. Development convenience only.
func runREPL(ctx context.Context, a *assistant.Assistant) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		intent, result := a.Submit(ctx, "local", line)
		if result.Success {
			fmt.Printf("[%s %.2f] ok: %+v\n", intent.Type, intent.Confidence, result.Data)
		} else {
			fmt.Printf("error [%s]: %s\n", result.Error.Code, result.Error.Message)
		}
	}
}

func openJobStore(cfg *config.Config) (jobs.JobStore, error) {
	switch cfg.Storage.StorageEngine {
	case "memory":
		return jobs.NewMemoryStore(), nil
	case "postgres":
		return jobs.NewPostgresStore(cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0755); err != nil {
			return nil, err
		}
		return jobs.NewSQLiteStore(filepath.Join(cfg.Storage.DataPath, "jobs.db"))
	}
}

func openStateStore(cfg *config.Config) (kv.Store, error) {
	if cfg.Storage.StorageEngine == "memory" {
		return kv.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(cfg.Storage.DataPath, 0755); err != nil {
		return nil, err
	}
	return kv.NewSQLiteStore(filepath.Join(cfg.Storage.DataPath, "state.db"))
}

func backoffPolicy(cfg *config.Config) types.BackoffPolicy {
	return types.BackoffPolicy{
		Type:      types.BackoffType(cfg.Jobs.BackoffPolicy),
		BaseDelay: cfg.Jobs.BackoffBase,
	}
}
