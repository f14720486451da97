package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/yourname/llmgate/internal/config"
	"github.com/yourname/llmgate/internal/ledger"
	"github.com/yourname/llmgate/internal/ledger/store"
	"github.com/yourname/llmgate/internal/llm"
	"github.com/yourname/llmgate/internal/logging"
	"github.com/yourname/llmgate/internal/redact"
	"github.com/yourname/llmgate/internal/registry"
	"github.com/yourname/llmgate/internal/server"
	"github.com/yourname/llmgate/internal/tools"
)

const ledgerQueueSize = 1024

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "llmgate:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()

	configFile := flag.String("config", "", "Path to optional YAML config file")
	flag.StringVar(&cfg.ServerName, "server-name", cfg.ServerName, "Name of the MCP server")
	flag.StringVar(&cfg.ServerDescription, "server-description", cfg.ServerDescription, "Description of the MCP server")
	flag.StringVar(&cfg.Model, "model", cfg.Model, "Model to use for completions")
	flag.StringVar(&cfg.SystemPromptPath, "system-prompt-file", cfg.SystemPromptPath, "Path to system prompt file")
	flag.StringVar(&cfg.APIBaseURL, "llm-api-base-url", cfg.APIBaseURL, "LLM API base URL (default: from LLM_API_BASE_URL environment variable)")
	flag.StringVar(&cfg.AllowedModelsPath, "allowed-models-file", cfg.AllowedModelsPath, "Path to file with allowed model names (one per line)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the usage ledger database (default: LLMGATE_DB or data/llmgate.db)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warning, error, critical)")
	flag.IntVar(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, "Maximum number of tokens to generate in the LLM response")
	flag.IntVar(&cfg.MaxPromptTokens, "limit-user-prompt-length", cfg.MaxPromptTokens, "Maximum allowed tokens in user prompt")
	skipRedaction := flag.Bool("skip-outbound-key-leaks", false, "Skip redaction of the API key in outbound content")
	disableAccounting := flag.Bool("disable-logging", false, "Disable LLM usage accounting")
	flag.Parse()

	if *configFile != "" {
		if err := cfg.MergeFile(*configFile); err != nil {
			return err
		}
	}
	cfg.MergeEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		logging.SetLevel(cfg.LogLevel)
	}

	// The log redactor goes in before anything else can log the credential.
	logFilter := redact.New(redact.Rule{Secret: cfg.APIKey, Placeholder: redact.PlaceholderLog})
	logging.SetRedactor(logFilter.Apply)

	filter := redact.New(redact.Rule{Secret: cfg.APIKey, Placeholder: redact.PlaceholderResponse})
	if *skipRedaction {
		logging.Info("outbound_redaction_disabled", logging.Fields{Component: "main"})
		filter = redact.New()
	}

	var recorder tools.Recorder
	var worker *ledger.Worker
	if !*disableAccounting {
		db, err := store.NewDB(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening ledger store: %w", err)
		}
		worker, err = ledger.NewWorker(ledgerQueueSize, db)
		if err != nil {
			return fmt.Errorf("creating ledger writer: %w", err)
		}
		if err := worker.Start(cfg.ServerName); err != nil {
			return fmt.Errorf("starting ledger writer: %w", err)
		}
		defer func() {
			if err := worker.Shutdown(5 * time.Second); err != nil {
				logging.Warn("ledger_shutdown_failed", logging.Fields{Component: "main", Error: err.Error()})
			}
		}()
		recorder = worker
	} else {
		logging.Info("usage_accounting_disabled", logging.Fields{Component: "main"})
	}

	client, err := llm.NewClient(llm.Options{
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.APIBaseURL,
		Model:         cfg.Model,
		SystemPrompt:  config.LoadSystemPrompt(cfg.SystemPromptPath),
		AllowedModels: cfg.AllowedModels,
		MaxTokens:     cfg.MaxTokens,
	}, llm.NewHTTPTransport(0), filter)
	if err != nil {
		return fmt.Errorf("creating LLM client: %w", err)
	}

	reg := registry.New()
	toolOpts := tools.Options{
		Client:          client,
		Recorder:        recorder,
		Project:         cfg.ServerName,
		Username:        config.Username(),
		MaxPromptTokens: cfg.MaxPromptTokens,
	}
	if err := tools.RegisterLLMCall(reg, toolOpts); err != nil {
		return fmt.Errorf("registering llm_call: %w", err)
	}
	if err := tools.RegisterAskOnlineQuestion(reg, toolOpts); err != nil {
		return fmt.Errorf("registering ask_online_question: %w", err)
	}

	srv, err := server.New(server.Options{
		Name:        cfg.ServerName,
		Description: cfg.ServerDescription,
		Registry:    reg,
		Filter:      filter,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	logging.Info("server_starting", logging.Fields{Component: "main", Model: cfg.Model})
	return srv.Serve(context.Background(), os.Stdin, os.Stdout)
}
