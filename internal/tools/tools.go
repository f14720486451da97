// Package tools wires the reference tool set into the registry: thin
// handlers that delegate to the LLM client and book one usage record per
// call attempt.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yourname/llmgate/internal/ledger"
	"github.com/yourname/llmgate/internal/llm"
	"github.com/yourname/llmgate/internal/logging"
	"github.com/yourname/llmgate/internal/registry"
)

// Recorder is the ledger's submit surface. Submissions are fire-and-forget;
// a bookkeeping failure never surfaces to the tool caller.
type Recorder interface {
	Submit(rec *ledger.UsageRecord)
}

// Options configures the reference tool handlers.
type Options struct {
	Client          *llm.Client
	Recorder        Recorder
	Project         string
	Username        string
	MaxPromptTokens int
}

// RegisterLLMCall registers the generic llm_call tool: a prompt plus an
// optional per-call model override.
func RegisterLLMCall(reg *registry.Registry, opts Options) error {
	def := registry.Definition{
		Name:        "llm_call",
		Description: "Make a generic call to the configured LLM with a given prompt.",
		InputSchema: registry.Schema{
			Type: "object",
			Properties: map[string]registry.Property{
				"prompt": {
					Type:        "string",
					Description: fmt.Sprintf("The natural language prompt for the LLM. Maximum length is %d tokens.", opts.MaxPromptTokens),
				},
				"model": {
					Type:        "string",
					Description: "Optional model name to use for this request. If not specified, uses the default model.",
				},
			},
			Required: []string{"prompt"},
		},
	}

	return reg.Register(def, func(ctx context.Context, args map[string]interface{}) (string, error) {
		prompt, err := promptArg(args, opts.MaxPromptTokens)
		if err != nil {
			return "", err
		}
		override, _ := args["model"].(string)
		return runCall(ctx, opts, prompt, override)
	})
}

// RegisterAskOnlineQuestion registers the single-purpose factual-question
// tool. It always uses the process default model.
func RegisterAskOnlineQuestion(reg *registry.Registry, opts Options) error {
	def := registry.Definition{
		Name:        "ask_online_question",
		Description: "Asks an online question using the configured LLM.",
		InputSchema: registry.Schema{
			Type: "object",
			Properties: map[string]registry.Property{
				"prompt": {
					Type:        "string",
					Description: "The question to ask the online LLM.",
				},
			},
			Required: []string{"prompt"},
		},
	}

	return reg.Register(def, func(ctx context.Context, args map[string]interface{}) (string, error) {
		prompt, err := promptArg(args, opts.MaxPromptTokens)
		if err != nil {
			return "", err
		}
		return runCall(ctx, opts, prompt, "")
	})
}

func promptArg(args map[string]interface{}, maxTokens int) (string, error) {
	prompt, _ := args["prompt"].(string)
	if prompt == "" {
		return "", fmt.Errorf("%w: missing required 'prompt' argument", registry.ErrInvalidParams)
	}
	if maxTokens > 0 && llm.EstimateTokens(prompt) > maxTokens {
		return "", fmt.Errorf("%w: prompt exceeds maximum length of %d tokens", registry.ErrInvalidParams, maxTokens)
	}
	return prompt, nil
}

// runCall resolves the model, performs the provider exchange, and books the
// attempt. Records are written for both outcomes; a malformed model override
// is rejected before any attempt and books nothing.
func runCall(ctx context.Context, opts Options, prompt, override string) (string, error) {
	model, err := opts.Client.ResolveModel(override)
	if err != nil {
		var modelErr *llm.ModelError
		if errors.As(err, &modelErr) {
			return "", fmt.Errorf("%w: %s", registry.ErrInvalidParams, modelErr.Reason)
		}
		return "", err
	}

	result, err := opts.Client.Call(ctx, prompt, model)
	if err != nil {
		record(opts, &ledger.UsageRecord{Model: model, Success: false})
		return "", err
	}

	record(opts, &ledger.UsageRecord{
		Model:            result.Model,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		CachedTokens:     result.CachedTokens,
		ReasoningTokens:  result.ReasoningTokens,
		Cost:             result.Cost,
		Success:          true,
	})
	return result.Text, nil
}

func record(opts Options, rec *ledger.UsageRecord) {
	if opts.Recorder == nil {
		logging.Debug("usage_recording_disabled", logging.Fields{Component: "tools", Model: rec.Model})
		return
	}
	rec.Timestamp = time.Now().UTC()
	rec.Project = opts.Project
	rec.Username = opts.Username
	opts.Recorder.Submit(rec)
}
