package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"datachat/config"
)

// ModelService owns the chat model handle shared by every orchestrator and
// plan runner in the process.
type ModelService struct {
	ChatModel model.ChatModel
	cfg       config.Config
}

// NewModelService builds the chat model from config. Every supported
// provider speaks the OpenAI-compatible API; BaseURL selects the endpoint.
func NewModelService(ctx context.Context, cfg config.Config) (*ModelService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("agent: missing API key")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("agent: missing model name")
	}

	modelCfg := &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.ModelName,
		Timeout: 5 * time.Minute,
	}
	if cfg.MaxTokens > 0 {
		modelCfg.MaxTokens = &cfg.MaxTokens
	}
	inner, err := openai.NewChatModel(ctx, modelCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %v", err)
	}

	return &ModelService{
		ChatModel: &providerErrorWrapper{inner: inner},
		cfg:       cfg,
	}, nil
}

// NewOrchestrator wires an orchestrator against this service's model with
// the config's dialect settings.
func (s *ModelService) NewOrchestrator(searcher SchemaSearcher, opts *OrchestratorOptions) *Orchestrator {
	dialect := SQLDialect{
		DatabaseType: s.cfg.DatabaseType,
		DatabaseName: s.cfg.DatabaseName,
	}
	return NewOrchestrator(s.ChatModel, searcher, dialect, opts)
}

// providerErrorWrapper rewrites the most common provider failures into
// actionable messages. Everything else passes through unchanged.
type providerErrorWrapper struct {
	inner model.ChatModel
}

func (w *providerErrorWrapper) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	resp, err := w.inner.Generate(ctx, input, opts...)
	if err != nil {
		return nil, improveProviderError(err)
	}
	return resp, nil
}

func (w *providerErrorWrapper) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	reader, err := w.inner.Stream(ctx, input, opts...)
	if err != nil {
		return nil, improveProviderError(err)
	}
	return reader, nil
}

func (w *providerErrorWrapper) BindTools(tools []*schema.ToolInfo) error {
	return w.inner.BindTools(tools)
}

func improveProviderError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "overloaded") || strings.Contains(msg, "UNAVAILABLE"):
		return fmt.Errorf("the model is currently overloaded, try again in a few moments: %v", err)
	case strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "rate limit"):
		return fmt.Errorf("rate limit exceeded, wait before retrying: %v", err)
	case strings.Contains(msg, "401") || strings.Contains(strings.ToLower(msg), "unauthorized"):
		return fmt.Errorf("authentication failed, check the configured API key: %v", err)
	case strings.Contains(msg, "404"):
		return fmt.Errorf("model not found, verify the configured model name: %v", err)
	}
	return err
}
