package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/kiranshivaraju/labelscan/internal/ai/anthropic"
	"github.com/kiranshivaraju/labelscan/internal/ai/gemini"
	"github.com/kiranshivaraju/labelscan/internal/ai/ollama"
	"github.com/kiranshivaraju/labelscan/internal/ai/openai"
	"github.com/kiranshivaraju/labelscan/internal/cache"
	"github.com/kiranshivaraju/labelscan/internal/config"
	"github.com/kiranshivaraju/labelscan/internal/knowledge"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at startup.
func NewProvider(ctx context.Context, cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "gemini":
		return gemini.NewProvider(ctx, cfg.Gemini)
	case "ollama":
		return ollama.NewProvider(cfg.Ollama), nil
	case "vllm":
		return openai.NewCompatible("vllm", cfg.VLLM.BaseURL, "", cfg.VLLM.Model), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of gemini, ollama, vllm, openai, anthropic", cfg.Provider)
	}
}

// NewAnalyzer builds the analyzer selected by cfg.Mode. ca may be nil.
func NewAnalyzer(cfg config.AnalysisConfig, provider models.AIProvider, kb *knowledge.Base, ca cache.Cache, timeout time.Duration) (Analyzer, error) {
	switch cfg.Mode {
	case ModeBatch:
		return NewBatchAnalyzer(provider, ca, cfg.CacheTTL, timeout), nil
	case ModeHybrid:
		return NewHybridAnalyzer(kb, NewDescriber(provider, timeout), ca, cfg.CacheTTL, cfg.Concurrency), nil
	default:
		return nil, fmt.Errorf("unknown analyzer mode %q: must be one of batch, hybrid", cfg.Mode)
	}
}
