package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/labelscan/internal/metrics"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

// maxFieldBytes caps model-written free text stored on an ingredient.
const maxFieldBytes = 2000

// runner issues one flow's provider call under its own deadline.
type runner struct {
	provider models.AIProvider
	timeout  time.Duration
}

func (r runner) generate(ctx context.Context, flow string, req models.GenerateRequest) (models.GenerateResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	res, err := r.provider.Generate(callCtx, req)
	elapsed := time.Since(start)

	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrInferenceTimeout) {
		err = fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.AICallDurationSeconds.WithLabelValues(flow, result).Observe(elapsed.Seconds())
	slog.Debug("ai call finished",
		"flow", flow,
		"provider", r.provider.Name(),
		"model", res.Model,
		"tool_calls", res.ToolCalls,
		"duration", elapsed,
		"error", err,
	)

	return res, err
}

// decodeJSON parses a model answer, tolerating surrounding markdown fences.
func decodeJSON(text string, v any) error {
	cleaned := stripFences(text)
	if cleaned == "" {
		return fmt.Errorf("%w: empty answer", ErrInvalidResponse)
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag such as "json" on the opening fence line.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
