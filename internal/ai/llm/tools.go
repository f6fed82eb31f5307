package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/labelscan/pkg/models"
)

// MaxToolRounds bounds how many times a provider feeds tool results back to
// the model within one Generate call.
const MaxToolRounds = 5

// ErrTooManyToolRounds is returned when the model keeps requesting tools.
var ErrTooManyToolRounds = fmt.Errorf("%w: exceeded %d tool rounds", ErrInvalidResponse, MaxToolRounds)

// CallTool runs the named tool and returns its JSON-encoded result. Unknown
// tools and tool failures are reported to the model as {"error": "..."}
// instead of failing the generation.
func CallTool(ctx context.Context, tools []models.Tool, name string, args map[string]any) string {
	for _, t := range tools {
		if t.Name != name {
			continue
		}
		if t.Call == nil {
			return errorPayload(fmt.Sprintf("tool %q is not callable", name))
		}
		out, err := t.Call(ctx, args)
		if err != nil {
			slog.Warn("tool call failed", "tool", name, "error", err)
			return errorPayload(err.Error())
		}
		b, err := json.Marshal(out)
		if err != nil {
			return errorPayload(fmt.Sprintf("encoding tool result: %v", err))
		}
		return string(b)
	}
	return errorPayload(fmt.Sprintf("unknown tool %q", name))
}

// ParseArgs decodes a JSON arguments object. Malformed input yields an empty map.
func ParseArgs(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		slog.Warn("discarding malformed tool arguments", "error", err)
		return map[string]any{}
	}
	return args
}

func errorPayload(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}
