package wellness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/dost/internal/structured"
	"github.com/MrWong99/dost/pkg/provider/generate"
)

// Verdict is the outcome of moderating one message.
type Verdict struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason,omitempty"`
}

// DefaultRejectionReason is shown when the model flags a message without
// saying why.
const DefaultRejectionReason = "Harmful content detected."

var verdictSchema = &generate.Schema{
	Type: generate.TypeObject,
	Properties: map[string]*generate.Schema{
		"safe":   {Type: generate.TypeBoolean},
		"reason": {Type: generate.TypeString},
	},
	Required: []string{"safe"},
}

// Moderate classifies message. When the model fails or answers with
// something unparsable the message is let through and the failure is logged.
func (s *Service) Moderate(ctx context.Context, message string) Verdict {
	req := generate.Request{
		Model:  s.Models().Moderation,
		Prompt: fmt.Sprintf("Safe? JSON. Msg: %q", message),
		Schema: verdictSchema,
	}
	v, err := structured.Call(ctx, s.gen, req, Verdict{Safe: true},
		structured.WithOperation("moderation"), structured.WithMetrics(s.metrics))
	if err != nil {
		slog.Warn("wellness: moderation degraded, allowing message", "err", err)
		return v
	}
	if !v.Safe && strings.TrimSpace(v.Reason) == "" {
		v.Reason = DefaultRejectionReason
	}
	return v
}
