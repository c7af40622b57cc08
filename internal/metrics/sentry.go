package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/troykelly/playlistgen/internal/model"
)

// SentryMetrics records playlist-generation spans alongside the Sentry
// breadcrumbs internal/logger already emits; these give per-daypart
// selection/relaxation/validation timings their own trace data.
type SentryMetrics struct {
	enabled bool
}

func NewSentryMetrics() *SentryMetrics {
	return &SentryMetrics{enabled: true}
}

// RecordSelectionTurn records one LLM tool-use turn's token usage against
// the current transaction, the way the teacher attached OpenAI token usage
// to its request transaction.
func (m *SentryMetrics) RecordSelectionTurn(ctx context.Context, modelName string, inputTokens, outputTokens int64, toolCallCount int) {
	if !m.enabled {
		return
	}

	if transaction := sentry.TransactionFromContext(ctx); transaction != nil {
		transaction.SetTag("llm.model", modelName)
		transaction.SetData("llm.input_tokens", inputTokens)
		transaction.SetData("llm.output_tokens", outputTokens)
		transaction.SetData("llm.tool_calls", toolCallCount)
	}

	span := sentry.StartSpan(ctx, "selector.turn")
	defer span.Finish()
	span.SetTag("model", modelName)
	span.SetData("input_tokens", inputTokens)
	span.SetData("output_tokens", outputTokens)
	span.SetData("tool_calls", toolCallCount)
	span.Status = sentry.SpanStatusOK
	span.Description = fmt.Sprintf("Selector turn: %s", modelName)
}

// RecordRelaxationStep records one step of the constraint relaxation ladder.
func (m *SentryMetrics) RecordRelaxationStep(ctx context.Context, stepIndex int, constraintType string) {
	if !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "relaxer.step")
	defer span.Finish()
	span.SetTag("constraint_type", constraintType)
	span.SetData("step_index", stepIndex)
	span.Status = sentry.SpanStatusOK
	span.Description = fmt.Sprintf("Relaxation step %d: %s", stepIndex, constraintType)
}

// RecordValidation records one playlist's validation outcome.
func (m *SentryMetrics) RecordValidation(ctx context.Context, status string, compliancePercentage float64) {
	if !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "validator.validate")
	defer span.Finish()
	span.SetTag("status", status)
	span.SetData("compliance_percentage", compliancePercentage)
	if status == model.StatusFail {
		span.Status = sentry.SpanStatusInternalError
	} else {
		span.Status = sentry.SpanStatusOK
	}
	span.Description = fmt.Sprintf("Validation: %s", status)
}

// RecordDaypartGeneration records the overall outcome of generating one
// daypart's playlist.
func (m *SentryMetrics) RecordDaypartGeneration(ctx context.Context, duration time.Duration, success bool) {
	if !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "batch.daypart")
	defer span.Finish()
	span.SetTag("success", fmt.Sprintf("%t", success))
	span.SetData("duration_ms", duration.Milliseconds())
	if success {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}
	span.Description = fmt.Sprintf("Daypart generation: %t", success)
}
