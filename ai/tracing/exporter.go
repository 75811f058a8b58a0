package tracing

import (
	"log/slog"
	"time"
)

// Exporter exports a finished trace.
type Exporter interface {
	Export(trace *Trace)
}

// ExporterFunc adapts a function to Exporter.
type ExporterFunc func(trace *Trace)

// Export calls f.
func (f ExporterFunc) Export(trace *Trace) { f(trace) }

// SlowPhaseThreshold is the phase duration above which LogExporter warns.
const SlowPhaseThreshold = 30 * time.Second

// LogExporter exports traces to structured logs.
type LogExporter struct {
	logger *slog.Logger
}

// NewLogExporter creates a log exporter; a nil logger uses slog.Default.
func NewLogExporter(logger *slog.Logger) *LogExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogExporter{logger: logger}
}

// Export logs a trace summary, slow phases and failed calls.
func (e *LogExporter) Export(trace *Trace) {
	if trace == nil {
		return
	}

	phases := trace.Phases()
	llmCalls := trace.LLMCalls()
	toolCalls := trace.ToolCalls()

	e.logger.Info("trace finished",
		"trace_id", trace.TraceID,
		"operation", trace.Operation,
		"status", trace.Status().String(),
		"duration_ms", trace.Duration().Milliseconds(),
		"phases", len(phases),
		"llm_calls", len(llmCalls),
		"tool_calls", len(toolCalls),
		"total_tokens", trace.TotalTokens(),
	)

	for _, phase := range phases {
		if phase.Duration > SlowPhaseThreshold {
			e.logger.Warn("slow phase",
				"trace_id", trace.TraceID,
				"phase", phase.Name,
				"duration_ms", phase.Duration.Milliseconds(),
			)
		}
	}

	for _, call := range llmCalls {
		if call.Status == StatusError {
			e.logger.Error("llm call failed",
				"trace_id", trace.TraceID,
				"provider", call.Provider,
				"error", call.Error,
			)
		}
	}

	for _, call := range toolCalls {
		if call.Status == StatusError {
			e.logger.Warn("tool call failed",
				"trace_id", trace.TraceID,
				"tool", call.Name,
				"error", call.Error,
			)
		}
	}
}
