package observability

import (
	"context"
	"log"
	"sync"

	"github.com/troykelly/playlistgen/internal/config"
	"github.com/troykelly/playlistgen/internal/model"
	langfuse "github.com/henomis/langfuse-go"
	lfmodel "github.com/henomis/langfuse-go/model"
)

// LangfuseExporter adapts the Langfuse client into a decisionlog.TraceExporter:
// each playlist gets one Langfuse trace, and every decision log entry
// appended for that playlist becomes one Generation/span on it, so the
// append-only decision log and an optional hosted trace view are populated
// from the same event stream.
type LangfuseExporter struct {
	client  *langfuse.Langfuse
	enabled bool
	ctx     context.Context

	mu     sync.Mutex
	traces map[string]*lfmodel.Trace
}

// NewLangfuseExporter constructs an exporter; when Langfuse is disabled or
// unconfigured, Mirror becomes a safe no-op rather than failing the batch.
func NewLangfuseExporter(ctx context.Context, cfg *config.Config) *LangfuseExporter {
	if !cfg.LangfuseEnabled || cfg.LangfuseSecretKey == "" {
		log.Println("⚠️  Langfuse not configured (LANGFUSE_ENABLED=false or LANGFUSE_SECRET_KEY not set)")
		return &LangfuseExporter{enabled: false, ctx: ctx}
	}

	client := langfuse.New(ctx)
	log.Printf("✅ Langfuse initialized (host: %s)", cfg.LangfuseHost)

	return &LangfuseExporter{
		client:  client,
		enabled: true,
		ctx:     ctx,
		traces:  make(map[string]*lfmodel.Trace),
	}
}

// Mirror implements decisionlog.TraceExporter. It is always called after the
// durable JSONL append has already succeeded and under a recover() guard, so
// any Langfuse-side failure only costs observability, never durability.
func (e *LangfuseExporter) Mirror(entry model.DecisionLogEntry) {
	if !e.enabled {
		return
	}

	trace := e.traceFor(entry.PlaylistID)
	if trace == nil {
		return
	}

	gen, err := e.client.Generation(&lfmodel.Generation{
		TraceID: trace.ID,
		Name:    entry.Type,
		Input:   entry.DecisionData,
		Usage: lfmodel.Usage{
			Unit:      lfmodel.ModelUsageUnitTokens,
			TotalCost: costToFloat(entry.CostIncurred),
		},
	}, nil)
	if err != nil {
		log.Printf("⚠️  Langfuse: failed to log %s decision for playlist %s: %v", entry.Type, entry.PlaylistID, err)
		return
	}

	if _, err := e.client.GenerationEnd(gen); err != nil {
		log.Printf("⚠️  Langfuse: failed to close generation for playlist %s: %v", entry.PlaylistID, err)
	}
}

func (e *LangfuseExporter) traceFor(playlistID string) *lfmodel.Trace {
	e.mu.Lock()
	defer e.mu.Unlock()

	if trace, ok := e.traces[playlistID]; ok {
		return trace
	}

	trace, err := e.client.Trace(&lfmodel.Trace{
		Name:     "playlist-generation",
		Metadata: map[string]interface{}{"playlist_id": playlistID},
	})
	if err != nil {
		log.Printf("⚠️  Langfuse: failed to create trace for playlist %s: %v", playlistID, err)
		return nil
	}
	e.traces[playlistID] = trace
	return trace
}

// Flush waits for all queued Langfuse events to be sent.
func (e *LangfuseExporter) Flush() {
	if e.enabled && e.client != nil {
		e.client.Flush(e.ctx)
	}
}

// costToFloat converts a Money to float64 purely for Langfuse's own
// TotalCost field, which the SDK types as float64; this conversion never
// feeds back into budget arithmetic, only into an external dashboard.
func costToFloat(m model.Money) float64 {
	return float64(m.Micros()) / 10000.0
}
