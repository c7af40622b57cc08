package model

import "time"

// Decision log entry types per spec.md §3/§4.4.
const (
	DecisionTypeTrackSelection    = "track_selection"
	DecisionTypeValidation        = "validation"
	DecisionTypeError             = "error"
	DecisionTypeRelaxation        = "relaxation"
	DecisionTypeMetadataRetrieval = "metadata_retrieval"
	DecisionTypeLLMTurn           = "llm_turn"
)

// DecisionLogEntry is one append-only audit record. DecisionData is
// free-form so each decision type can carry whatever shape it needs.
type DecisionLogEntry struct {
	ID              string                 `json:"id"`
	PlaylistID      string                 `json:"playlist_id"`
	Type            string                 `json:"decision_type"`
	Timestamp       time.Time              `json:"timestamp"`
	DecisionData    map[string]interface{} `json:"decision_data"`
	CostIncurred    Money                  `json:"cost_incurred"`
	ExecutionTimeMs int64                  `json:"execution_time_ms"`
}
