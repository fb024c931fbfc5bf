package agent

import "context"

// RankedSchema is one candidate table schema returned by the semantic search
// service, with its similarity score against the question.
type RankedSchema struct {
	Schema     string  `json:"schema"`
	Similarity float64 `json:"similarity"`
}

// SchemaSearchResult is the semantic search response. Success=false and an
// empty Data slice are treated identically by the orchestrator: no usable
// schema, so the model is never invoked.
type SchemaSearchResult struct {
	Success bool           `json:"success"`
	Data    []RankedSchema `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// SchemaSearcher ranks candidate tables for a question. The implementation
// (embedding index, keyword match, full catalog dump) is the host's concern.
type SchemaSearcher interface {
	SearchSimilarTables(ctx context.Context, databaseID int64, query string, limit int) (*SchemaSearchResult, error)
}
