// Package schemaindex builds an in-memory index of the connected database's
// tables and ranks them against natural-language questions by keyword
// overlap, so the agent prompt only carries the tables that matter.
package schemaindex

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"datachat/agent"
	"datachat/dbpool"
)

// Indexer introspects one database connection and serves similarity
// searches over its tables. It implements agent.SchemaSearcher.
type Indexer struct {
	db      *sql.DB
	dialect *dbpool.Dialect
	logger  func(string)

	mu     sync.RWMutex
	tables []tableSchema
}

type tableSchema struct {
	name   string
	schema string
	tokens map[string]struct{}
}

// New creates an indexer over an open connection. The index is built lazily
// on first search; call Refresh to build it eagerly.
func New(db *sql.DB, engine dbpool.Engine, logger func(string)) *Indexer {
	if logger == nil {
		logger = func(string) {}
	}
	return &Indexer{
		db:      db,
		dialect: dbpool.NewDialect(engine),
		logger:  logger,
	}
}

// Refresh re-introspects the database and rebuilds the index.
func (ix *Indexer) Refresh(ctx context.Context) error {
	names, err := ix.listTables(ctx)
	if err != nil {
		return fmt.Errorf("schemaindex: list tables: %w", err)
	}

	tables := make([]tableSchema, 0, len(names))
	for _, name := range names {
		rendered, err := ix.renderTable(ctx, name)
		if err != nil {
			ix.logger(fmt.Sprintf("[SCHEMA-INDEX] skipping table %s: %v", name, err))
			continue
		}
		tables = append(tables, tableSchema{
			name:   name,
			schema: rendered,
			tokens: tokenize(name + " " + rendered),
		})
	}

	ix.mu.Lock()
	ix.tables = tables
	ix.mu.Unlock()
	ix.logger(fmt.Sprintf("[SCHEMA-INDEX] indexed %d tables", len(tables)))
	return nil
}

// SearchSimilarTables ranks indexed tables against the query. The databaseID
// is accepted for interface compatibility; an Indexer always serves the one
// database it was built over.
func (ix *Indexer) SearchSimilarTables(ctx context.Context, databaseID int64, query string, limit int) (*agent.SchemaSearchResult, error) {
	ix.mu.RLock()
	empty := len(ix.tables) == 0
	ix.mu.RUnlock()
	if empty {
		if err := ix.Refresh(ctx); err != nil {
			return &agent.SchemaSearchResult{Success: false, Error: err.Error()}, nil
		}
	}

	if limit <= 0 {
		limit = 5
	}
	queryTokens := tokenize(query)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ranked := make([]agent.RankedSchema, 0, len(ix.tables))
	for i := range ix.tables {
		t := &ix.tables[i]
		ranked = append(ranked, agent.RankedSchema{
			Schema:     t.schema,
			Similarity: similarity(queryTokens, t.tokens),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	if len(ranked) == 0 {
		return &agent.SchemaSearchResult{Success: false, Error: "no tables found in database"}, nil
	}
	return &agent.SchemaSearchResult{Success: true, Data: ranked}, nil
}

func (ix *Indexer) listTables(ctx context.Context) ([]string, error) {
	result, err := dbpool.QueryRows(ctx, ix.db, ix.dialect.ListTablesQuery())
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Data))
	for _, row := range result.Data {
		// SHOW TABLES and information_schema queries name the column
		// differently per engine, so take the first value.
		for _, v := range row {
			if s, ok := v.(string); ok && s != "" {
				names = append(names, s)
			}
			break
		}
	}
	sort.Strings(names)
	return names, nil
}

// renderTable produces the schema text embedded into the prompt: the table
// name and its column list with types.
func (ix *Indexer) renderTable(ctx context.Context, name string) (string, error) {
	result, err := dbpool.QueryRows(ctx, ix.db, ix.dialect.DescribeColumnsQuery(name))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("TABLE %s (\n", name))
	for _, row := range result.Data {
		colName := firstString(row, "name", "Field", "column_name", "COLUMN_NAME")
		colType := firstString(row, "type", "Type", "data_type", "DATA_TYPE")
		if colName == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s %s\n", colName, colType))
	}
	sb.WriteString(")")
	return sb.String(), nil
}

// firstString returns the first non-empty string value among the candidate
// keys. DESCRIBE result column names vary by engine.
func firstString(row map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := row[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// tokenize lowercases and splits on non-alphanumeric runes, so snake_case
// identifiers match the words of a question.
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}) {
		if len(word) > 1 {
			tokens[word] = struct{}{}
		}
	}
	return tokens
}

// similarity is the fraction of query tokens present in the table's tokens.
func similarity(query, table map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for tok := range query {
		if _, ok := table[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
