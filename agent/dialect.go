package agent

import (
	"fmt"
	"regexp"
	"strings"
)

// SQLDialect captures the two things the orchestrator needs to know about the
// target database: which family its SQL belongs to and which schema name to
// assume when the model leaves table names unqualified.
type SQLDialect struct {
	// DatabaseType is the raw type string from the connection config,
	// e.g. "mysql", "postgres", "sqlserver", "doris".
	DatabaseType string
	// DatabaseName is needed for MySQL-family databases, where the default
	// schema is the database itself.
	DatabaseName string
}

// Dialect families. Unknown types fall back to the SQL Server convention.
const (
	familySQLServer = "sqlserver"
	familyPostgres  = "postgres"
	familyMySQL     = "mysql"
)

func (d SQLDialect) family() string {
	switch strings.ToLower(d.DatabaseType) {
	case "sqlserver", "mssql", "azuresql", "synapse":
		return familySQLServer
	case "postgres", "postgresql", "redshift", "cockroachdb", "timescaledb":
		return familyPostgres
	case "mysql", "mariadb", "doris", "tidb", "starrocks", "oceanbase":
		return familyMySQL
	default:
		return familySQLServer
	}
}

// DefaultSchema returns the schema-qualification convention assumed when the
// model omits a schema prefix: dbo for the SQL Server family, public for the
// Postgres family, the database name for the MySQL family.
func (d SQLDialect) DefaultSchema() string {
	switch d.family() {
	case familyPostgres:
		return "public"
	case familyMySQL:
		if d.DatabaseName != "" {
			return d.DatabaseName
		}
		return "dbo"
	default:
		return "dbo"
	}
}

// LimitSyntax returns the row-limiting clause convention for the dialect,
// used in the system instruction so the model emits the right syntax.
func (d SQLDialect) LimitSyntax() string {
	switch d.family() {
	case familySQLServer:
		return "SELECT TOP n ..."
	case familyPostgres:
		return "... FETCH FIRST n ROWS ONLY (or LIMIT n)"
	default:
		return "... LIMIT n"
	}
}

// EnsureRowLimit appends (or injects, for TOP dialects) a row-limiting clause
// when the statement has none, to keep result sets bounded.
func (d SQLDialect) EnsureRowLimit(sqlText string, maxRows int) string {
	trimmed := strings.TrimRight(strings.TrimSpace(sqlText), "; \t\n\r")
	upper := strings.ToUpper(trimmed)

	switch d.family() {
	case familySQLServer:
		if strings.Contains(upper, " TOP ") || strings.Contains(upper, "FETCH FIRST") {
			return trimmed
		}
		return topInjectRegex.ReplaceAllString(trimmed, fmt.Sprintf("${1} TOP %d ", maxRows))
	default:
		if strings.Contains(upper, "LIMIT") || strings.Contains(upper, "FETCH FIRST") {
			return trimmed
		}
		return fmt.Sprintf("%s LIMIT %d", trimmed, maxRows)
	}
}

// topInjectRegex matches the first SELECT keyword so a TOP clause can be
// inserted directly after it.
var topInjectRegex = regexp.MustCompile(`(?i)^(\s*SELECT)\s+`)

// Hints returns dialect-specific SQL authoring rules for the prompt.
func (d SQLDialect) Hints() string {
	switch d.family() {
	case familySQLServer:
		return `SQL Server Syntax Rules:
- Row limit: SELECT TOP n (no LIMIT clause!)
- Date: YEAR(col), MONTH(col), DAY(col), FORMAT(col, 'yyyy-MM')
- Concat: CONCAT(col1, ' ', col2) or col1 + col2
- ISNULL(a, b) or COALESCE(a, b)
- Current: GETDATE()`
	case familyPostgres:
		return `PostgreSQL Syntax Rules:
- Row limit: LIMIT n or FETCH FIRST n ROWS ONLY
- Date: EXTRACT(YEAR FROM col), TO_CHAR(col, 'YYYY-MM')
- Concat: col1 || ' ' || col2 or CONCAT()
- COALESCE(a, b)
- Current: NOW(), CURRENT_DATE`
	default:
		return `MySQL Syntax Rules:
- Row limit: LIMIT n
- Date: YEAR(col), MONTH(col), DAY(col), DATE_FORMAT(col, '%Y-%m')
- Concat: CONCAT(col1, ' ', col2)
- IFNULL(a, b) or COALESCE(a, b)
- Current: NOW(), CURDATE()`
	}
}
