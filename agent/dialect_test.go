package agent

import (
	"strings"
	"testing"
)

func TestDefaultSchema(t *testing.T) {
	cases := []struct {
		dbType string
		dbName string
		want   string
	}{
		{"postgres", "", "public"},
		{"postgresql", "sales", "public"},
		{"redshift", "", "public"},
		{"mysql", "sales", "sales"},
		{"doris", "warehouse", "warehouse"},
		{"mysql", "", "dbo"},
		{"sqlserver", "", "dbo"},
		{"mssql", "anything", "dbo"},
		{"", "", "dbo"},
		{"somethingelse", "", "dbo"},
	}

	for _, c := range cases {
		d := SQLDialect{DatabaseType: c.dbType, DatabaseName: c.dbName}
		if got := d.DefaultSchema(); got != c.want {
			t.Errorf("DefaultSchema(%q, %q) = %q, want %q", c.dbType, c.dbName, got, c.want)
		}
	}
}

func TestEnsureRowLimitAppendsLimit(t *testing.T) {
	d := SQLDialect{DatabaseType: "mysql"}

	got := d.EnsureRowLimit("SELECT name FROM users", 500)
	if !strings.Contains(got, "LIMIT 500") {
		t.Errorf("expected LIMIT clause, got %q", got)
	}

	// Existing limit must be left alone.
	withLimit := "SELECT name FROM users LIMIT 10"
	if got := d.EnsureRowLimit(withLimit, 500); got != withLimit {
		t.Errorf("query with LIMIT was modified: %q", got)
	}
}

func TestEnsureRowLimitInjectsTop(t *testing.T) {
	d := SQLDialect{DatabaseType: "sqlserver"}

	got := d.EnsureRowLimit("SELECT name FROM dbo.users", 100)
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(got)), "SELECT TOP 100") {
		t.Errorf("expected TOP injection, got %q", got)
	}

	withTop := "SELECT TOP 5 name FROM dbo.users"
	if got := d.EnsureRowLimit(withTop, 100); got != withTop {
		t.Errorf("query with TOP was modified: %q", got)
	}
}

func TestUnknownDialectFallsBackToSQLServer(t *testing.T) {
	d := SQLDialect{DatabaseType: "exoticdb"}
	if got := d.DefaultSchema(); got != "dbo" {
		t.Errorf("unknown dialect default schema = %q, want dbo", got)
	}
	if !strings.Contains(d.LimitSyntax(), "TOP") {
		t.Errorf("unknown dialect limit syntax = %q, want TOP form", d.LimitSyntax())
	}
}
