package dbpool

import (
	"testing"
)

func TestEngineFor(t *testing.T) {
	cases := []struct {
		dbType string
		want   Engine
		ok     bool
	}{
		{"sqlite", EngineSQLite, true},
		{"sqlite3", EngineSQLite, true},
		{"mysql", EngineMySQL, true},
		{"mariadb", EngineMySQL, true},
		{"doris", EngineMySQL, true},
		{"tidb", EngineMySQL, true},
		{"snowflake", EngineSnowflake, true},
		{"oracle", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, err := EngineFor(c.dbType)
		if c.ok && (err != nil || got != c.want) {
			t.Errorf("EngineFor(%q) = %q, %v; want %q", c.dbType, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Errorf("EngineFor(%q) = %q, want error", c.dbType, got)
		}
	}
}

func TestQuoteIdent(t *testing.T) {
	mysql := NewDialect(EngineMySQL)
	if got := mysql.QuoteIdent("or`der"); got != "`or``der`" {
		t.Errorf("mysql quote = %q", got)
	}
	sqlite := NewDialect(EngineSQLite)
	if got := sqlite.QuoteIdent(`or"der`); got != `"or""der"` {
		t.Errorf("sqlite quote = %q", got)
	}
}
