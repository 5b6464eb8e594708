package testutil

import (
	"database/sql"
	"os"
	"strconv"
	"testing"

	"github.com/xxxsen/proposal/internal/config"
	"github.com/xxxsen/proposal/internal/db"
)

// OpenTestDB connects to the postgres named by TEST_DB_HOST and applies the
// migrations. The test is skipped when the variable is unset.
func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	port := 5432
	if v, err := strconv.Atoi(os.Getenv("TEST_DB_PORT")); err == nil && v > 0 {
		port = v
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     port,
		User:     "proposal",
		Password: "proposal_pass",
		DBName:   "proposal_test",
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return conn, func() {
		_, _ = conn.Exec("DELETE FROM profiles WHERE user_id LIKE 'pgtest-%'")
		_, _ = conn.Exec("DELETE FROM successful_proposals WHERE user_id LIKE 'pgtest-%'")
		_ = conn.Close()
	}
}

// Vector returns a unit vector of dim elements pointing along axis.
func Vector(dim, axis int) []float32 {
	vec := make([]float32, dim)
	vec[axis%dim] = 1
	return vec
}
