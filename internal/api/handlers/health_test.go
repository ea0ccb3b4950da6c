package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

// fakeDB answers "SELECT 1" and the schema_migrations query from fixed values.
type fakeDB struct {
	pingErr error
	migErr  error
	version int64
	dirty   bool
}

type fakeRow struct {
	err    error
	values []any
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int:
			*p = r.values[i].(int)
		case *int64:
			*p = r.values[i].(int64)
		case *bool:
			*p = r.values[i].(bool)
		}
	}
	return nil
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	if strings.Contains(sql, "schema_migrations") {
		if db.pingErr != nil {
			return fakeRow{err: db.pingErr}
		}
		return fakeRow{err: db.migErr, values: []any{db.version, db.dirty}}
	}
	return fakeRow{err: db.pingErr, values: []any{1}}
}

func runHealth(t *testing.T, checker *HealthChecker) (int, HealthCheck) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	checker.Health().ServeHTTP(w, req)

	var response HealthCheck
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return w.Code, response
}

func TestHealthCheckAllHealthy(t *testing.T) {
	code, response := runHealth(t, NewHealthChecker(&fakeDB{version: 2}, true, "0.1.0", "test-commit"))

	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "healthy", response.Status)
	require.Equal(t, "0.1.0", response.Version)
	require.Equal(t, "test-commit", response.GitCommit)
	require.NotEmpty(t, response.Timestamp)
	for name, check := range response.Checks {
		require.Equal(t, "pass", check.Status, name)
	}
}

func TestHealthCheckDegradedWithoutFanOut(t *testing.T) {
	code, response := runHealth(t, NewHealthChecker(&fakeDB{version: 2}, false, "0.1.0", "c"))

	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "degraded", response.Status)
	require.Equal(t, "warn", response.Checks["broadcast"].Status)
}

func TestHealthCheckDatabaseFailure(t *testing.T) {
	db := &fakeDB{pingErr: errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")}
	code, response := runHealth(t, NewHealthChecker(db, true, "0.1.0", "c"))

	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "unhealthy", response.Status)
	require.Equal(t, "Database connection refused", response.Checks["database"].Message)
}

func TestHealthCheckDirtyMigration(t *testing.T) {
	code, response := runHealth(t, NewHealthChecker(&fakeDB{version: 2, dirty: true}, true, "0.1.0", "c"))

	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "fail", response.Checks["migrations"].Status)
}

func TestHealthCheckMissingMigrations(t *testing.T) {
	db := &fakeDB{migErr: errors.New(`relation "schema_migrations" does not exist`)}
	_, response := runHealth(t, NewHealthChecker(db, true, "0.1.0", "c"))

	require.Equal(t, "Migrations have not been applied", response.Checks["migrations"].Message)
}

func TestHealthCheckNilPool(t *testing.T) {
	code, response := runHealth(t, NewHealthChecker(nil, true, "0.1.0", "c"))

	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "Database pool not initialized", response.Checks["database"].Message)
}

func TestHealthCheckShuttingDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/health", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	NewHealthChecker(&fakeDB{}, true, "0.1.0", "c").Health().ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.JSONEq(t, `{"status":"shutting_down"}`, w.Body.String())
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	Healthz().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestReadyz(t *testing.T) {
	w := httptest.NewRecorder()
	Readyz(&fakeDB{}, "test").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ready"}`, w.Body.String())
}

func TestReadyzDatabaseDown(t *testing.T) {
	w := httptest.NewRecorder()
	Readyz(&fakeDB{pingErr: errors.New("connection reset")}, "production").
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	require.NotContains(t, w.Body.String(), "connection reset")
}
