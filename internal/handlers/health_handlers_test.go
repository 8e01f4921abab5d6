package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJobLister struct {
	names []string
}

func (s *stubJobLister) JobNames() []string {
	return s.names
}

func healthRequest(t *testing.T, h *HealthHandlers) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.HealthCheck(e.NewContext(req, rec)))
	return rec
}

func TestHealthCheck_ReportsBackgroundJobs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.ExpectExec("SELECT 1").WillReturnResult(pgxmock.NewResult("SELECT", 1))

	jobs := &stubJobLister{names: []string{"auto-reconcile", "summary-cache-warm"}}
	rec := healthRequest(t, NewHealthHandlers(mock, nil, nil, jobs))

	assert.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "healthy", status.Services["database"])
	assert.Equal(t, jobs.names, status.BackgroundJobs)
}

func TestHealthCheck_DegradedOnDatabaseFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.ExpectExec("SELECT 1").WillReturnError(errors.New("connection refused"))

	rec := healthRequest(t, NewHealthHandlers(mock, nil, nil, nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "unhealthy", status.Services["database"])
	assert.Empty(t, status.BackgroundJobs)
}
