package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionHandler(t *testing.T) {
	tests := []struct {
		name                          string
		version, gitCommit, buildDate string
		want                          versionResponse
	}{
		{
			name:    "with all values",
			version: "0.1.0", gitCommit: "abc123def456", buildDate: "2026-01-28T12:00:00Z",
			want: versionResponse{Version: "0.1.0", GitCommit: "abc123def456", BuildDate: "2026-01-28T12:00:00Z"},
		},
		{
			name: "with defaults",
			want: versionResponse{Version: "dev", GitCommit: "unknown", BuildDate: "unknown"},
		},
		{
			name:    "with partial values",
			version: "1.0.0", buildDate: "2026-01-28T12:00:00Z",
			want: versionResponse{Version: "1.0.0", GitCommit: "unknown", BuildDate: "2026-01-28T12:00:00Z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			VersionHandler(tt.version, tt.gitCommit, tt.buildDate).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp versionResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			tt.want.GoVersion = runtime.Version()
			require.Equal(t, tt.want, resp)
		})
	}
}

func TestVersionHandlerMethodNotAllowed(t *testing.T) {
	handler := VersionHandler("0.1.0", "abc123", "2026-01-28T12:00:00Z")

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(method, "/version", nil))
		require.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
		require.Equal(t, "GET", w.Header().Get("Allow"))
	}
}
