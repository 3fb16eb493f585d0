package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/buildgauge/buildgauge/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFileServer_IsAllowedPath(t *testing.T) {
	srv := &localFileServer{
		log:            logrus.New(),
		discoveryPaths: []string{"/data/results"},
	}

	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{name: "valid simple path", path: "Proj_Main/report.json", expected: true},
		{name: "valid root file", path: "summary.md", expected: true},
		{name: "empty path", path: "", expected: false},
		{name: "path traversal", path: "Proj_Main/../../etc/passwd", expected: false},
		{name: "dot dot only", path: "..", expected: false},
		{name: "absolute path", path: "/etc/passwd", expected: false},
		{name: "trailing slash", path: "Proj_Main/", expected: false},
		{name: "double slash", path: "Proj_Main//report.json", expected: false},
		{name: "dot segment", path: "Proj_Main/./report.json", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, srv.isAllowedPath(tt.path))
		})
	}
}

func TestLocalFileServer_ServeFile(t *testing.T) {
	// Create temp directory structure.
	root := t.TempDir()
	reportDir := filepath.Join(root, "Proj_Main")
	require.NoError(t, os.MkdirAll(reportDir, 0o755))
	require.NoError(
		t, os.WriteFile(
			filepath.Join(reportDir, "report.json"),
			[]byte(`{"ok":true}`), 0o644,
		),
	)

	srv := newLocalFileServer(logrus.New(), &config.APIStorageConfig{
		DiscoveryPaths: map[string]string{"main": root},
	})

	t.Run("serves existing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/Proj_Main/report.json", nil)
		rec := httptest.NewRecorder()

		err := srv.ServeFile(rec, req, "Proj_Main/report.json")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `{"ok":true}`)
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/Proj_Main/nope.json", nil)
		rec := httptest.NewRecorder()

		err := srv.ServeFile(rec, req, "Proj_Main/nope.json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
		_ = rec // response not written
	})

	t.Run("rejects path traversal", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/../../etc/passwd", nil)
		rec := httptest.NewRecorder()

		err := srv.ServeFile(rec, req, "../../etc/passwd")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not allowed")
		_ = rec
	})

	t.Run("searches multiple roots", func(t *testing.T) {
		root2 := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root2, "Proj_Archive"), 0o755))
		require.NoError(
			t, os.WriteFile(
				filepath.Join(root2, "Proj_Archive", "report.md"),
				[]byte("# old"), 0o644,
			),
		)

		multi := newLocalFileServer(logrus.New(), &config.APIStorageConfig{
			DiscoveryPaths: map[string]string{"main": root, "archive": root2},
		})

		req := httptest.NewRequest(http.MethodGet, "/Proj_Archive/report.md", nil)
		rec := httptest.NewRecorder()

		err := multi.ServeFile(rec, req, "Proj_Archive/report.md")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "# old")
	})
}
