package upload

import (
	"testing"

	"github.com/buildgauge/buildgauge/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestResolvePrefix(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		baseName string
		want     string
	}{
		{
			name:     "default prefix",
			prefix:   "",
			baseName: "20260830_120000",
			want:     "results/analyses/20260830_120000",
		},
		{
			name:     "custom prefix",
			prefix:   "ci/build-times",
			baseName: "20260830_120000",
			want:     "ci/build-times/20260830_120000",
		},
		{
			name:     "trailing slash stripped",
			prefix:   "my-prefix/",
			baseName: "run123",
			want:     "my-prefix/run123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &s3Uploader{
				cfg: &config.S3UploadConfig{Prefix: tt.prefix},
			}
			got := u.resolvePrefix(tt.baseName)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantPrefix string
	}{
		{
			name:       "json file",
			path:       "results/report.json",
			wantPrefix: "application/json",
		},
		{
			name:       "no extension",
			path:       "results/Makefile",
			wantPrefix: "application/octet-stream",
		},
		{
			name:       "summary page",
			path:       "results/index.html",
			wantPrefix: "text/html",
		},
		{
			name:       "unknown extension",
			path:       "results/report.xyz123",
			wantPrefix: "application/octet-stream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectContentType(tt.path)
			assert.Contains(t, got, tt.wantPrefix)
		})
	}
}
