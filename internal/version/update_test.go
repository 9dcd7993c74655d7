package version

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func githubAPI(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckForUpdate_Release(t *testing.T) {
	srv := githubAPI(t, map[string]string{
		"/repos/" + Repo + "/releases/latest": `{"tag_name": "v9.0.1", "name": "big"}`,
	})

	info := Checker{API: srv.URL}.CheckForUpdate(context.Background())
	require.NoError(t, info.Error)
	assert.Equal(t, Version, info.CurrentVersion)
	assert.Equal(t, "9.0.1", info.LatestVersion)
	assert.True(t, info.UpdateAvailable)
}

func TestCheckForUpdate_Tags(t *testing.T) {
	srv := githubAPI(t, map[string]string{
		"/repos/" + Repo + "/tags": `[{"name": "v0.0.9"}, {"name": "v0.0.8"}]`,
	})

	info := Checker{API: srv.URL}.CheckForUpdate(context.Background())
	require.NoError(t, info.Error)
	assert.Equal(t, "0.0.9", info.LatestVersion)
	assert.False(t, info.UpdateAvailable)
}

func TestCheckForUpdate_NoTags(t *testing.T) {
	srv := githubAPI(t, map[string]string{
		"/repos/" + Repo + "/tags": `[]`,
	})

	info := Checker{API: srv.URL}.CheckForUpdate(context.Background())
	require.NoError(t, info.Error)
	assert.Equal(t, Version, info.LatestVersion)
	assert.False(t, info.UpdateAvailable)
}

func TestCheckForUpdate_Errors(t *testing.T) {
	srv := githubAPI(t, map[string]string{})
	info := Checker{API: srv.URL}.CheckForUpdate(context.Background())
	assert.Error(t, info.Error, "tags endpoint missing")

	bad := githubAPI(t, map[string]string{
		"/repos/" + Repo + "/releases/latest": `{"name": "no tag"}`,
	})
	info = Checker{API: bad.URL}.CheckForUpdate(context.Background())
	assert.Error(t, info.Error)
}

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		latest, current string
		want            bool
	}{
		{"1.0.0", "0.9.9", true},
		{"0.10.0", "0.9.0", true},
		{"0.3.0", "0.3.0", false},
		{"0.2.9", "0.3.0", false},
		{"0.3.0.1", "0.3.0", true},
		{"0.4.0-rc1", "0.3.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.latest+"_vs_"+tt.current, func(t *testing.T) {
			assert.Equal(t, tt.want, isNewerVersion(tt.latest, tt.current))
		})
	}
}
