package visualization

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := NewServer(newRampViewer(t), 1<<20)
	require.NoError(t, err)
	srv := httptest.NewServer(s)
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return srv
}

func TestServerIndex(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestServerState(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/state?axial=99&coronal=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	var info stateInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, [3]int{3, 4, 5}, info.Limits)
	assert.Equal(t, [3]string{"axial", "coronal", "sagittal"}, info.Views)
	assert.Equal(t, ViewerState{Axial: 2, Coronal: 1}, info.State)
}

// TestServerStateAppliesEvent verifies the slider event goes through Update,
// so the page never clamps indices itself
func TestServerStateAppliesEvent(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		query string
		want  ViewerState
	}{
		{"axial=1&view=sagittal&index=99", ViewerState{Axial: 1, Sagittal: 4}},
		{"axial=1&coronal=2&view=coronal&index=-3", ViewerState{Axial: 1}},
		{"sagittal=3&view=axial&index=2", ViewerState{Axial: 2, Sagittal: 3}},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + "/state?" + tt.query)
		require.NoError(t, err)

		var info stateInfo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
		resp.Body.Close()
		assert.Equal(t, tt.want, info.State, tt.query)
	}

	for _, query := range []string{"view=oblique&index=1", "view=axial&index=x"} {
		resp, err := http.Get(srv.URL + "/state?" + query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}
}

func TestServerRender(t *testing.T) {
	srv := newTestServer(t)

	// Fetched twice, the second time possibly from the cache
	for i := 0; i < 2; i++ {
		resp, err := http.Get(srv.URL + "/render?axial=1&view=sagittal&index=3")
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		img, err := png.Decode(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, 2*viewerMargin+3*64+2*panelGap, img.Bounds().Dx())
	}

	resp, err := http.Get(srv.URL + "/render?view=oblique&index=1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerPanel(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/panel/coronal/2")
	require.NoError(t, err)
	img, err := png.Decode(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())

	for _, path := range []string{"/panel/coronal/4", "/panel/oblique/0", "/panel/axial/x"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}
