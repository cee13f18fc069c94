package tika

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-whisper-go/internal/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		body, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/tika":
			assert.Equal(t, "text/plain", r.Header.Get("Accept"))
			assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
			_, _ = w.Write([]byte("extracted: " + string(body)))
		case "/meta":
			_, _ = w.Write([]byte(`{"xmpTPg:NPages":"7","Content-Type":"application/pdf"}`))
		default:
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte("unsupported"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractText(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(config.TikaConfig{ServerURL: srv.URL + "/"})

	text, err := c.ExtractText(t.Context(), strings.NewReader("hello"), "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "extracted: hello", text)
}

func TestPageCount(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(config.TikaConfig{ServerURL: srv.URL})

	n, err := c.PageCount(t.Context(), strings.NewReader("x"), "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestExtractTextErrorStatus(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(config.TikaConfig{ServerURL: srv.URL + "/nope"})

	_, err := c.ExtractText(t.Context(), strings.NewReader("x"), "a.bin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestParsePageCount(t *testing.T) {
	assert.Equal(t, 3, parsePageCount("3"))
	assert.Equal(t, 4, parsePageCount([]any{"4", "5"}))
	assert.Equal(t, 2, parsePageCount(float64(2)))
	assert.Equal(t, 0, parsePageCount(nil))
	assert.Equal(t, 0, parsePageCount("n/a"))
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/octet-stream", detectMimeType("README"))
	assert.Equal(t, "application/pdf", detectMimeType("a.pdf"))
}
