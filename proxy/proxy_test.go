package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstream_StripsClientAndGateHeaders(t *testing.T) {
	var gotHeaders http.Header
	var gotHost string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotHost = r.Host
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	u, err := New(backend.URL)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.1")
	req.Header.Set("X-Agent-Key", "ag_should_not_leak")
	req.Header.Set("Cookie", "__agp_verified=123.abc; session=keepme")
	w := httptest.NewRecorder()

	u.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, gotHeaders.Get("X-Forwarded-For"))
	assert.Empty(t, gotHeaders.Get("X-Agent-Key"))
	assert.Equal(t, "session=keepme", gotHeaders.Get("Cookie"))
	assert.NotEqual(t, "example.com", gotHost)
}

func TestStripVerifiedCookie_RemovesOnlyGateCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Cookie", "__agp_verified=999.deadbeef; other=value")

	stripVerifiedCookie(req)

	assert.Equal(t, "other=value", req.Header.Get("Cookie"))
}

func TestStripVerifiedCookie_DeletesHeaderWhenOnlyGateCookiePresent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Cookie", "__agp_verified=999.deadbeef")

	stripVerifiedCookie(req)

	assert.Empty(t, req.Header.Get("Cookie"))
}

func TestStripVerifiedCookie_NoCookieHeaderIsNoop(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	stripVerifiedCookie(req)
	assert.Empty(t, req.Header.Get("Cookie"))
}

func TestNew_RejectsInvalidURL(t *testing.T) {
	_, err := New("://not-a-url")
	assert.Error(t, err)
}
