package static

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAppRoutesServeIndex(t *testing.T) {
	for _, p := range []string{"/", "/play", "/play/ABCDE"} {
		rec := httptest.NewRecorder()
		Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", p, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "SongGuesser") {
			t.Fatalf("%s: expected index page", p)
		}
		if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
			t.Fatalf("%s: expected no-cache, got %q", p, got)
		}
	}
}

func TestMissingAssetIs404(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/app.js", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
