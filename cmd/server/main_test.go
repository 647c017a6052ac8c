package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestRequestLoggerSkipsQuietPaths(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestLogger())
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/health", ok)
	r.GET("/socket.io/*any", ok)
	r.GET("/api/difficulties", ok)

	tests := []struct {
		path   string
		logged bool
	}{
		{"/health", false},
		{"/socket.io/?EIO=3&transport=polling", false},
		{"/api/difficulties", true},
	}
	for _, tt := range tests {
		buf.Reset()
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))
		got := strings.Contains(buf.String(), `"message":"http"`)
		if got != tt.logged {
			t.Fatalf("%s should be logged: %v, log %q", tt.path, tt.logged, buf.String())
		}
	}
}
