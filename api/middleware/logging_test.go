package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/afonso-rickman/newdelivery/pkg/logger"
)

func TestLoggingRecordsRoutePatternAndBytes(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("info"), Output: buf})

	r := chi.NewRouter()
	r.Use(Logging(logg))
	r.Get("/views/{viewId}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/views/abc", nil))

	line := buf.String()
	for _, want := range []string{
		`"route":"/views/{viewId}"`,
		`"path":"/views/abc"`,
		`"bytes":5`,
		`"status":200`,
		`"level":"info"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
	if strings.Contains(line, "request.start") {
		t.Fatalf("request.start should be debug only: %s", line)
	}
}

func TestLoggingWarnsOnServerError(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("info"), Output: buf})
	failing := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	Logging(logg)(failing).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), `"level":"warn"`) || !strings.Contains(buf.String(), `"status":502`) {
		t.Fatalf("expected warn entry with status 502, got %s", buf.String())
	}
}
