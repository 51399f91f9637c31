package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, handler echo.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, mw(handler)(c)
}

// logLine decodes the single zerolog event written to buf.
func logLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestRequestID_GeneratesNew(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec, err := runMiddleware(t, RequestID(), func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}, req)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec, _ := runMiddleware(t, RequestID(), func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.String(http.StatusOK, "ok")
	}, req)

	if got := rec.Header().Get(RequestIDHeader); got != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", got)
	}
}

func TestLogger_SuccessLogsInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/sessions", nil)
	_, err := runMiddleware(t, Logger(logger), func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry := logLine(t, &buf)
	if entry["level"] != "info" {
		t.Errorf("expected info level, got %v", entry["level"])
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Errorf("expected status 200, got %v", entry["status"])
	}
	if entry["path"] != "/api/v1/dashboard/sessions" {
		t.Errorf("unexpected path: %v", entry["path"])
	}
}

func TestLogger_LevelFollowsOutcome(t *testing.T) {
	cases := []struct {
		name    string
		handler echo.HandlerFunc
		level   string
		status  float64
	}{
		{
			"client error logs warn",
			func(c echo.Context) error {
				return echo.NewHTTPError(http.StatusNotFound, "session not found")
			},
			"warn", http.StatusNotFound,
		},
		{
			"server error logs error",
			func(c echo.Context) error {
				return echo.NewHTTPError(http.StatusBadGateway, "refresh failed")
			},
			"error", http.StatusBadGateway,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/sessions/nope", nil)
			runMiddleware(t, Logger(logger), tc.handler, req)

			entry := logLine(t, &buf)
			if entry["level"] != tc.level {
				t.Errorf("expected %s level, got %v", tc.level, entry["level"])
			}
			if entry["status"] != tc.status {
				t.Errorf("expected status %v, got %v", tc.status, entry["status"])
			}
		})
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	_, err := runMiddleware(t, Recovery(logger), func(c echo.Context) error {
		panic("boom")
	}, req)

	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}

	entry := logLine(t, &buf)
	if entry["panic"] != "boom" {
		t.Errorf("panic value not logged: %v", entry["panic"])
	}
	if stack, _ := entry["stack"].(string); !strings.Contains(stack, "goroutine") {
		t.Errorf("stack trace not logged: %q", stack)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	_, err := runMiddleware(t, Recovery(logger), func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, req)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log output: %s", buf.String())
	}
}
