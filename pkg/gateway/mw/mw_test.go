package mw

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-go/mock-interview/pkg/core"
	"github.com/vango-go/mock-interview/pkg/gateway/auth"
)

var testKeys = map[string]struct{}{"mi_key_test": {}}

func noContent() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func decodeEnvelope(t *testing.T, body []byte) core.Error {
	t.Helper()
	var env struct {
		Error core.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal: %v body=%q", err, body)
	}
	return env.Error
}

func TestRequestID_GeneratesAndPreserves(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/personas", nil))
	if !strings.HasPrefix(seen, "req_") || rr.Header().Get("X-Request-ID") != seen {
		t.Fatalf("generated id=%q header=%q", seen, rr.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/personas", nil)
	req.Header.Set("X-Request-ID", "req_client")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "req_client" {
		t.Fatalf("id=%q, want client id", seen)
	}
}

func TestAuth_DisabledWithoutKeys(t *testing.T) {
	rr := httptest.NewRecorder()
	Auth(nil, noContent()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/personas", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestAuth_RejectsMissingBearer(t *testing.T) {
	rr := httptest.NewRecorder()
	Auth(testKeys, noContent()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/personas", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if e := decodeEnvelope(t, rr.Body.Bytes()); e.Type != core.ErrAuthentication || e.Param != "Authorization" {
		t.Fatalf("error=%+v", e)
	}
}

func TestAuth_RejectsUnknownKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/personas", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rr := httptest.NewRecorder()
	Auth(testKeys, noContent()).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestAuth_AcceptsBearerAndSetsPrincipal(t *testing.T) {
	var principal *auth.Principal
	h := Auth(testKeys, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ = auth.PrincipalFrom(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/personas", nil)
	req.Header.Set("Authorization", "Bearer mi_key_test")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if principal == nil || principal.APIKey != "mi_key_test" {
		t.Fatalf("principal=%+v", principal)
	}
}

func TestAuth_WebSocketQueryToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/interview?access_token=mi_key_test", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	rr := httptest.NewRecorder()
	Auth(testKeys, noContent()).ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	// The query token is only honored on upgrades.
	rr = httptest.NewRecorder()
	Auth(testKeys, noContent()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/personas?access_token=mi_key_test", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestAuth_HealthBypass(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		Auth(testKeys, noContent()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestRecover_PanicReturnsCanonicalJSON(t *testing.T) {
	h := RequestID(Recover(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/personas", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	e := decodeEnvelope(t, rr.Body.Bytes())
	if e.Type != core.ErrAPI || e.RequestID == "" {
		t.Fatalf("error=%+v", e)
	}
}

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (w *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.hijacked = true
	return nil, nil, nil
}

func TestAccessLog_PreservesHijacker(t *testing.T) {
	var buf bytes.Buffer
	writer := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	h := AccessLog(slog.New(slog.NewJSONHandler(&buf, nil)), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatalf("expected http.Hijacker to be preserved")
		}
		_, _, _ = hj.Hijack()
	}))
	h.ServeHTTP(writer, httptest.NewRequest(http.MethodGet, "/v1/interview", nil).WithContext(WithRequestID(context.Background(), "req_test")))

	if !writer.hijacked {
		t.Fatalf("expected underlying hijacker to be invoked")
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("unmarshal log: %v", err)
	}
	if got, _ := rec["status"].(float64); int(got) != http.StatusSwitchingProtocols {
		t.Fatalf("logged status=%v", rec["status"])
	}
	if rec["request_id"] != "req_test" {
		t.Fatalf("logged request_id=%v", rec["request_id"])
	}
}

func TestAccessLog_PlainWriterNotHijacker(t *testing.T) {
	h := AccessLog(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Hijacker); ok {
			t.Fatalf("did not expect http.Hijacker to be advertised")
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status=%d", rr.Code)
	}
}
