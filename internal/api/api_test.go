package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/tgbridge/internal/bridge"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockSender struct {
	result bridge.Result
	got    []bridge.Request
}

func (m *mockSender) Send(_ context.Context, req bridge.Request) bridge.Result {
	m.got = append(m.got, req)
	return m.result
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, sendResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp sendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec.Code, resp
}

func TestSendStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		result bridge.Result
		status int
	}{
		{"sent", bridge.Result{Outcome: bridge.Completed, Success: true, Message: "Message sent to alice"}, http.StatusOK},
		{"send failed", bridge.Result{Outcome: bridge.Completed, Message: "Recipient not found: bob"}, http.StatusInternalServerError},
		{"rejected", bridge.Result{Outcome: bridge.Rejected, Message: "Recipient and message are required"}, http.StatusBadRequest},
		{"timed out", bridge.Result{Outcome: bridge.TimedOut, Message: "Request timed out while sending message"}, http.StatusGatewayTimeout},
		{"scheduling failed", bridge.Result{Outcome: bridge.SchedulingFailed, Message: "Error: loop not running"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &mockSender{result: tt.result}
			code, resp := do(t, NewRouter(sender, zap.NewNop()), http.MethodPost, "/api/send", `{"recipient":"@alice","message":"hi"}`)

			if code != tt.status {
				t.Errorf("status = %d, want %d", code, tt.status)
			}
			if resp.Success != tt.result.Success || resp.Message != tt.result.Message {
				t.Errorf("body = %+v, want %v/%q", resp, tt.result.Success, tt.result.Message)
			}
			if len(sender.got) != 1 || sender.got[0].Recipient != "@alice" || sender.got[0].Message != "hi" {
				t.Errorf("bridge got %+v", sender.got)
			}
		})
	}
}

func TestSendMalformedJSON(t *testing.T) {
	sender := &mockSender{}
	code, resp := do(t, NewRouter(sender, zap.NewNop()), http.MethodPost, "/api/send", `{"recipient":`)

	if code != http.StatusBadRequest || resp.Success {
		t.Errorf("got %d %+v, want 400", code, resp)
	}
	if len(sender.got) != 0 {
		t.Error("malformed request reached the bridge")
	}
}

func TestUnknownRoutes(t *testing.T) {
	r := NewRouter(&mockSender{}, zap.NewNop())
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/send"},
		{http.MethodPost, "/api/other"},
		{http.MethodGet, "/"},
	} {
		code, resp := do(t, r, tc.method, tc.path, "")
		if code != http.StatusNotFound || resp.Message != "Endpoint not found" {
			t.Errorf("%s %s = %d %+v, want 404", tc.method, tc.path, code, resp)
		}
	}
}

func TestServerStartStop(t *testing.T) {
	sender := &mockSender{result: bridge.Result{Outcome: bridge.Completed, Success: true, Message: "ok"}}
	s := NewServer("127.0.0.1:0", sender, zap.NewNop())
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Stop(context.Background()) }()

	resp, err := http.Post("http://"+s.Addr()+"/api/send", "application/json", strings.NewReader(`{"recipient":"1","message":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
