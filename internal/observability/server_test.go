package observability

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/halostencil/internal/auth"
	"go.uber.org/goleak"
)

func TestAdminServerRoutes(t *testing.T) {
	s := NewAdminServer(3, func() RankStatus {
		return RankStatus{
			Rank:       3,
			Size:       4,
			LocalShape: []int{2},
			Version:    7,
			Branches:   []BranchInfo{{Disp: []int{1}, Weight: 1, Halos: 1}},
		}
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stencil", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stencil status=%d", rec.Code)
	}
	var got RankStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode stencil: %v", err)
	}
	if got.Rank != 3 || got.Version != 7 || len(got.Branches) != 1 || got.Branches[0].Disp[0] != 1 {
		t.Fatalf("unexpected status: %+v", got)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "halostencil_admin_requests_total") {
		t.Fatalf("metrics missing admin counter: status=%d", rec.Code)
	}
}

func TestAdminServerWithoutEngine(t *testing.T) {
	s := NewAdminServer(0, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stencil", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestAdminServerTokenGuard(t *testing.T) {
	s := NewAdminServer(1, func() RankStatus { return RankStatus{Rank: 1} }, WithTokenGuard(auth.SharedToken("s3cret")))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health should stay open, got %d", rec.Code)
	}

	for _, path := range []string{"/stencil", "/metrics"} {
		rec = httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token: expected 401, got %d", path, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/stencil", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/stencil", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d", rec.Code)
	}
}

func TestAdminServeReturnsWithoutLingering(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_ = ln.Close()
	// ctx is never cancelled; a failed Serve must still clean up
	if err := NewAdminServer(0, nil).Serve(context.Background(), ln); err == nil {
		t.Fatalf("expected serve error on a closed listener")
	}
}

func TestAdminServeStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewAdminServer(0, nil).Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	_ = resp.Body.Close()
	http.DefaultClient.CloseIdleConnections()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
}
