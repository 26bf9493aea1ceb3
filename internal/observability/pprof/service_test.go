package pprof

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"calwatch/pkg/logx"
)

func waitForHTTP(ctx context.Context, url string) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		reqCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, http.NoBody)
		if err != nil {
			cancel()
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		cancel()
		if err == nil && resp != nil {
			_ = resp.Body.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", "/debug/pprof/"},
		{"  ", "/debug/pprof/"},
		{"/debug/pprof/", "/debug/pprof/"},
		{"debug/pprof", "/debug/pprof/"},
		{"/prof", "/prof/"},
		{" /prof/ ", "/prof/"},
	}
	for _, tt := range tests {
		if got := normalizePrefix(tt.in); got != tt.want {
			t.Fatalf("normalizePrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:0", true},
		{"LOCALHOST:6060", true},
		{"[::1]:8080", true},
		{"0.0.0.0:6060", false},
		{":6060", false},
		{"192.168.1.20:6060", false},
		{"no-port-here", false},
	}
	for _, tt := range tests {
		if got := isLoopbackAddr(tt.addr); got != tt.want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestWithAuth(t *testing.T) {
	t.Parallel()

	ok := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}

	tests := []struct {
		name   string
		token  string
		target string
		bearer string
		want   int
	}{
		{name: "no token configured", token: "", target: "/x", want: http.StatusOK},
		{name: "query token matches", token: "s3cret", target: "/x?token=s3cret", want: http.StatusOK},
		{name: "query token wrong", token: "s3cret", target: "/x?token=nope", want: http.StatusUnauthorized},
		{name: "bearer matches", token: "s3cret", target: "/x", bearer: "Bearer s3cret", want: http.StatusOK},
		{name: "bearer wrong", token: "s3cret", target: "/x", bearer: "Bearer nope", want: http.StatusUnauthorized},
		{name: "no credentials", token: "s3cret", target: "/x", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
			if tt.bearer != "" {
				req.Header.Set("Authorization", tt.bearer)
			}
			rec := httptest.NewRecorder()
			withAuth(tt.token, ok)(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("expected WWW-Authenticate header on 401")
			}
		})
	}
}

func TestMuxServesUnderCustomPrefix(t *testing.T) {
	t.Parallel()

	svc := New(Config{}, logx.Nop())
	mux := svc.buildMux("/prof/", "")

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, http.NoBody))
		return rec
	}

	if rec := get("/healthz"); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q, want 200 ok", rec.Code, rec.Body.String())
	}

	rec := get("/prof/")
	if rec.Code != http.StatusOK {
		t.Fatalf("index status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "goroutine") {
		t.Fatal("index page does not list profiles")
	}

	// Named profiles resolve through the rewritten path.
	if rec := get("/prof/goroutine?debug=1"); rec.Code != http.StatusOK {
		t.Fatalf("goroutine profile status = %d, want 200", rec.Code)
	}

	rec = get("/prof")
	if rec.Code != http.StatusPermanentRedirect {
		t.Fatalf("bare prefix status = %d, want %d", rec.Code, http.StatusPermanentRedirect)
	}
	if loc := rec.Header().Get("Location"); loc != "/prof/" {
		t.Fatalf("redirect location = %q, want /prof/", loc)
	}
}

func TestServiceLifecycle(t *testing.T) {
	svc := New(Config{
		Enabled: true,
		Addr:    "127.0.0.1:0",
		Token:   "s3cret",
	}, logx.Nop())
	t.Cleanup(func() {
		svc.Stop(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc.Start(ctx)
	addr := svc.Addr()
	if addr == "" {
		t.Fatal("expected a bound address after Start")
	}
	if err := waitForHTTP(ctx, "http://"+addr+"/healthz"); err != nil {
		t.Fatalf("server not reachable: %v", err)
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("healthz without token: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	resp, err = http.Get(fmt.Sprintf("http://%s/healthz?token=s3cret", addr))
	if err != nil {
		t.Fatalf("healthz with token: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("authenticated healthz = %d %q, want 200 ok", resp.StatusCode, body)
	}

	// Start again is a no-op on the same listener.
	svc.Start(ctx)
	if got := svc.Addr(); got != addr {
		t.Fatalf("second Start moved the listener: %q -> %q", addr, got)
	}

	svc.Stop(ctx)
	if got := svc.Addr(); got != "" {
		t.Fatalf("expected server to stop, still at %s", got)
	}
	svc.Stop(ctx)
}

func TestStartRefusesNonLoopbackWithoutToken(t *testing.T) {
	t.Parallel()

	svc := New(Config{
		Enabled: true,
		Addr:    "0.0.0.0:0",
	}, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	svc.Start(ctx)
	if got := svc.Addr(); got != "" {
		svc.Stop(ctx)
		t.Fatalf("expected refusal, listening at %s", got)
	}
}

func TestReconfigure(t *testing.T) {
	svc := New(Config{}, logx.Nop())
	t.Cleanup(func() {
		svc.Stop(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	addr := svc.Addr()
	if addr == "" {
		t.Fatal("expected server after enabling")
	}
	if !svc.Enabled() {
		t.Fatal("Enabled() = false after enabling")
	}

	// Same settings, no restart.
	svc.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	if got := svc.Addr(); got != addr {
		t.Fatalf("identical reconfigure moved the listener: %q -> %q", addr, got)
	}

	svc.Reconfigure(ctx, Config{Enabled: false})
	if got := svc.Addr(); got != "" {
		t.Fatalf("expected server to stop after disable, still at %s", got)
	}
	if svc.Enabled() {
		t.Fatal("Enabled() = true after disable")
	}
}
