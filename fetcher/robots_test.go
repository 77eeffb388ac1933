package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lukemcguire/siteprobe/cache"
)

func robotsServer(t *testing.T, status int, body string, hits *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.WriteHeader(status)
		if body != "" {
			if _, err := w.Write([]byte(body)); err != nil {
				t.Errorf("write robots.txt: %v", err)
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewRobotsGuard_DefaultTTL(t *testing.T) {
	g := NewRobotsGuard(http.DefaultClient, cache.NewMemory(), 0)
	if g.ttl != time.Hour {
		t.Errorf("ttl = %v, want %v", g.ttl, time.Hour)
	}
}

func TestRobotsGuard_Allowed(t *testing.T) {
	testCases := []struct {
		name       string
		robotsTxt  string
		statusCode int
		path       string
		userAgent  string
		want       bool
	}{
		{
			name:       "disallow specific path",
			robotsTxt:  "User-agent: *\nDisallow: /private/",
			statusCode: http.StatusOK,
			path:       "/private/secret",
			userAgent:  "testbot",
			want:       false,
		},
		{
			name:       "allow public path",
			robotsTxt:  "User-agent: *\nDisallow: /private/",
			statusCode: http.StatusOK,
			path:       "/public/page",
			userAgent:  "testbot",
			want:       true,
		},
		{
			name:       "404 allows all",
			statusCode: http.StatusNotFound,
			path:       "/any/path",
			userAgent:  "testbot",
			want:       true,
		},
		{
			name:       "500 allows all",
			statusCode: http.StatusInternalServerError,
			path:       "/any/path",
			userAgent:  "testbot",
			want:       true,
		},
		{
			name:       "empty robots.txt allows all",
			statusCode: http.StatusOK,
			path:       "/any/path",
			userAgent:  "testbot",
			want:       true,
		},
		{
			name:       "specific user agent disallowed",
			robotsTxt:  "User-agent: EvilBot\nDisallow: /",
			statusCode: http.StatusOK,
			path:       "/page",
			userAgent:  "EvilBot",
			want:       false,
		},
		{
			name:       "other user agent allowed",
			robotsTxt:  "User-agent: EvilBot\nDisallow: /",
			statusCode: http.StatusOK,
			path:       "/page",
			userAgent:  "GoodBot",
			want:       true,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server := robotsServer(t, testCase.statusCode, testCase.robotsTxt, nil)
			guard := NewRobotsGuard(&http.Client{Timeout: 5 * time.Second}, cache.NewMemory(), time.Hour)

			got, err := guard.Allowed(context.Background(), server.URL+testCase.path, testCase.userAgent)
			if err != nil {
				t.Errorf("Allowed() error = %v, want nil", err)
			}
			if got != testCase.want {
				t.Errorf("Allowed() = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestRobotsGuard_CacheExpiration(t *testing.T) {
	var hits int32
	server := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /blocked/", &hits)
	guard := NewRobotsGuard(&http.Client{Timeout: 5 * time.Second}, cache.NewMemory(), 100*time.Millisecond)
	ctx := context.Background()

	for i, path := range []string{"/blocked/page", "/blocked/page2"} {
		allowed, err := guard.Allowed(ctx, server.URL+path, "testbot")
		if err != nil {
			t.Fatalf("request %d error: %v", i+1, err)
		}
		if allowed {
			t.Errorf("request %d should be disallowed", i+1)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected 1 robots.txt fetch while cached, got %d", got)
	}

	time.Sleep(150 * time.Millisecond)

	if allowed, _ := guard.Allowed(ctx, server.URL+"/blocked/page3", "testbot"); allowed {
		t.Error("request after expiry should be disallowed")
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("expected 2 robots.txt fetches after expiry, got %d", got)
	}
}

func TestRobotsGuard_CachesAllowAll(t *testing.T) {
	var hits int32
	server := robotsServer(t, http.StatusNotFound, "", &hits)
	guard := NewRobotsGuard(&http.Client{Timeout: 5 * time.Second}, cache.NewMemory(), time.Hour)

	for range 3 {
		if allowed, _ := guard.Allowed(context.Background(), server.URL+"/x", "testbot"); !allowed {
			t.Fatal("404 robots.txt should allow everything")
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected 1 robots.txt fetch, got %d", got)
	}
}

func TestRobotsGuard_TimeoutAllowsAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	guard := NewRobotsGuard(&http.Client{Timeout: 20 * time.Millisecond}, cache.NewMemory(), time.Hour)
	allowed, err := guard.Allowed(context.Background(), server.URL+"/any/path", "testbot")
	if !allowed {
		t.Error("timeout should allow all")
	}
	if err == nil {
		t.Error("timeout should return an error for visibility")
	}
}

func TestRobotsGuard_SharedStore(t *testing.T) {
	var hits int32
	server := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /", &hits)
	store := cache.NewMemory()
	client := &http.Client{Timeout: 5 * time.Second}

	first := NewRobotsGuard(client, store, time.Hour)
	second := NewRobotsGuard(client, store, time.Hour)
	_, _ = first.Allowed(context.Background(), server.URL+"/a", "testbot")
	allowed, _ := second.Allowed(context.Background(), server.URL+"/b", "testbot")

	if allowed {
		t.Error("second guard should see the cached disallow rule")
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected guards sharing a store to fetch once, got %d", got)
	}
}
