package fetcher

import (
	"net/http"
	"strings"
	"testing"
)

func TestLookupDevice(t *testing.T) {
	tests := []struct {
		name      string
		wantAgent string
		mobile    bool
	}{
		{"", "Windows NT", false},
		{"desktop", "Windows NT", false},
		{"Mobile", "Android", true},
		{" iphone ", "iPhone", true},
		{"ipad", "iPad", true},
		{"toaster", "Windows NT", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := lookupDevice(tt.name)
			if !strings.Contains(p.userAgent, tt.wantAgent) {
				t.Errorf("userAgent = %q, want it to contain %q", p.userAgent, tt.wantAgent)
			}
			if p.mobile != tt.mobile {
				t.Errorf("mobile = %v, want %v", p.mobile, tt.mobile)
			}
		})
	}
}

func TestSetHeaders(t *testing.T) {
	t.Run("bot identity", func(t *testing.T) {
		h := http.Header{}
		setHeaders(h, "testbot/1.0", lookupDevice("iphone"), false)
		if got := h.Get("User-Agent"); got != "testbot/1.0" {
			t.Errorf("User-Agent = %q, want testbot/1.0", got)
		}
		if h.Get("Sec-Fetch-Mode") != "" {
			t.Error("browser headers should not be sent without stealth")
		}
	})

	t.Run("stealth mobile", func(t *testing.T) {
		h := http.Header{}
		setHeaders(h, "testbot/1.0", lookupDevice("iphone"), true)
		if got := h.Get("User-Agent"); !strings.Contains(got, "iPhone") {
			t.Errorf("User-Agent = %q, want an iPhone agent", got)
		}
		if h.Get("Sec-Fetch-Mode") != "navigate" {
			t.Errorf("Sec-Fetch-Mode = %q, want navigate", h.Get("Sec-Fetch-Mode"))
		}
		if h.Get("Sec-CH-UA-Mobile") != "?1" {
			t.Errorf("Sec-CH-UA-Mobile = %q, want ?1", h.Get("Sec-CH-UA-Mobile"))
		}
	})
}
