package fetcher

import (
	"net/http"
	"strings"
)

// deviceProfile is the client identity presented for a device name.
type deviceProfile struct {
	userAgent string
	mobile    bool
}

var deviceProfiles = map[string]deviceProfile{
	"desktop": {
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	},
	"mobile": {
		userAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36",
		mobile:    true,
	},
	"tablet": {
		userAgent: "Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
		mobile:    true,
	},
	"iphone": {
		userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
		mobile:    true,
	},
	"pixel": {
		userAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36",
		mobile:    true,
	},
	"ipad": {
		userAgent: "Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
		mobile:    true,
	},
}

// lookupDevice returns the profile for name. Unknown names and the empty
// string fall back to desktop.
func lookupDevice(name string) deviceProfile {
	if p, ok := deviceProfiles[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return deviceProfiles["desktop"]
}

// setHeaders applies the request identity. Without stealth the crawler
// announces itself with botAgent; with stealth it sends the device's
// browser user agent and the headers a browser would.
func setHeaders(h http.Header, botAgent string, device deviceProfile, stealth bool) {
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.8")
	h.Set("Accept-Encoding", "gzip, deflate, br")

	if !stealth {
		h.Set("User-Agent", botAgent)
		return
	}
	h.Set("User-Agent", device.userAgent)
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	if device.mobile {
		h.Set("Sec-CH-UA-Mobile", "?1")
	} else {
		h.Set("Sec-CH-UA-Mobile", "?0")
	}
}
