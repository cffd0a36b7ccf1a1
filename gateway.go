package amaterasu

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// The gateway URL cache is process wide: every session shares it, and
// holding the lock across the discovery request means at most one
// /gateway call is ever in flight no matter how many sessions connect
// at once.
var gatewayCache = struct {
	sync.Mutex
	url     string
	expires time.Time

	client *http.Client
}{
	client: &http.Client{Timeout: 10 * time.Second},
}

// gatewayURL returns the websocket URL to dial, already decorated with
// the protocol version and encoding. Discovery failures fall back to
// the well-known default so a flaky /gateway never blocks connecting.
func gatewayURL(ctx context.Context) string {
	gatewayCache.Lock()
	defer gatewayCache.Unlock()

	now := time.Now()
	if gatewayCache.url == "" || !now.Before(gatewayCache.expires) {
		url, ttl := discoverGatewayURL(ctx)
		gatewayCache.url = url
		gatewayCache.expires = now.Add(ttl)
	}

	return gatewayCache.url + "?v=" + APIVersion + "&encoding=json"
}

// gatewayEndpoint is a var so tests can point discovery elsewhere.
var gatewayEndpoint = apiBase + "/gateway"

func discoverGatewayURL(ctx context.Context) (string, time.Duration) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gatewayEndpoint, nil)
	if err != nil {
		return defaultGateway, gatewayURLTTL
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := gatewayCache.client.Do(req)
	if err != nil {
		return defaultGateway, gatewayURLTTL
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		return defaultGateway, gatewayURLTTL
	}

	var gr gatewayResponse
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(body, &gr); err != nil || gr.URL == "" {
		return defaultGateway, gatewayURLTTL
	}

	return gr.URL, cacheTTL(resp.Header.Get("Cache-Control"))
}

// cacheTTL extracts a max-age hint from a Cache-Control header.
func cacheTTL(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if !strings.HasPrefix(directive, "max-age=") {
			continue
		}
		seconds, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
		if err != nil || seconds <= 0 {
			break
		}
		return time.Duration(seconds) * time.Second
	}
	return gatewayURLTTL
}
