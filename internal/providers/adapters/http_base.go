// Package adapters implements the concrete market-data provider adapters:
// twelveData, finnhub, polygon, and alphaVantage. Each is a thin net/http
// client translating provider-specific JSON into domain.Bar/domain.Quote,
// matching the teacher's okx/coingecko adapters which also talk HTTP
// directly rather than through a shared REST framework.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fxrunner/engine/internal/providers"
)

// httpGetJSON performs a GET request and decodes the JSON body, classifying
// 429/403 responses into providers.RetryAfter so the fetcher can honor
// retry-after semantics exactly.
func httpGetJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		secs := 0
		if h := resp.Header.Get("Retry-After"); h != "" {
			if v, err := strconv.Atoi(h); err == nil {
				secs = v
			}
		}
		return &providers.RetryAfter{
			Err:            fmt.Errorf("provider returned status %d", resp.StatusCode),
			RetryAfterSecs: secs,
			StatusCode:     resp.StatusCode,
		}
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("transient provider error: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func defaultClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
