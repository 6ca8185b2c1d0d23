package adapters

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fxrunner/engine/internal/domain"
)

// Polygon implements providers.Provider against the polygon.io forex API.
type Polygon struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewPolygon() *Polygon {
	return &Polygon{
		apiKey:  os.Getenv("POLYGON_API_KEY"),
		baseURL: "https://api.polygon.io",
		client:  defaultClient(9 * time.Second),
	}
}

func (p *Polygon) Name() string       { return "polygon" }
func (p *Polygon) IsConfigured() bool { return p.apiKey != "" }

var polygonMultipliers = map[domain.Timeframe]struct {
	n    int
	unit string
}{
	domain.M1: {1, "minute"}, domain.M5: {5, "minute"}, domain.M15: {15, "minute"},
	domain.M30: {30, "minute"}, domain.H1: {1, "hour"}, domain.H4: {4, "hour"}, domain.D1: {1, "day"},
}

type polygonAggsResp struct {
	Results []struct {
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
		V float64 `json:"v"`
		T int64   `json:"t"`
	} `json:"results"`
	Status string `json:"status"`
}

func (p *Polygon) FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, barCount int) ([]domain.Bar, error) {
	gran, ok := polygonMultipliers[tf]
	if !ok {
		return nil, fmt.Errorf("polygon: unsupported timeframe %s", tf)
	}
	to := time.Now()
	from := to.Add(-time.Duration(barCount) * time.Duration(tf.PeriodSeconds()) * time.Second)
	ticker := "C:" + pair.Base + pair.Quote
	url := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/%d/%s/%s/%s?limit=%d&apiKey=%s",
		p.baseURL, ticker, gran.n, gran.unit, from.Format("2006-01-02"), to.Format("2006-01-02"), barCount, p.apiKey)

	var resp polygonAggsResp
	if err := httpGetJSON(ctx, p.client, url, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" && resp.Status != "DELAYED" {
		return nil, fmt.Errorf("polygon: response status %q", resp.Status)
	}

	bars := make([]domain.Bar, 0, len(resp.Results))
	for _, r := range resp.Results {
		bars = append(bars, domain.Bar{
			TimestampMs: r.T,
			Open:        r.O,
			High:        r.H,
			Low:         r.L,
			Close:       r.C,
			Volume:      r.V,
			Source:      "polygon",
		})
	}
	return bars, nil
}

type polygonQuoteResp struct {
	Results struct {
		P float64 `json:"P"` // ask price
		B float64 `json:"p"` // bid price
		T int64   `json:"t"`
	} `json:"results"`
}

func (p *Polygon) FetchQuote(ctx context.Context, pair domain.Pair) (*domain.Quote, error) {
	ticker := "C:" + pair.Base + pair.Quote
	url := fmt.Sprintf("%s/v2/last/nbbo/%s?apiKey=%s", p.baseURL, ticker, p.apiKey)

	var resp polygonQuoteResp
	if err := httpGetJSON(ctx, p.client, url, &resp); err != nil {
		return nil, err
	}
	return &domain.Quote{
		Pair:        pair,
		Bid:         resp.Results.B,
		Ask:         resp.Results.P,
		TimestampMs: resp.Results.T / 1e6,
		Provider:    "polygon",
	}, nil
}
