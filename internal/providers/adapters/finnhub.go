package adapters

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fxrunner/engine/internal/domain"
)

// Finnhub implements providers.Provider against the finnhub.io forex API.
type Finnhub struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewFinnhub() *Finnhub {
	return &Finnhub{
		apiKey:  os.Getenv("FINNHUB_API_KEY"),
		baseURL: "https://finnhub.io/api/v1",
		client:  defaultClient(9 * time.Second),
	}
}

func (f *Finnhub) Name() string       { return "finnhub" }
func (f *Finnhub) IsConfigured() bool { return f.apiKey != "" }

var finnhubResolutions = map[domain.Timeframe]string{
	domain.M1: "1", domain.M5: "5", domain.M15: "15", domain.M30: "30",
	domain.H1: "60", domain.H4: "240", domain.D1: "D",
}

type finnhubCandleResp struct {
	C []float64 `json:"c"`
	H []float64 `json:"h"`
	L []float64 `json:"l"`
	O []float64 `json:"o"`
	T []int64   `json:"t"`
	V []float64 `json:"v"`
	S string    `json:"s"`
}

func (f *Finnhub) FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, barCount int) ([]domain.Bar, error) {
	res, ok := finnhubResolutions[tf]
	if !ok {
		return nil, fmt.Errorf("finnhub: unsupported timeframe %s", tf)
	}
	now := time.Now().Unix()
	from := now - int64(barCount)*tf.PeriodSeconds()
	symbol := fmt.Sprintf("OANDA:%s_%s", pair.Base, pair.Quote)
	url := fmt.Sprintf("%s/forex/candle?symbol=%s&resolution=%s&from=%d&to=%d&token=%s",
		f.baseURL, symbol, res, from, now, f.apiKey)

	var resp finnhubCandleResp
	if err := httpGetJSON(ctx, f.client, url, &resp); err != nil {
		return nil, err
	}
	if resp.S != "ok" {
		return nil, fmt.Errorf("finnhub: response status %q", resp.S)
	}

	bars := make([]domain.Bar, 0, len(resp.T))
	for i := range resp.T {
		vol := 0.0
		if i < len(resp.V) {
			vol = resp.V[i]
		}
		bars = append(bars, domain.Bar{
			TimestampMs: resp.T[i] * 1000,
			Open:        resp.O[i],
			High:        resp.H[i],
			Low:         resp.L[i],
			Close:       resp.C[i],
			Volume:      vol,
			Source:      "finnhub",
		})
	}
	return bars, nil
}

type finnhubQuoteResp struct {
	Bid float64 `json:"b"`
	Ask float64 `json:"a"`
	Ts  int64   `json:"t"`
}

func (f *Finnhub) FetchQuote(ctx context.Context, pair domain.Pair) (*domain.Quote, error) {
	symbol := fmt.Sprintf("OANDA:%s_%s", pair.Base, pair.Quote)
	url := fmt.Sprintf("%s/forex/quote?symbol=%s&token=%s", f.baseURL, symbol, f.apiKey)

	var resp finnhubQuoteResp
	if err := httpGetJSON(ctx, f.client, url, &resp); err != nil {
		return nil, err
	}
	return &domain.Quote{
		Pair:        pair,
		Bid:         resp.Bid,
		Ask:         resp.Ask,
		TimestampMs: resp.Ts * 1000,
		Provider:    "finnhub",
	}, nil
}
