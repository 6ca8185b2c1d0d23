package adapters

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/fxrunner/engine/internal/domain"
)

// TwelveData implements providers.Provider against the twelvedata.com API.
type TwelveData struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewTwelveData() *TwelveData {
	return &TwelveData{
		apiKey:  os.Getenv("TWELVEDATA_API_KEY"),
		baseURL: "https://api.twelvedata.com",
		client:  defaultClient(9 * time.Second),
	}
}

func (t *TwelveData) Name() string         { return "twelveData" }
func (t *TwelveData) IsConfigured() bool   { return t.apiKey != "" }

var twelveDataIntervals = map[domain.Timeframe]string{
	domain.M1: "1min", domain.M5: "5min", domain.M15: "15min", domain.M30: "30min",
	domain.H1: "1h", domain.H4: "4h", domain.D1: "1day",
}

type twelveDataSeriesResp struct {
	Values []struct {
		Datetime string `json:"datetime"`
		Open     string `json:"open"`
		High     string `json:"high"`
		Low      string `json:"low"`
		Close    string `json:"close"`
		Volume   string `json:"volume"`
	} `json:"values"`
	Status string `json:"status"`
}

func (t *TwelveData) FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, barCount int) ([]domain.Bar, error) {
	interval, ok := twelveDataIntervals[tf]
	if !ok {
		return nil, fmt.Errorf("twelveData: unsupported timeframe %s", tf)
	}
	symbol := pair.Base + "/" + pair.Quote
	url := fmt.Sprintf("%s/time_series?symbol=%s&interval=%s&outputsize=%d&apikey=%s",
		t.baseURL, symbol, interval, barCount, t.apiKey)

	var resp twelveDataSeriesResp
	if err := httpGetJSON(ctx, t.client, url, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "error" {
		return nil, fmt.Errorf("twelveData: provider reported error status")
	}

	bars := make([]domain.Bar, 0, len(resp.Values))
	for i := len(resp.Values) - 1; i >= 0; i-- { // twelveData returns newest-first
		v := resp.Values[i]
		ts, err := time.Parse("2006-01-02 15:04:05", v.Datetime)
		if err != nil {
			ts, err = time.Parse("2006-01-02", v.Datetime)
			if err != nil {
				continue
			}
		}
		bars = append(bars, domain.Bar{
			TimestampMs: ts.UnixMilli(),
			Open:        parseFloat(v.Open),
			High:        parseFloat(v.High),
			Low:         parseFloat(v.Low),
			Close:       parseFloat(v.Close),
			Volume:      parseFloat(v.Volume),
			Source:      "twelveData",
		})
	}
	return bars, nil
}

type twelveDataQuoteResp struct {
	Bid       string `json:"bid"`
	Ask       string `json:"ask"`
	Timestamp int64  `json:"timestamp"`
}

func (t *TwelveData) FetchQuote(ctx context.Context, pair domain.Pair) (*domain.Quote, error) {
	symbol := pair.Base + "/" + pair.Quote
	url := fmt.Sprintf("%s/quote?symbol=%s&apikey=%s", t.baseURL, symbol, t.apiKey)

	var resp twelveDataQuoteResp
	if err := httpGetJSON(ctx, t.client, url, &resp); err != nil {
		return nil, err
	}
	return &domain.Quote{
		Pair:        pair,
		Bid:         parseFloat(resp.Bid),
		Ask:         parseFloat(resp.Ask),
		TimestampMs: resp.Timestamp * 1000,
		Provider:    "twelveData",
	}, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
