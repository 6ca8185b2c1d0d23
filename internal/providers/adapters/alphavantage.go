package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/fxrunner/engine/internal/domain"
)

// AlphaVantage implements providers.Provider against the alphavantage.co FX
// endpoints. It has the thinnest free tier of the four, so the fetcher's
// quality-ordering will naturally push it to the back once its latency and
// failure history accumulate.
type AlphaVantage struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewAlphaVantage() *AlphaVantage {
	return &AlphaVantage{
		apiKey:  os.Getenv("ALPHAVANTAGE_API_KEY"),
		baseURL: "https://www.alphavantage.co",
		client:  defaultClient(9 * time.Second),
	}
}

func (a *AlphaVantage) Name() string       { return "alphaVantage" }
func (a *AlphaVantage) IsConfigured() bool { return a.apiKey != "" }

var alphaVantageFunctions = map[domain.Timeframe]string{
	domain.M1: "FX_INTRADAY", domain.M5: "FX_INTRADAY", domain.M15: "FX_INTRADAY",
	domain.M30: "FX_INTRADAY", domain.H1: "FX_INTRADAY", domain.H4: "FX_INTRADAY",
	domain.D1: "FX_DAILY",
}

var alphaVantageIntervals = map[domain.Timeframe]string{
	domain.M1: "1min", domain.M5: "5min", domain.M15: "15min", domain.M30: "30min", domain.H1: "60min",
}

type alphaVantageCandle struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

func (a *AlphaVantage) FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, barCount int) ([]domain.Bar, error) {
	fn, ok := alphaVantageFunctions[tf]
	if !ok {
		return nil, fmt.Errorf("alphaVantage: unsupported timeframe %s", tf)
	}
	url := fmt.Sprintf("%s/query?function=%s&from_symbol=%s&to_symbol=%s&apikey=%s&outputsize=full",
		a.baseURL, fn, pair.Base, pair.Quote, a.apiKey)
	if interval, ok := alphaVantageIntervals[tf]; ok {
		url += "&interval=" + interval
	}

	var resp map[string]json.RawMessage
	if err := httpGetJSON(ctx, a.client, url, &resp); err != nil {
		return nil, err
	}

	var seriesRaw json.RawMessage
	for key, v := range resp {
		if key != "Meta Data" {
			seriesRaw = v
		}
	}
	if seriesRaw == nil {
		return nil, fmt.Errorf("alphaVantage: no time series in response")
	}

	var series map[string]alphaVantageCandle
	if err := json.Unmarshal(seriesRaw, &series); err != nil {
		return nil, fmt.Errorf("alphaVantage: decode time series: %w", err)
	}

	type stamped struct {
		ts time.Time
		c  alphaVantageCandle
	}
	rows := make([]stamped, 0, len(series))
	for ts, c := range series {
		parsed, err := time.Parse("2006-01-02 15:04:05", ts)
		if err != nil {
			parsed, err = time.Parse("2006-01-02", ts)
			if err != nil {
				continue
			}
		}
		rows = append(rows, stamped{ts: parsed, c: c})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ts.Before(rows[j].ts) })
	if len(rows) > barCount {
		rows = rows[len(rows)-barCount:]
	}

	bars := make([]domain.Bar, 0, len(rows))
	for _, r := range rows {
		bars = append(bars, domain.Bar{
			TimestampMs: r.ts.UnixMilli(),
			Open:        parseFloat(r.c.Open),
			High:        parseFloat(r.c.High),
			Low:         parseFloat(r.c.Low),
			Close:       parseFloat(r.c.Close),
			Volume:      parseFloat(r.c.Volume),
			Source:      "alphaVantage",
		})
	}
	return bars, nil
}

type alphaVantageRateResp struct {
	RealtimeCurrencyExchangeRate struct {
		BidPrice string `json:"8. Bid Price"`
		AskPrice string `json:"9. Ask Price"`
	} `json:"Realtime Currency Exchange Rate"`
}

func (a *AlphaVantage) FetchQuote(ctx context.Context, pair domain.Pair) (*domain.Quote, error) {
	url := fmt.Sprintf("%s/query?function=CURRENCY_EXCHANGE_RATE&from_currency=%s&to_currency=%s&apikey=%s",
		a.baseURL, pair.Base, pair.Quote, a.apiKey)

	var resp alphaVantageRateResp
	if err := httpGetJSON(ctx, a.client, url, &resp); err != nil {
		return nil, err
	}
	return &domain.Quote{
		Pair:        pair,
		Bid:         parseFloat(resp.RealtimeCurrencyExchangeRate.BidPrice),
		Ask:         parseFloat(resp.RealtimeCurrencyExchangeRate.AskPrice),
		TimestampMs: time.Now().UnixMilli(),
		Provider:    "alphaVantage",
	}, nil
}
