package ibkr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/voledgehq/voledge/internal/models"
)

// Snapshot field IDs used by the gateway market data endpoint.
const (
	fieldLast = "31"
	fieldBid  = "84"
	fieldAsk  = "86"
)

type searchResult struct {
	ConID    string `json:"conid"`
	Symbol   string `json:"symbol"`
	Sections []struct {
		SecType string `json:"secType"`
		Months  string `json:"months"` // semicolon-separated, e.g. "JAN26;FEB26"
	} `json:"sections"`
}

// SearchUnderlying resolves a stock symbol to its contract ID and the option
// expiry months the gateway lists for it.
func (c *Client) SearchUnderlying(ctx context.Context, symbol string) (int, []string, error) {
	url := fmt.Sprintf("%s/iserver/secdef/search?symbol=%s", c.baseURL, symbol)

	var results []searchResult
	if err := c.getJSON(ctx, url, &results); err != nil {
		return 0, nil, fmt.Errorf("failed to search symbol %s: %w", symbol, err)
	}
	for _, r := range results {
		if r.Symbol != symbol {
			continue
		}
		var conid int
		if _, err := fmt.Sscanf(r.ConID, "%d", &conid); err != nil {
			return 0, nil, fmt.Errorf("failed to parse conid %q: %w", r.ConID, err)
		}
		var months []string
		for _, sec := range r.Sections {
			if sec.SecType == "OPT" && sec.Months != "" {
				months = strings.Split(sec.Months, ";")
			}
		}
		return conid, months, nil
	}
	return 0, nil, fmt.Errorf("symbol not found: %s", symbol)
}

type historyResponse struct {
	Data []struct {
		Open   float64 `json:"o"`
		Close  float64 `json:"c"`
		High   float64 `json:"h"`
		Low    float64 `json:"l"`
		Volume float64 `json:"v"`
		Time   int64   `json:"t"` // epoch milliseconds
	} `json:"data"`
}

// FetchHistory retrieves daily bars for a contract covering the requested
// number of calendar days, oldest first.
func (c *Client) FetchHistory(ctx context.Context, conid, days int) ([]models.PriceBar, error) {
	url := fmt.Sprintf("%s/iserver/marketdata/history?conid=%d&period=%dd&bar=1d&outsideRth=false",
		c.baseURL, conid, days)

	var hist historyResponse
	if err := c.getJSON(ctx, url, &hist); err != nil {
		return nil, fmt.Errorf("failed to fetch history for conid %d: %w", conid, err)
	}

	bars := make([]models.PriceBar, 0, len(hist.Data))
	for _, d := range hist.Data {
		bars = append(bars, models.PriceBar{
			Date:   time.UnixMilli(d.Time).UTC(),
			Open:   d.Open,
			High:   d.High,
			Low:    d.Low,
			Close:  d.Close,
			Volume: int64(d.Volume),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	if err := models.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("history for conid %d: %w", conid, err)
	}
	return bars, nil
}

// FetchSpot returns the last traded price for a contract.
func (c *Client) FetchSpot(ctx context.Context, conid int) (float64, error) {
	snaps, err := c.fetchSnapshots(ctx, []int{conid})
	if err != nil {
		return 0, err
	}
	snap, ok := snaps[conid]
	if !ok {
		return 0, fmt.Errorf("no snapshot returned for conid %d", conid)
	}
	last, ok := parseNumeric(snap[fieldLast])
	if !ok || last <= 0 {
		return 0, fmt.Errorf("no last price for conid %d", conid)
	}
	return last, nil
}

// fetchSnapshots retrieves bid/ask/last for a batch of contracts. The
// gateway needs a priming call before it streams real values, so the
// request is issued twice.
func (c *Client) fetchSnapshots(ctx context.Context, conids []int) (map[int]map[string]any, error) {
	ids := make([]string, len(conids))
	for i, id := range conids {
		ids[i] = fmt.Sprintf("%d", id)
	}
	url := fmt.Sprintf("%s/iserver/marketdata/snapshot?conids=%s&fields=%s,%s,%s",
		c.baseURL, strings.Join(ids, ","), fieldLast, fieldBid, fieldAsk)

	var primer []map[string]any
	if err := c.getJSON(ctx, url, &primer); err != nil {
		return nil, fmt.Errorf("failed to prime snapshot: %w", err)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(500 * time.Millisecond):
	}

	var raw []map[string]any
	if err := c.getJSON(ctx, url, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	snaps := make(map[int]map[string]any, len(raw))
	for _, entry := range raw {
		id, ok := parseNumeric(entry["conid"])
		if !ok {
			continue
		}
		snaps[int(id)] = entry
	}
	return snaps, nil
}
