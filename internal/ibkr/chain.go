package ibkr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voledgehq/voledge/internal/models"
)

// ChainSpec bounds which contracts FetchChain pulls. Snapshots are rationed
// by the gateway, so the chain is trimmed before quoting rather than after.
type ChainSpec struct {
	Right models.OptionType
	// MaxDTE drops expiry months entirely beyond the horizon.
	MaxDTE int
	// StrikeRange keeps strikes within +/- this fraction of the spot price.
	// Zero keeps every strike.
	StrikeRange float64
}

type strikesResponse struct {
	Call []float64 `json:"call"`
	Put  []float64 `json:"put"`
}

// fetchStrikes lists the strikes quoted for one expiry month.
func (c *Client) fetchStrikes(ctx context.Context, conid int, month string, right models.OptionType) ([]float64, error) {
	url := fmt.Sprintf("%s/iserver/secdef/strikes?conid=%d&sectype=OPT&month=%s",
		c.baseURL, conid, month)

	var resp strikesResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch strikes for %s: %w", month, err)
	}
	if right == models.Call {
		return resp.Call, nil
	}
	return resp.Put, nil
}

type contractInfo struct {
	ConID        int    `json:"conid"`
	MaturityDate string `json:"maturityDate"` // YYYYMMDD
	Right        string `json:"right"`
}

// fetchContract resolves one (month, strike, right) to its option contract.
func (c *Client) fetchContract(ctx context.Context, underlyingConID int, month string, strike float64, right models.OptionType) (*contractInfo, error) {
	r := "P"
	if right == models.Call {
		r = "C"
	}
	url := fmt.Sprintf("%s/iserver/secdef/info?conid=%d&sectype=OPT&month=%s&strike=%v&right=%s",
		c.baseURL, underlyingConID, month, strike, r)

	var infos []contractInfo
	if err := c.getJSON(ctx, url, &infos); err != nil {
		return nil, fmt.Errorf("failed to fetch contract info: %w", err)
	}
	for i := range infos {
		if strings.EqualFold(infos[i].Right, r) {
			return &infos[i], nil
		}
	}
	return nil, fmt.Errorf("no %s contract at %s %v", r, month, strike)
}

// FetchChain builds the quoted option chain for an underlying: expiry
// months inside the DTE horizon, strikes near the spot, one quote per
// contract. Contracts the gateway cannot resolve or quote are skipped, not
// fatal: a partial chain still scans.
func (c *Client) FetchChain(ctx context.Context, symbol string, spec ChainSpec) ([]models.OptionQuote, error) {
	conid, months, err := c.SearchUnderlying(ctx, symbol)
	if err != nil {
		return nil, err
	}
	spot, err := c.FetchSpot(ctx, conid)
	if err != nil {
		return nil, err
	}

	asOf := time.Now().UTC()
	months = filterMonths(months, asOf, spec.MaxDTE)

	type pending struct {
		conid  int
		strike float64
		expiry time.Time
	}
	var contracts []pending
	for _, month := range months {
		strikes, err := c.fetchStrikes(ctx, conid, month, spec.Right)
		if err != nil {
			return nil, err
		}
		for _, strike := range strikes {
			if spec.StrikeRange > 0 {
				lo := spot * (1 - spec.StrikeRange)
				hi := spot * (1 + spec.StrikeRange)
				if strike < lo || strike > hi {
					continue
				}
			}
			info, err := c.fetchContract(ctx, conid, month, strike, spec.Right)
			if err != nil {
				continue
			}
			expiry, err := time.Parse("20060102", info.MaturityDate)
			if err != nil {
				continue
			}
			contracts = append(contracts, pending{conid: info.ConID, strike: strike, expiry: expiry})
		}
	}
	if len(contracts) == 0 {
		return nil, nil
	}

	ids := make([]int, len(contracts))
	for i, ct := range contracts {
		ids[i] = ct.conid
	}
	snaps, err := c.fetchSnapshots(ctx, ids)
	if err != nil {
		return nil, err
	}

	quotes := make([]models.OptionQuote, 0, len(contracts))
	for _, ct := range contracts {
		snap, ok := snaps[ct.conid]
		if !ok {
			continue
		}
		bid, bidOK := parseNumeric(snap[fieldBid])
		ask, askOK := parseNumeric(snap[fieldAsk])
		last, _ := parseNumeric(snap[fieldLast])
		if !bidOK || !askOK {
			continue
		}
		quotes = append(quotes, models.OptionQuote{
			Underlying:      symbol,
			Type:            spec.Right,
			Strike:          ct.strike,
			Expiry:          ct.expiry,
			Bid:             bid,
			Ask:             ask,
			Last:            last,
			UnderlyingPrice: spot,
			AsOf:            asOf,
		})
	}
	return quotes, nil
}

// filterMonths keeps expiry months whose earliest possible expiry sits
// inside the DTE horizon. Months are coarse (the exact expiry day comes
// from contract info), so the first of the month is the cheap lower bound.
func filterMonths(months []string, asOf time.Time, maxDTE int) []string {
	if maxDTE <= 0 {
		return months
	}
	horizon := asOf.AddDate(0, 0, maxDTE)
	var kept []string
	for _, m := range months {
		if len(m) != 5 {
			continue
		}
		// Months arrive upper-cased ("JAN26"); time.Parse wants "Jan26".
		start, err := time.Parse("Jan06", m[:1]+strings.ToLower(m[1:3])+m[3:])
		if err != nil {
			continue
		}
		if start.Before(horizon) {
			kept = append(kept, m)
		}
	}
	return kept
}
