package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Client talks to the Gamma markets API and the CLOB book API.
type Client struct {
	gammaURL string
	clobURL  string
	http     *http.Client
	log      *zap.Logger
}

func New(gammaURL, clobURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		gammaURL: gammaURL,
		clobURL:  clobURL,
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// MarketRecord mirrors the Gamma wire shape. List-valued fields arrive as a
// JSON array serialized into a string; callers parse them downstream.
type MarketRecord struct {
	ConditionID     string `json:"conditionId"`
	Question        string `json:"question"`
	Slug            string `json:"slug"`
	Outcomes        string `json:"outcomes"`
	OutcomePrices   string `json:"outcomePrices"`
	ClobTokenIDs    string `json:"clobTokenIds"`
	Liquidity       string `json:"liquidity"`
	Volume24hr      string `json:"volume24hr"`
	Active          bool   `json:"active"`
	AcceptingOrders bool   `json:"acceptingOrders"`
}

type LevelRecord struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type BookRecord struct {
	Market    string        `json:"market"`
	AssetID   string        `json:"asset_id"`
	Timestamp string        `json:"timestamp"`
	Bids      []LevelRecord `json:"bids"`
	Asks      []LevelRecord `json:"asks"`
}

func (c *Client) Markets(ctx context.Context, limit int) ([]MarketRecord, error) {
	query := url.Values{}
	query.Set("active", "true")
	query.Set("closed", "false")
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var records []MarketRecord
	if err := c.get(ctx, c.gammaURL+"/markets?"+query.Encode(), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) MarketByCondition(ctx context.Context, conditionID string) (MarketRecord, error) {
	query := url.Values{}
	query.Set("condition_ids", conditionID)
	var records []MarketRecord
	if err := c.get(ctx, c.gammaURL+"/markets?"+query.Encode(), &records); err != nil {
		return MarketRecord{}, err
	}
	if len(records) == 0 {
		return MarketRecord{}, fmt.Errorf("no market found for condition %s", conditionID)
	}
	return records[0], nil
}

func (c *Client) Book(ctx context.Context, tokenID string) (BookRecord, error) {
	query := url.Values{}
	query.Set("token_id", tokenID)
	var record BookRecord
	if err := c.get(ctx, c.clobURL+"/book?"+query.Encode(), &record); err != nil {
		return BookRecord{}, err
	}
	return record, nil
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
