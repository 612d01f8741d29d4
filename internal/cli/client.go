package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nations/internal/auth"
	"nations/internal/catalog"
	"nations/internal/game"
	"nations/internal/ledger"

	"github.com/google/uuid"
)

// APIError is a non-2xx response from the nations API.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("api status %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client

	token   string
	ownerID string
	caps    string
}

func NewClient(baseURL string, p Profile) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
		token:   p.APIToken,
		ownerID: p.OwnerID,
		caps:    strings.Join(p.Capabilities, ","),
	}
}

func (c *Client) Shop(ctx context.Context) ([]catalog.Item, error) {
	var out struct {
		Items []catalog.Item `json:"items"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/shop", nil, &out)
	return out.Items, err
}

func (c *Client) Balance(ctx context.Context, ownerID string) (ledger.Country, error) {
	if ownerID == "" {
		ownerID = c.ownerID
	}
	var out ledger.Country
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/countries/"+url.PathEscape(ownerID), nil, &out)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, n int) ([]game.LeaderboardRow, error) {
	path := "/v1/leaderboard"
	if n > 0 {
		path += "?n=" + strconv.Itoa(n)
	}
	var out struct {
		Rows []game.LeaderboardRow `json:"rows"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out.Rows, err
}

func (c *Client) Countries(ctx context.Context) ([]ledger.Country, error) {
	var out struct {
		Countries []ledger.Country `json:"countries"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/countries", nil, &out)
	return out.Countries, err
}

func (c *Client) CreateCountry(ctx context.Context, name string) (ledger.Country, error) {
	var out ledger.Country
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/countries", map[string]any{"name": name}, &out)
	return out, err
}

func (c *Client) Buy(ctx context.Context, item string) (game.Purchase, error) {
	var out game.Purchase
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/purchases", map[string]any{"item": item}, &out)
	return out, err
}

func (c *Client) Transfer(ctx context.Context, to string, amount int64) (game.TransferResult, error) {
	var out game.TransferResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/transfers", map[string]any{"to": to, "amount": amount}, &out)
	return out, err
}

func (c *Client) SetField(ctx context.Context, ownerID, field string, value int64) (ledger.Country, error) {
	var out ledger.Country
	err := c.jsonRequest(ctx, http.MethodPatch, "/v1/countries/"+url.PathEscape(ownerID), map[string]any{
		"field": field,
		"value": value,
	}, &out)
	return out, err
}

func (c *Client) DeleteCountry(ctx context.Context, ownerID string) error {
	return c.jsonRequest(ctx, http.MethodDelete, "/v1/countries/"+url.PathEscape(ownerID), nil, nil)
}

// AdjustBalance sends op "add" or "remove".
func (c *Client) AdjustBalance(ctx context.Context, ownerID, op string, amount int64) (ledger.Country, error) {
	var out ledger.Country
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/countries/"+url.PathEscape(ownerID)+"/balance", map[string]any{
		"op":     op,
		"amount": amount,
	}, &out)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.ownerID != "" {
		req.Header.Set(auth.OwnerHeader, c.ownerID)
	}
	if c.caps != "" {
		req.Header.Set(auth.CapabilitiesHeader, c.caps)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var decoded struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.Unmarshal(raw, &decoded) == nil && decoded.Error != "" {
			apiErr.Message = decoded.Error
			apiErr.Kind = decoded.Kind
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
