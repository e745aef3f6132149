// Package sdk implements the KIS OpenAPI wire protocol: OAuth token
// lifecycle, hashkey signing for order bodies, request pacing, and the
// response envelope. Everything above this package works with typed outputs
// and never sees HTTP.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	realBaseURL = "https://openapi.koreainvestment.com:9443"
	demoBaseURL = "https://openapivts.koreainvestment.com:29443"

	// The demo environment enforces a much lower per-second cap than real.
	realMinInterval = 50 * time.Millisecond
	demoMinInterval = 500 * time.Millisecond

	// Tokens last 24h; refresh with an hour of slack so in-flight calls
	// never race the expiry.
	tokenExpirySlack = time.Hour
)

// Config holds SDK client configuration.
type Config struct {
	AppKey    string
	AppSecret string
	AccountNo string // CANO without the product suffix
	Product   string // account product code, usually "01"
	Demo      bool
	BaseURL   string // endpoint override, tests only
	Log       zerolog.Logger
}

// Client speaks the KIS OpenAPI wire protocol for one credential set.
type Client struct {
	appKey    string
	appSecret string
	accountNo string
	product   string
	baseURL   string
	demo      bool

	httpClient *http.Client
	log        zerolog.Logger

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time

	paceMu      sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

// NewClient creates a new KIS SDK client. The base URL and request pacing
// follow the mode: demo credentials only work against the VTS endpoint.
func NewClient(cfg Config) *Client {
	baseURL := realBaseURL
	minInterval := realMinInterval
	if cfg.Demo {
		baseURL = demoBaseURL
		minInterval = demoMinInterval
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	return &Client{
		appKey:      cfg.AppKey,
		appSecret:   cfg.AppSecret,
		accountNo:   cfg.AccountNo,
		product:     cfg.Product,
		baseURL:     baseURL,
		demo:        cfg.Demo,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		log:         cfg.Log.With().Str("component", "kis-sdk").Logger(),
		minInterval: minInterval,
	}
}

// Demo reports whether this client targets the paper-trading environment.
func (c *Client) Demo() bool {
	return c.demo
}

// AccountNo returns the CANO part of the account.
func (c *Client) AccountNo() string {
	return c.accountNo
}

// Product returns the account product code.
func (c *Client) Product() string {
	return c.product
}

// APIError is a structured rejection from the venue: rt_cd != "0" or a
// non-2xx transport status.
type APIError struct {
	StatusCode int
	Code       string // msg_cd
	Message    string // msg1
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("kis api error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("kis api status %d: %s", e.StatusCode, e.Message)
}

// envelope is the common KIS response frame.
type envelope struct {
	RtCd    string          `json:"rt_cd"`
	MsgCd   string          `json:"msg_cd"`
	Msg1    string          `json:"msg1"`
	Output  json.RawMessage `json:"output"`
	Output1 json.RawMessage `json:"output1"`
	Output2 json.RawMessage `json:"output2"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type hashkeyResponse struct {
	Hash string `json:"HASH"`
}

// pace enforces the venue's minimum inter-request gap, waiting under the
// pacing mutex so concurrent callers serialize.
func (c *Client) pace(ctx context.Context) error {
	c.paceMu.Lock()
	defer c.paceMu.Unlock()

	elapsed := time.Since(c.lastRequest)
	if wait := c.minInterval - elapsed; wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.lastRequest = time.Now()
	return nil
}

// accessToken returns a cached bearer token, fetching a fresh one under the
// mutex when the cache is empty or near expiry (single-flight).
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpirySlack)) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.appKey,
		"appsecret":  c.appSecret,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth2/tokenP", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: truncate(string(respBody), 200)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(respBody, &tok); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response carried no access_token")
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.log.Info().Time("expires", c.tokenExpiry).Msg("Access token refreshed")

	return c.token, nil
}

// hashkey signs an order body via /uapi/hashkey as the order endpoints
// require.
func (c *Client) hashkey(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/uapi/hashkey", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create hashkey request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("appkey", c.appKey)
	req.Header.Set("appsecret", c.appSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("hashkey request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read hashkey response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: truncate(string(respBody), 200)}
	}

	var hk hashkeyResponse
	if err := json.Unmarshal(respBody, &hk); err != nil {
		return "", fmt.Errorf("failed to parse hashkey response: %w", err)
	}
	return hk.Hash, nil
}

// get performs a paced, authenticated GET and decodes the envelope output
// into out (which receives the raw "output" JSON).
func (c *Client) get(ctx context.Context, path, trID string, query url.Values) (*envelope, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setCommonHeaders(req, token, trID)

	return c.do(req, trID)
}

// postOrder performs a paced, authenticated, hashkey-signed POST for order
// placement endpoints.
func (c *Client) postOrder(ctx context.Context, path, trID string, body interface{}) (*envelope, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order body: %w", err)
	}

	hash, err := c.hashkey(ctx, payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setCommonHeaders(req, token, trID)
	req.Header.Set("hashkey", hash)

	return c.do(req, trID)
}

func (c *Client) setCommonHeaders(req *http.Request, token, trID string) {
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", c.appKey)
	req.Header.Set("appsecret", c.appSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("custtype", "P")
}

func (c *Client) do(req *http.Request, trID string) (*envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Error().
			Int("status_code", resp.StatusCode).
			Str("tr_id", trID).
			Str("response_body", truncate(string(body), 500)).
			Msg("API returned non-200 status")
		return nil, &APIError{StatusCode: resp.StatusCode, Message: truncate(string(body), 200)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if env.RtCd != "0" {
		c.log.Warn().
			Str("tr_id", trID).
			Str("msg_cd", env.MsgCd).
			Str("msg1", env.Msg1).
			Msg("API returned error envelope")
		return nil, &APIError{StatusCode: resp.StatusCode, Code: env.MsgCd, Message: env.Msg1}
	}

	return &env, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
