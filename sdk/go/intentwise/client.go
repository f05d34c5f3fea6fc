package intentwise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the IntentWise Chain REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Credentials represents the password grant used to obtain access tokens.
type Credentials struct {
	GrantType string `json:"grant_type,omitempty"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// Token represents an issued access token pair.
type Token struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// Condition is a structured execution predicate attached to an intent.
type Condition struct {
	Type       string `json:"type,omitempty"`
	Threshold  string `json:"threshold,omitempty"`
	Comparison string `json:"comparison,omitempty"`
	Asset      string `json:"asset,omitempty"`
}

// IntentSubmission represents the payload required to create a new intent.
type IntentSubmission struct {
	WalletAddress string     `json:"wallet_address"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Action        string     `json:"action"`
	Token         string     `json:"token"`
	Amount        string     `json:"amount,omitempty"`
	Frequency     string     `json:"frequency,omitempty"`
	Condition     *Condition `json:"condition,omitempty"`
	TargetChain   string     `json:"target_chain,omitempty"`
}

// Intent mirrors the server-side intent resource.
type Intent struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	WalletAddress string     `json:"wallet_address"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Action        string     `json:"action"`
	Token         string     `json:"token"`
	Amount        string     `json:"amount,omitempty"`
	Frequency     string     `json:"frequency"`
	Condition     *Condition `json:"condition,omitempty"`
	TargetChain   string     `json:"target_chain"`
	IsActive      bool       `json:"is_active"`
	Executed      bool       `json:"executed"`
	NextExecution int64      `json:"next_execution,omitempty"`
	LastExecution int64      `json:"last_execution,omitempty"`
	CreatedAt     int64      `json:"created_at"`
	UpdatedAt     int64      `json:"updated_at"`
}

// ExecutionRecord is one settlement attempt of an intent.
type ExecutionRecord struct {
	ID         string `json:"id"`
	IntentID   string `json:"intent_id"`
	Status     string `json:"status"`
	Result     string `json:"result"`
	GasUsed    string `json:"gas_used,omitempty"`
	TxHash     string `json:"tx_hash,omitempty"`
	Mode       string `json:"mode"`
	ExecutedAt int64  `json:"executed_at"`
}

// ReceiptAttribute is a single trait on a minted receipt.
type ReceiptAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Receipt is the proof-of-execution artifact minted after a settlement.
type Receipt struct {
	TokenID     string             `json:"token_id"`
	IntentID    string             `json:"intent_id"`
	RecordID    string             `json:"record_id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Image       string             `json:"image"`
	Attributes  []ReceiptAttribute `json:"attributes"`
	CreatedAt   int64              `json:"created_at"`
}

// IntentDetail bundles an intent with its execution history.
type IntentDetail struct {
	Intent  *Intent            `json:"intent"`
	Records []*ExecutionRecord `json:"records"`
}

// ExecuteResult distinguishes the three outcomes of an execution request.
type ExecuteResult struct {
	Success   bool             `json:"success"`
	Executed  bool             `json:"executed"`
	Message   string           `json:"message,omitempty"`
	NextCheck int64            `json:"next_check_seconds,omitempty"`
	Record    *ExecutionRecord `json:"record,omitempty"`
	Receipt   *Receipt         `json:"receipt,omitempty"`
}

// ChatTurn is one persisted message of the natural-language session.
type ChatTurn struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Message       string          `json:"message"`
	IsAgent       bool            `json:"is_agent"`
	AgentResponse json.RawMessage `json:"agent_response,omitempty"`
	CreatedAt     int64           `json:"created_at"`
}

// DashboardStats aggregates the user's automation activity.
type DashboardStats struct {
	TotalIntents  int    `json:"total_intents"`
	ActivePlans   int    `json:"active_plans"`
	ExecutedToday int    `json:"executed_today"`
	TotalRecords  int    `json:"total_records"`
	TotalValue    string `json:"total_value"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("intentwise api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("intentwise api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the IntentWise Chain API. When
// httpClient is nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// Authenticate exchanges credentials for an access token and stores it for
// subsequent calls. Servers running with auth disabled do not need this.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (Token, error) {
	var token Token
	if err := c.post(ctx, "/api/v1/auth/token", creds, &token); err != nil {
		return Token{}, err
	}
	c.mu.Lock()
	c.accessToken = token.AccessToken
	c.mu.Unlock()
	return token, nil
}

// CreateIntent creates a new intent.
func (c *Client) CreateIntent(ctx context.Context, submission IntentSubmission) (*Intent, error) {
	var created Intent
	if err := c.post(ctx, "/api/v1/intents", submission, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListIntents fetches the current user's intents.
func (c *Client) ListIntents(ctx context.Context) ([]*Intent, error) {
	var intents []*Intent
	if err := c.get(ctx, "/api/v1/intents", &intents); err != nil {
		return nil, err
	}
	return intents, nil
}

// GetIntent fetches one intent with its execution records.
func (c *Client) GetIntent(ctx context.Context, intentID string) (*IntentDetail, error) {
	var detail IntentDetail
	if err := c.get(ctx, "/api/v1/intents/"+url.PathEscape(intentID), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExecuteIntent triggers a synchronous execution check.
func (c *Client) ExecuteIntent(ctx context.Context, intentID string) (*ExecuteResult, error) {
	var result ExecuteResult
	endpoint := "/api/v1/intents/" + url.PathEscape(intentID) + "/execute"
	if err := c.post(ctx, endpoint, struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Chat sends one natural-language message and returns the agent turn.
func (c *Client) Chat(ctx context.Context, message string) (*ChatTurn, error) {
	var turn ChatTurn
	payload := struct {
		Message string `json:"message"`
	}{Message: message}
	if err := c.post(ctx, "/api/v1/chat", payload, &turn); err != nil {
		return nil, err
	}
	return &turn, nil
}

// ChatHistory fetches the persisted session transcript.
func (c *Client) ChatHistory(ctx context.Context) ([]*ChatTurn, error) {
	var turns []*ChatTurn
	if err := c.get(ctx, "/api/v1/chat/history", &turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// Stats fetches the dashboard aggregates.
func (c *Client) Stats(ctx context.Context) (*DashboardStats, error) {
	var stats DashboardStats
	if err := c.get(ctx, "/api/v1/dashboard/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken overrides the stored access token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
