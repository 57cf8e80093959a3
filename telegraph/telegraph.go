package telegraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	telegraphAPIURL = "https://api.telegra.ph"
	apiTimeoutSec   = 15
	defaultAuthor   = "QuizBot"
)

// Node is an element of a Telegraph page. Children are strings or *Node.
type Node struct {
	Tag      string `json:"tag"`
	Children []any  `json:"children,omitempty"`
}

// Elem builds a node with the given tag and children
func Elem(tag string, children ...any) *Node {
	return &Node{Tag: tag, Children: children}
}

// Page is a published Telegraph page
type Page struct {
	Path  string `json:"path"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Client manages interactions with the Telegraph API
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
}

// Option customises a Client
type Option func(*Client)

// WithBaseURL points the client at another API endpoint
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// NewClient creates a Telegraph client. With an empty token an account
// is created on first use.
func NewClient(accessToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:     telegraphAPIURL,
		httpClient:  &http.Client{Timeout: apiTimeoutSec * time.Second},
		accessToken: accessToken,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result"`
}

type account struct {
	AccessToken string `json:"access_token"`
}

// CreateAccount registers a new Telegraph account and returns its access token
func (c *Client) CreateAccount(ctx context.Context, shortName string) (string, error) {
	var acc account
	err := c.call(ctx, "createAccount", map[string]any{
		"short_name":  shortName,
		"author_name": defaultAuthor,
	}, &acc)
	if err != nil {
		return "", err
	}
	if acc.AccessToken == "" {
		return "", errors.New("telegraph returned an empty access token")
	}
	return acc.AccessToken, nil
}

// CreatePage publishes a page and returns it
func (c *Client) CreatePage(ctx context.Context, title string, content []any) (*Page, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var page Page
	err = c.call(ctx, "createPage", map[string]any{
		"access_token": token,
		"title":        title,
		"author_name":  defaultAuthor,
		"content":      content,
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// token returns the configured access token, creating an account if there is none
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" {
		return c.accessToken, nil
	}

	token, err := c.CreateAccount(ctx, defaultAuthor)
	if err != nil {
		return "", fmt.Errorf("failed to create telegraph account: %w", err)
	}
	log.Printf("Created Telegraph account")
	c.accessToken = token
	return token, nil
}

func (c *Client) call(ctx context.Context, method string, params map[string]any, result any) error {
	reqJSON, err := json.Marshal(params)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(reqJSON))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegraph %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	log.Debugf("Telegraph %s answered %d in %v", method, resp.StatusCode, time.Since(startTime))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegraph %s failed with status %d: %s", method, resp.StatusCode, string(body))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("failed to parse telegraph %s response: %w", method, err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegraph %s: %s", method, apiResp.Error)
	}

	return json.Unmarshal(apiResp.Result, result)
}
