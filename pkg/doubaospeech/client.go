package doubaospeech

import (
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://openspeech.bytedance.com"
	defaultWSURL   = "wss://openspeech.bytedance.com"
	defaultTimeout = 30 * time.Second
)

// Resource IDs for the v3 streaming recognizer.
const (
	ResourceASRStream   = "volc.bigasr.sauc.duration"
	ResourceASRStreamV2 = "volc.seedasr.sauc.duration"
)

// Client is a Doubao speech API client. It is safe for concurrent use.
type Client struct {
	appID      string
	token      string
	cluster    string
	resourceID string
	baseURL    string
	wsURL      string
	userID     string
	timeout    time.Duration
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// NewClient creates a client for the application appID.
func NewClient(appID string, opts ...Option) *Client {
	c := &Client{
		appID:      appID,
		baseURL:    defaultBaseURL,
		wsURL:      defaultWSURL,
		timeout:    defaultTimeout,
		userID:     "voicegate",
		resourceID: ResourceASRStream,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// WithToken sets the access token from the console.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithCluster sets the v1 cluster, e.g. volcano_tts.
func WithCluster(cluster string) Option {
	return func(c *Client) { c.cluster = cluster }
}

// WithResourceID sets the streaming recognition resource.
func WithResourceID(id string) Option {
	return func(c *Client) { c.resourceID = id }
}

// WithBaseURL sets the HTTP API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithWebSocketURL sets the websocket API base URL.
func WithWebSocketURL(url string) Option {
	return func(c *Client) { c.wsURL = url }
}

// WithHTTPClient sets the HTTP client used for v1 requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the HTTP request timeout. It has no effect together with
// WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithUserID sets the uid reported to the service.
func WithUserID(uid string) Option {
	return func(c *Client) { c.userID = uid }
}

func (c *Client) setAuthHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer;"+c.token)
	}
}

func (c *Client) wsHeaders(connectID string) http.Header {
	h := http.Header{}
	h.Set("X-Api-App-Key", c.appID)
	h.Set("X-Api-App-Id", c.appID)
	if c.token != "" {
		h.Set("X-Api-Access-Key", c.token)
	}
	h.Set("X-Api-Resource-Id", c.resourceID)
	h.Set("X-Api-Connect-Id", connectID)
	return h
}
