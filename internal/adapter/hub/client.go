package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/port"
)

// DefaultEndpoint is the public Hugging Face Hub
const DefaultEndpoint = "https://huggingface.co"

// Config holds hub client configuration
type Config struct {
	Endpoint       string
	Token          string
	RequestTimeout time.Duration // applies to API calls, not file bodies
	UserAgent      string
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Endpoint:       DefaultEndpoint,
		RequestTimeout: 30 * time.Second,
		UserAgent:      "batchfetch/1",
	}
}

// Client talks to the Hugging Face Hub HTTP API
type Client struct {
	config Config
	httpc  *http.Client
	fs     port.FileSystem
	logger *zap.Logger
}

var (
	_ port.Lister     = (*Client)(nil)
	_ port.SizeProber = (*Client)(nil)
	_ port.Transfer   = (*Client)(nil)
	_ port.Pinger     = (*Client)(nil)
)

// New creates a new hub client. fs is used by Fetch to stage partial files.
func New(cfg Config, fs port.FileSystem, logger *zap.Logger) *Client {
	defaults := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaults.Endpoint
	}
	cfg.Endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		config: cfg,
		httpc:  &http.Client{Transport: tr},
		fs:     fs,
		logger: logger,
	}
}

// Endpoint returns the configured hub base URL
func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

func (c *Client) addAuth(req *http.Request) {
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
}

func (c *Client) treeURL(repo domain.RepoRef, prefix string) string {
	u := fmt.Sprintf("%s/api/%ss/%s/tree/%s", c.config.Endpoint, repo.Type, repo.ID, url.PathEscape(revision(repo)))
	if prefix != "" {
		u += "/" + pathEscapeAll(prefix)
	}
	return u
}

func (c *Client) resolveURL(repo domain.RepoRef, path string) string {
	base := c.config.Endpoint
	if repo.Type == domain.RepoTypeDataset {
		base += "/datasets"
	}
	return fmt.Sprintf("%s/%s/resolve/%s/%s", base, repo.ID, url.PathEscape(revision(repo)), pathEscapeAll(path))
}

func revision(repo domain.RepoRef) string {
	if repo.Revision == "" {
		return "main"
	}
	return repo.Revision
}

func pathEscapeAll(p string) string {
	segs := strings.Split(p, "/")
	for i := range segs {
		segs[i] = url.PathEscape(segs[i])
	}
	return strings.Join(segs, "/")
}

// Ping checks that the hub answers. With a token, the token is validated too.
func (c *Client) Ping(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	method, target := http.MethodHead, c.config.Endpoint
	if c.config.Token != "" {
		method, target = http.MethodGet, c.config.Endpoint+"/api/whoami-v2"
	}

	req, err := http.NewRequestWithContext(reqCtx, method, target, nil)
	if err != nil {
		return err
	}
	c.addAuth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("hub unreachable: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return newAPIError(resp)
	}
	return nil
}
