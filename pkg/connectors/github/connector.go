// Package github provides a GitHub connector for fetching threat model
// definitions stored in repositories.
package github

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	gh "github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"

	"github.com/threatcanvas/sdk/pkg/connectors"
)

const (
	// DefaultBaseURL is the default GitHub API base URL.
	DefaultBaseURL = "https://api.github.com"

	// DefaultRateLimit is the GitHub API limit for authenticated users.
	DefaultRateLimit = 5000
)

// Connector fetches threat model definition files from GitHub.
type Connector struct {
	*connectors.BaseConnector
	api          *gh.Client
	organization string
}

var (
	_ connectors.Connector         = (*Connector)(nil)
	_ connectors.DefinitionFetcher = (*Connector)(nil)
)

// Config holds GitHub connector configuration.
type Config struct {
	// Token is the GitHub personal access token or app token.
	Token string `yaml:"token" json:"token"`

	// Organization to scope operations to (optional).
	Organization string `yaml:"organization" json:"organization"`

	// BaseURL for GitHub API (default: https://api.github.com).
	BaseURL string `yaml:"base_url" json:"base_url"`

	// RateLimit in requests per hour (default: 5000).
	RateLimit int `yaml:"rate_limit" json:"rate_limit"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose" json:"verbose"`
}

// NewConnector creates a new GitHub connector.
func NewConnector(cfg *Config) *Connector {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}

	base := connectors.NewBaseConnector(&connectors.BaseConnectorConfig{
		Name:    "github",
		Type:    "scm",
		BaseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		Config: &connectors.ConnectorConfig{
			Token:     cfg.Token,
			RateLimit: cfg.RateLimit,
			Burst:     100,
		},
		Verbose: cfg.Verbose,
	})

	var api *gh.Client
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		api = gh.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		api = gh.NewClient(nil)
	}

	return &Connector{
		BaseConnector: base,
		api:           api,
		organization:  cfg.Organization,
	}
}

// Organization returns the configured organization.
func (c *Connector) Organization() string {
	return c.organization
}

// Connect establishes and verifies the GitHub connection.
func (c *Connector) Connect(ctx context.Context) error {
	if err := c.BaseConnector.Connect(ctx); err != nil {
		return err
	}
	return c.TestConnection(ctx)
}

// TestConnection verifies the GitHub API is reachable with the token.
func (c *Connector) TestConnection(ctx context.Context) error {
	if err := c.WaitForRateLimit(ctx); err != nil {
		return err
	}

	user, _, err := c.api.Users.Get(ctx, "")
	if err != nil {
		return fmt.Errorf("github connection test: %w", err)
	}

	if c.Verbose() {
		fmt.Printf("[github] Authenticated as: %s\n", user.GetLogin())
	}

	return nil
}

// FetchDefinition downloads a definition file from a repository.
// repo must be in owner/name form.
func (c *Connector) FetchDefinition(ctx context.Context, repo, path, ref string) (_ []byte, err error) {
	start := time.Now()
	defer func() { connectors.ObserveFetch(ctx, c.Type(), start, err) }()

	owner, name, err := splitRepo(repo, c.organization)
	if err != nil {
		return nil, err
	}

	if err := c.WaitForRateLimit(ctx); err != nil {
		return nil, err
	}

	var opts *gh.RepositoryContentGetOptions
	if ref != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: ref}
	}

	rc, _, err := c.api.Repositories.DownloadContents(ctx, owner, name, path, opts)
	if err != nil {
		return nil, fmt.Errorf("github fetch %s/%s:%s: %w", owner, name, path, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}

	if c.Verbose() {
		fmt.Printf("[github] Fetched %s from %s/%s (%d bytes)\n", path, owner, name, len(data))
	}

	return data, nil
}

// ListDefinitions lists definition files under a repository directory.
func (c *Connector) ListDefinitions(ctx context.Context, repo, dir, ref string) ([]string, error) {
	owner, name, err := splitRepo(repo, c.organization)
	if err != nil {
		return nil, err
	}

	if err := c.WaitForRateLimit(ctx); err != nil {
		return nil, err
	}

	var opts *gh.RepositoryContentGetOptions
	if ref != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: ref}
	}

	_, entries, _, err := c.api.Repositories.GetContents(ctx, owner, name, dir, opts)
	if err != nil {
		return nil, fmt.Errorf("github list %s/%s:%s: %w", owner, name, dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.GetType() != "file" {
			continue
		}
		p := entry.GetPath()
		if strings.HasSuffix(p, ".yaml") || strings.HasSuffix(p, ".yml") {
			paths = append(paths, p)
		}
	}

	return paths, nil
}

// splitRepo resolves "owner/name", falling back to the configured
// organization when only a name is given.
func splitRepo(repo, org string) (string, string, error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return parts[0], parts[1], nil
	}
	if org != "" && repo != "" && !strings.Contains(repo, "/") {
		return org, repo, nil
	}
	return "", "", fmt.Errorf("invalid repository %q, want owner/name", repo)
}
