// Package gitlab provides a GitLab connector for fetching threat model
// definitions stored in repositories.
package gitlab

import (
	"context"
	"fmt"
	"strings"
	"time"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/threatcanvas/sdk/pkg/connectors"
)

const (
	// DefaultBaseURL is the gitlab.com API endpoint.
	DefaultBaseURL = "https://gitlab.com"

	// DefaultRateLimit matches gitlab.com's authenticated API limit.
	DefaultRateLimit = 2000
)

// Connector fetches threat model definition files from GitLab.
type Connector struct {
	*connectors.BaseConnector
	api *gl.Client
}

var (
	_ connectors.Connector         = (*Connector)(nil)
	_ connectors.DefinitionFetcher = (*Connector)(nil)
)

// Config holds GitLab connector configuration.
type Config struct {
	// Token is a GitLab personal or project access token.
	Token string `yaml:"token" json:"token"`

	// BaseURL for self-managed instances (default: https://gitlab.com).
	BaseURL string `yaml:"base_url" json:"base_url"`

	// RateLimit in requests per hour (default: 2000).
	RateLimit int `yaml:"rate_limit" json:"rate_limit"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose" json:"verbose"`
}

// NewConnector creates a new GitLab connector.
func NewConnector(cfg *Config) (*Connector, error) {
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
		Name:    "gitlab",
		Type:    "scm",
		BaseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		Config: &connectors.ConnectorConfig{
			Token:     cfg.Token,
			RateLimit: cfg.RateLimit,
			Burst:     50,
		},
		Verbose: cfg.Verbose,
	})

	api, err := gl.NewClient(cfg.Token, gl.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("gitlab client: %w", err)
	}

	return &Connector{
		BaseConnector: base,
		api:           api,
	}, nil
}

// Connect establishes and verifies the GitLab connection.
func (c *Connector) Connect(ctx context.Context) error {
	if err := c.BaseConnector.Connect(ctx); err != nil {
		return err
	}
	return c.TestConnection(ctx)
}

// TestConnection verifies the GitLab API is reachable with the token.
func (c *Connector) TestConnection(ctx context.Context) error {
	if err := c.WaitForRateLimit(ctx); err != nil {
		return err
	}

	user, _, err := c.api.Users.CurrentUser(gl.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("gitlab connection test: %w", err)
	}

	if c.Verbose() {
		fmt.Printf("[gitlab] Authenticated as: %s\n", user.Username)
	}

	return nil
}

// FetchDefinition downloads a definition file from a project.
// repo is the project path with namespace, e.g. "group/project".
func (c *Connector) FetchDefinition(ctx context.Context, repo, path, ref string) (_ []byte, err error) {
	start := time.Now()
	defer func() { connectors.ObserveFetch(ctx, c.Type(), start, err) }()

	if repo == "" {
		return nil, fmt.Errorf("project path is empty")
	}

	if err := c.WaitForRateLimit(ctx); err != nil {
		return nil, err
	}

	opts := &gl.GetRawFileOptions{}
	if ref != "" {
		opts.Ref = gl.Ptr(ref)
	}

	data, _, err := c.api.RepositoryFiles.GetRawFile(repo, path, opts, gl.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("gitlab fetch %s:%s: %w", repo, path, err)
	}

	if c.Verbose() {
		fmt.Printf("[gitlab] Fetched %s from %s (%d bytes)\n", path, repo, len(data))
	}

	return data, nil
}
