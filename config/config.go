/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads the environment driven configuration shared by the
// task phases and constructs the GitHub client used by the privileged ones.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"chainguard.dev/feedstocktasks/actionsrun"
	"github.com/google/go-github/v75/github"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/oauth2"
)

// TokenEnv is the environment variable carrying the write scoped token.
const TokenEnv = "GH_TOKEN"

const defaultAPIURL = "https://api.github.com"

// Config is the process configuration. None of its fields are secret; the
// token is only ever read through EnvTokenSource.
type Config struct {
	Org       string `env:"FEEDSTOCK_ORG,default=conda-forge"`
	ServerURL string `env:"GITHUB_SERVER_URL,default=https://github.com"`
	APIURL    string `env:"GITHUB_API_URL,default=https://api.github.com"`

	// Identify the workflow run that comments link back to.
	RunID         string `env:"GITHUB_RUN_ID"`
	RunRepository string `env:"GITHUB_REPOSITORY,default=conda-forge/conda-forge-webservices"`

	BotLogin      string `env:"BOT_LOGIN,default=conda-forge-admin"`
	BotEmail      string `env:"BOT_EMAIL"`
	RerenderTitle string `env:"RERENDER_PR_TITLE,default=MNT: rerender"`
	StatusContext string `env:"LINT_STATUS_CONTEXT,default=conda-forge-linter"`

	ContainerName string `env:"CF_FEEDSTOCK_OPS_CONTAINER_NAME"`
	ContainerTag  string `env:"CF_FEEDSTOCK_OPS_CONTAINER_TAG,default=latest"`

	RerenderCommand       string `env:"RERENDER_COMMAND,default=conda-smithy rerender --no-check-uptodate"`
	RerenderCommitMessage string `env:"RERENDER_COMMIT_MESSAGE,default=MNT: Re-rendered"`
	LintCommand           string `env:"LINT_COMMAND,default=conda-smithy recipe-lint --conda-forge --output-format=yaml recipe"`

	// RequireHeadMatch aborts finalize when the pull request head moved
	// after the run phase executed.
	RequireHeadMatch bool `env:"REQUIRE_HEAD_MATCH,default=false"`

	PushgatewayURL string `env:"PUSHGATEWAY_URL"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`
}

// Load processes the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith processes the configuration from the provided lookuper.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}
	if cfg.BotEmail == "" {
		cfg.BotEmail = cfg.BotLogin + "@users.noreply.github.com"
	}
	return &cfg, nil
}

// RunLink is the URL of the workflow run executing this process.
func (c *Config) RunLink() string {
	return actionsrun.Link(c.ServerURL, c.RunRepository, c.RunID)
}

// Image is the tool container image reference, or "" when none is set.
func (c *Config) Image() string {
	if c.ContainerName == "" {
		return ""
	}
	return c.ContainerName + ":" + c.ContainerTag
}

// Level parses LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// GitHubClient constructs a REST client authenticated by ts.
func (c *Config) GitHubClient(ctx context.Context, ts oauth2.TokenSource) (*github.Client, error) {
	gh := github.NewClient(HTTPClient(ctx, ts))
	if c.APIURL == "" || strings.TrimSuffix(c.APIURL, "/") == defaultAPIURL {
		return gh, nil
	}
	gh, err := gh.WithEnterpriseURLs(c.APIURL, c.APIURL)
	if err != nil {
		return nil, fmt.Errorf("configuring GitHub API URL: %w", err)
	}
	return gh, nil
}

// ErrNoToken is returned by EnvTokenSource when the variable is unset.
var ErrNoToken = errors.New("no GitHub token in environment")

// EnvTokenSource returns a token source that reads the named environment
// variable each time a token is requested, so the secret only lives in
// memory for the duration of a single request or push.
func EnvTokenSource(name string) oauth2.TokenSource {
	return envTokenSource(name)
}

type envTokenSource string

func (e envTokenSource) Token() (*oauth2.Token, error) {
	v := strings.TrimSpace(os.Getenv(string(e)))
	if v == "" {
		return nil, fmt.Errorf("%s: %w", string(e), ErrNoToken)
	}
	return &oauth2.Token{AccessToken: v, TokenType: "Bearer"}, nil
}

// HTTPClient returns an HTTP client authenticated by ts. Unlike
// oauth2.NewClient it asks ts for a token on every request.
func HTTPClient(ctx context.Context, ts oauth2.TokenSource) *http.Client {
	cc := oauth2.NewClient(ctx, nil)
	return &http.Client{
		Transport: &oauth2.Transport{
			Base:   cc.Transport,
			Source: ts,
		},
		CheckRedirect: cc.CheckRedirect,
		Jar:           cc.Jar,
		Timeout:       cc.Timeout,
	}
}
