// Package youtrack queries the YouTrack REST API for issues.
package youtrack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"youtrack_notification_bot/internal/domain/issue"

	"github.com/sirupsen/logrus"
)

// maxErrorBody bounds how much of a failed response ends up in the error.
const maxErrorBody = 512

// Config describes how to reach the tracker.
type Config struct {
	APIEndpoint   string // e.g. "https://yt.example.com/api"
	Authorization string
	MaxIssues     int
	IssueFields   string
	IDField       string
	Timeout       time.Duration
}

// Client implements issue.Source over the /issues endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *logrus.Entry
}

func NewClient(cfg Config, logger *logrus.Entry) *Client {
	cfg.APIEndpoint = strings.TrimRight(cfg.APIEndpoint, "/")
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// FetchIssues returns at most MaxIssues issues matching query, sorted by creation time.
func (c *Client) FetchIssues(ctx context.Context, query string, idsOnly bool) ([]issue.Issue, error) {
	issues, err := c.fetch(ctx, query, idsOnly)
	if err != nil {
		return nil, &issue.QueryError{Query: query, Err: err}
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Created < issues[j].Created })
	return issues, nil
}

func (c *Client) fetch(ctx context.Context, query string, idsOnly bool) ([]issue.Issue, error) {
	fields := c.cfg.IssueFields
	if idsOnly {
		fields = c.cfg.IDField
	}
	params := url.Values{}
	params.Set("$top", strconv.Itoa(c.cfg.MaxIssues))
	params.Set("fields", fields)
	if query != "" {
		params.Set("query", query)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIEndpoint+"/issues?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Authorization != "" {
		req.Header.Set("Authorization", c.cfg.Authorization)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"query":    query,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("YouTrack request completed")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var issues []issue.Issue
	if err := json.NewDecoder(resp.Body).Decode(&issues); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return issues, nil
}
