package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lysyi3m/clubfeed/app/stream"
)

// RSSSource serves a syndication feed as a paginated stream. The feed is
// fetched on every page request and sliced by page index.
type RSSSource struct {
	config     *Config
	httpClient *http.Client
	parser     *Parser
	userAgent  string
}

func NewRSSSource(config *Config, httpClient *http.Client, parser *Parser, userAgent string) *RSSSource {
	return &RSSSource{
		config:     config,
		httpClient: httpClient,
		parser:     parser,
		userAgent:  userAgent,
	}
}

func (s *RSSSource) FetchPage(ctx context.Context, key stream.Key, pageIndex int) (stream.Page, error) {
	feedURL := strings.ReplaceAll(s.config.URL, "{owner}", url.PathEscape(key.Owner))

	data, err := s.fetchFeed(ctx, feedURL)
	if err != nil {
		return stream.Page{}, &stream.TransportError{Op: "GET " + feedURL, Err: err}
	}

	items, err := s.parser.Run(data, key.Owner)
	if err != nil {
		return stream.Page{}, &stream.DecodeError{Op: "parse " + feedURL, Err: err}
	}

	pageSize := s.config.Settings.PageSize
	if pageSize <= 0 {
		pageSize = stream.DefaultPageSize
	}

	start := min((pageIndex-s.config.Settings.FirstPage)*pageSize, len(items))
	start = max(start, 0)
	end := min(start+pageSize, len(items))

	return stream.Page{
		Index:   pageIndex,
		Items:   items[start:end],
		HasMore: end < len(items),
	}, nil
}

func (s *RSSSource) fetchFeed(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(s.config.Settings.Timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
