package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lysyi3m/clubfeed/app/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rssWithItems(n int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "<item><title>item %d</title><guid>g-%d</guid></item>", i, i)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func TestRSSSourcePages(t *testing.T) {
	var requestedPath, userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		userAgent = r.Header.Get("User-Agent")
		fmt.Fprint(w, rssWithItems(5))
	}))
	defer server.Close()

	config := &Config{
		Name:     "news",
		Source:   SourceRSS,
		URL:      server.URL + "/clubs/{owner}/rss",
		Settings: ConfigSettings{PageSize: 2, FirstPage: 1, Timeout: 5},
	}
	source := NewRSSSource(config, server.Client(), NewParser(), "clubfeed-test")
	key := stream.Key{Kind: "news", Owner: "42"}

	tests := []struct {
		pageIndex int
		ids       []stream.ItemID
		hasMore   bool
	}{
		{1, []stream.ItemID{"g-0", "g-1"}, true},
		{2, []stream.ItemID{"g-2", "g-3"}, true},
		{3, []stream.ItemID{"g-4"}, false},
		{4, nil, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d", tt.pageIndex), func(t *testing.T) {
			page, err := source.FetchPage(context.Background(), key, tt.pageIndex)
			require.NoError(t, err)

			var ids []stream.ItemID
			for _, item := range page.Items {
				ids = append(ids, item.ID)
			}
			assert.Equal(t, tt.ids, ids)
			assert.Equal(t, tt.hasMore, page.HasMore)
			assert.Equal(t, tt.pageIndex, page.Index)
		})
	}

	assert.Equal(t, "/clubs/42/rss", requestedPath)
	assert.Equal(t, "clubfeed-test", userAgent)
}

func TestRSSSourceHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	config := &Config{Source: SourceRSS, URL: server.URL, Settings: ConfigSettings{PageSize: 20, Timeout: 5}}
	source := NewRSSSource(config, server.Client(), NewParser(), "test")

	_, err := source.FetchPage(context.Background(), stream.Key{Kind: "news", Owner: "1"}, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, stream.ErrRemoteUnavailable))
}

func TestRSSSourceMalformedFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a feed")
	}))
	defer server.Close()

	config := &Config{Source: SourceRSS, URL: server.URL, Settings: ConfigSettings{PageSize: 20, Timeout: 5}}
	source := NewRSSSource(config, server.Client(), NewParser(), "test")

	_, err := source.FetchPage(context.Background(), stream.Key{Kind: "news", Owner: "1"}, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, stream.ErrMalformedResponse))
	assert.False(t, errors.Is(err, stream.ErrRemoteUnavailable))
}
