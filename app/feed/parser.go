package feed

import (
	"bytes"
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/lysyi3m/clubfeed/app/stream"
	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses an RSS, Atom or JSON feed into stream items in document order.
// owner is used when an entry carries no author.
func (p *Parser) Run(data []byte, owner string) ([]stream.Item, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]stream.Item, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		items = append(items, p.normalizeItem(item, owner))
	}

	return items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item, owner string) stream.Item {
	normalized := stream.Item{
		ID:      stream.ItemID(cmp.Or(item.GUID, item.Link, p.generateContentHash(item))),
		OwnerID: cmp.Or(p.extractAuthor(item), owner),
	}

	if item.PublishedParsed != nil {
		normalized.CreatedAt = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		normalized.CreatedAt = item.UpdatedParsed.UTC()
	}

	return normalized
}

func (p *Parser) generateContentHash(item *gofeed.Item) string {
	content := fmt.Sprintf("%s|%s",
		item.Title,
		item.Description)

	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

func (p *Parser) extractAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return p.formatAuthor(item.Authors[0].Name, item.Authors[0].Email)
	}
	if item.Author != nil {
		return p.formatAuthor(item.Author.Name, item.Author.Email)
	}
	return ""
}

func (p *Parser) formatAuthor(name, email string) string {
	return cmp.Or(strings.TrimSpace(name), strings.TrimSpace(email))
}
