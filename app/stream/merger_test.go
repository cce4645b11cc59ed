package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeEndOfStream(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		pageSize int
		expected bool
	}{
		{"empty page", 0, 20, true},
		{"short page", 12, 20, true},
		{"full page", 20, 20, false},
		{"oversized page", 25, 20, false},
		{"default page size", 19, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := Page{Items: makeItems("p", tt.size)}
			items, end := Merge(nil, page, NewOverlay(), tt.pageSize)
			assert.Len(t, items, tt.size)
			assert.Equal(t, tt.expected, end)
		})
	}
}

func TestMergeIgnoresExistingIDs(t *testing.T) {
	existing := map[ItemID]int{"p-0": 0, "p-2": 1}
	page := Page{Items: makeItems("p", 4)}

	items, _ := Merge(existing, page, nil, 20)

	assert.Equal(t, []ItemID{"p-1", "p-3"}, ids(items))
}

func TestMergeDropsDuplicatesWithinPage(t *testing.T) {
	page := Page{Items: append(makeItems("p", 3), makeItems("p", 2)...)}

	items, end := Merge(nil, page, nil, 5)

	assert.Equal(t, []ItemID{"p-0", "p-1", "p-2"}, ids(items))
	assert.False(t, end, "end of stream is decided on the raw page size")
}

func TestMergeDropsItemsWithoutID(t *testing.T) {
	page := Page{Items: makeItems("p", 5)}
	page.Items[2].ID = ""

	items, end := Merge(nil, page, nil, 5)

	assert.Equal(t, []ItemID{"p-0", "p-1", "p-3", "p-4"}, ids(items))
	assert.False(t, end, "a full page keeps the stream open")
}

func TestMergeAppliesOverlay(t *testing.T) {
	overlay := NewOverlay()
	overlay.LoadInitial([]ItemID{"p-1"})

	page := Page{Items: makeItems("p", 3)}
	page.Items[2].Saved = true // stale flag from the backend

	items, _ := Merge(nil, page, overlay, 20)

	assert.False(t, items[0].Saved)
	assert.True(t, items[1].Saved)
	assert.False(t, items[2].Saved)
}

func ids(items []Item) []ItemID {
	out := make([]ItemID, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
