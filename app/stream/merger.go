package stream

// Merge annotates a fetched page with the overlay and returns only the items
// whose id is not already materialized in existing. Duplicates are dropped,
// not updated: later pages never overwrite entries the stream already shows.
// Items without an id are dropped too, but still count towards the page size
// when deciding the end of the stream.
func Merge(existing map[ItemID]int, page Page, overlay *Overlay, pageSize int) ([]Item, bool) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	endOfStream := len(page.Items) == 0 || len(page.Items) < pageSize

	seen := make(map[ItemID]struct{}, len(page.Items))
	items := make([]Item, 0, len(page.Items))
	for _, item := range page.Items {
		if item.ID == "" {
			continue
		}
		if _, ok := existing[item.ID]; ok {
			continue
		}
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}

		item.Saved = overlay != nil && overlay.Contains(item.ID)
		items = append(items, item)
	}

	return items, endOfStream
}
