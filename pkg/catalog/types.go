package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SearchPage is one decoded search-results response. Results keeps the
// verbatim result items so snapshots stay exact copies of what the
// catalog returned.
type SearchPage struct {
	// TotalItems is -1 when the count field is absent or malformed
	TotalItems int
	Results    []json.RawMessage
	IDs        []int64
}

type searchPayload struct {
	TotalItems json.RawMessage   `json:"totalItems"`
	Results    []json.RawMessage `json:"results"`
}

type resultItem struct {
	ID int64 `json:"id"`
}

type detailPayload struct {
	Classified json.RawMessage `json:"classified"`
}

// parseSearchPage decodes a search response. Result items without a
// numeric id are kept in Results (they still belong in the snapshot)
// but contribute no id.
func parseSearchPage(data []byte) (SearchPage, error) {
	var payload searchPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return SearchPage{}, fmt.Errorf("failed to decode search page: %w", err)
	}

	page := SearchPage{
		TotalItems: parseTotalItems(payload.TotalItems),
		Results:    payload.Results,
		IDs:        make([]int64, 0, len(payload.Results)),
	}
	for _, raw := range payload.Results {
		var item resultItem
		if err := json.Unmarshal(raw, &item); err != nil || item.ID <= 0 {
			continue
		}
		page.IDs = append(page.IDs, item.ID)
	}
	return page, nil
}

func parseTotalItems(raw json.RawMessage) int {
	if len(raw) == 0 || string(raw) == "null" {
		return -1
	}

	var asInt int
	if err := json.Unmarshal(raw, &asInt); err == nil && asInt >= 0 {
		return asInt
	}

	// Some responses carry the count as a quoted number
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		var n int
		if _, err := fmt.Sscanf(asString, "%d", &n); err == nil && n >= 0 {
			return n
		}
	}
	return -1
}

// parseListingDetail extracts the classified member of a detail
// response, falling back to the whole object when it is missing
func parseListingDetail(data []byte) (json.RawMessage, error) {
	var payload detailPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode listing detail: %w", err)
	}

	if len(payload.Classified) > 0 && !bytes.Equal(payload.Classified, []byte("null")) {
		return payload.Classified, nil
	}
	return json.RawMessage(data), nil
}
