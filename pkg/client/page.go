package client

import "encoding/json"

// Page is one response unit from a paginated catalog endpoint.
type Page struct {
	// Count is the total number of results across all pages.
	Count int `json:"count"`

	// Next is the URL of the next page, empty when the listing is exhausted.
	Next string `json:"next"`

	// Previous is the URL of the previous page, empty on the first page.
	Previous string `json:"previous"`

	// Results holds the raw records of this page. Records are kept as raw
	// JSON so the ingestor controls decoding and serialization.
	Results []json.RawMessage `json:"results"`
}

// HasNext reports whether the API advertised another page.
func (p *Page) HasNext() bool {
	return p.Next != ""
}
