package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached catalog page.
type Key struct {
	// Endpoint is the catalog endpoint path (e.g. "games").
	Endpoint string

	// Params are the query parameters of the request. Credentials must not
	// be part of the key; the client strips the API key before building it.
	Params url.Values
}

// String generates a deterministic cache key string.
// Format: catalog:endpoint:param1=val1:param2=val2
func (k Key) String() string {
	parts := []string{"catalog"}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			for _, val := range k.Params[key] {
				parts = append(parts, fmt.Sprintf("%s=%s", key, val))
			}
		}
	}

	return strings.Join(parts, ":")
}
