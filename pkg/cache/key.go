package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key written by this package.
const KeyPrefix = "coinapi"

// Key identifies a cached API response.
type Key struct {
	// Endpoint is the request path (e.g., "/v2/coins")
	Endpoint string

	// QueryParams are the request query parameters (e.g., {"limit": "20"})
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: coinapi:endpoint:query1=val1:query2=val2
//
// Example:
//
//	coinapi:v2/coins:limit=20:offset=40
func (k Key) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			values := append([]string(nil), k.QueryParams[key]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
		}
	}

	return strings.Join(parts, ":")
}

// KeyFromURL builds the cache key of a request URL.
func KeyFromURL(u *url.URL) Key {
	return Key{
		Endpoint:    u.Path,
		QueryParams: u.Query(),
	}
}
