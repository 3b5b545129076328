// Package cache defines the tiered response cache key scheme shared by its
// backends. Keys are derived from the normalized request so that parameter
// order can never cause a miss, and are prefixed with the endpoint path so
// whole endpoints can be invalidated at once.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const keyPrefix = "resp:"

// Key returns the deterministic cache key for one request: the endpoint
// prefix followed by a hash of method + path + sorted query parameters.
func Key(method, path string, params url.Values) string {
	h := sha256.Sum256([]byte(method + "\n" + path + "\n" + Canonical(params)))
	return EndpointPrefix(path) + hex.EncodeToString(h[:16])
}

// EndpointPrefix returns the invalidation prefix covering every cached
// response for the given endpoint path.
func EndpointPrefix(path string) string {
	return keyPrefix + path + ":"
}

// Canonical renders query parameters in a stable order: keys sorted, values
// sorted within a key, url-encoded.
func Canonical(params url.Values) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		vals := append([]string(nil), params[k]...)
		sort.Strings(vals)
		for j, v := range vals {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
