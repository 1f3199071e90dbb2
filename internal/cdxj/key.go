// Package cdxj builds canonical lookup keys and reads and writes CDXJ
// index lines.
package cdxj

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/url"
	"sort"
	"strings"

	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
)

// Query parameters that carry the method and body of non-GET requests.
const (
	methodParam = "__wb_method"
	bodyParam   = "__wb_post_data"

	bodyDigestLen = 16
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Key is the canonical form of a request.
type Key struct {
	// Method is upper case.
	Method string
	// SURT is the full index key: reversed host, path and sorted query,
	// plus method and body markers for non-GET requests.
	SURT string
	// Path is SURT without the query.
	Path string
}

// IsGETClass reports whether method is looked up by URL alone.
func IsGETClass(method string) bool {
	switch strings.ToUpper(method) {
	case "", "GET", "HEAD":
		return true
	default:
		return false
	}
}

// Canonicalize returns the lookup key for a request. Scheme and host are
// case-folded, default ports dropped, query parameters sorted by name and
// a trailing slash removed from non-root paths. Non-GET requests add the
// method and a digest of the body to the query.
func Canonicalize(method, rawURL string, body []byte) (Key, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Key{}, apperrors.Wrap(apperrors.ErrCodec, "canonicalize", err)
	}
	if u.Host == "" {
		return Key{}, apperrors.New(apperrors.ErrCodec, "canonicalize", "not an absolute URL: %q", rawURL)
	}

	method = strings.ToUpper(method)
	if method == "" {
		method = "GET"
	}

	path := surtHost(u) + ")" + canonicalPath(u)

	params := splitQuery(u.RawQuery)
	if !IsGETClass(method) {
		params = append(params, methodParam+"="+strings.ToLower(method))
		if len(body) > 0 {
			sum := sha256.Sum256(body)
			params = append(params, bodyParam+"="+hex.EncodeToString(sum[:])[:bodyDigestLen])
		}
	}
	sortParams(params)

	surt := path
	if len(params) > 0 {
		surt += "?" + strings.Join(params, "&")
	}
	return Key{Method: method, SURT: surt, Path: path}, nil
}

// KeyOf rebuilds the key of a stored entry.
func KeyOf(e *Entry) Key {
	path, _, _ := strings.Cut(e.SURT, "?")
	method := strings.ToUpper(e.Method)
	if method == "" {
		method = "GET"
	}
	return Key{Method: method, SURT: e.SURT, Path: path}
}

func surtHost(u *url.URL) string {
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	var out string
	if net.ParseIP(host) != nil {
		out = host
	} else {
		labels := strings.Split(host, ".")
		for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
			labels[i], labels[j] = labels[j], labels[i]
		}
		out = strings.Join(labels, ",")
	}
	if port := u.Port(); port != "" && port != defaultPorts[strings.ToLower(u.Scheme)] {
		out += ":" + port
	}
	return out
}

func canonicalPath(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}

func splitQuery(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, "&") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// sortParams orders by parameter name; repeated names keep their order.
func sortParams(params []string) {
	sort.SliceStable(params, func(i, j int) bool {
		ni, _, _ := strings.Cut(params[i], "=")
		nj, _, _ := strings.Cut(params[j], "=")
		return ni < nj
	})
}
