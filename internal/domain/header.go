// Package domain provides the models shared by capture and replay.
package domain

import (
	"net/http"
	"net/textproto"
	"sort"
	"strings"
)

// HeaderField is a single header line. Name keeps its original casing.
type HeaderField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Header is an ordered, multi-valued header list. Lookups are case-insensitive.
type Header []HeaderField

// Get returns the first value for name, or "".
func (h Header) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name in order.
func (h Header) Values(name string) []string {
	var out []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Add appends a field.
func (h *Header) Add(name, value string) {
	*h = append(*h, HeaderField{Name: name, Value: value})
}

// Set replaces every field named name with a single field at the position
// of the first occurrence, or appends it.
func (h *Header) Set(name, value string) {
	out := (*h)[:0]
	set := false
	for _, f := range *h {
		if strings.EqualFold(f.Name, name) {
			if !set {
				out = append(out, HeaderField{Name: f.Name, Value: value})
				set = true
			}
			continue
		}
		out = append(out, f)
	}
	if !set {
		out = append(out, HeaderField{Name: name, Value: value})
	}
	*h = out
}

// Del removes every field named name.
func (h *Header) Del(name string) {
	out := (*h)[:0]
	for _, f := range *h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	*h = out
}

// Clone returns a copy of h.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	copy(out, h)
	return out
}

// HTTP converts h to a net/http header map.
func (h Header) HTTP() http.Header {
	out := make(http.Header, len(h))
	for _, f := range h {
		out.Add(f.Name, f.Value)
	}
	return out
}

// FromHTTP converts a net/http header map. Map iteration order is not
// stable, so names are sorted; values keep their order.
func FromHTTP(src http.Header) Header {
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(Header, 0, len(src))
	for _, name := range names {
		canonical := textproto.CanonicalMIMEHeaderKey(name)
		for _, v := range src[name] {
			out = append(out, HeaderField{Name: canonical, Value: v})
		}
	}
	return out
}
