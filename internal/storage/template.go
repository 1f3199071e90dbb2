package storage

import (
	"regexp"
	"strings"
	"time"

	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
)

// TimestampLayout is the 14-digit capture timestamp used in names and indexes.
const TimestampLayout = "20060102150405"

var placeholderPattern = regexp.MustCompile(`\{[^{}]*\}`)

// TemplateVars supplies placeholder values for destination URIs.
type TemplateVars struct {
	Time       time.Time
	Collection string
}

func (v TemplateVars) values() map[string]string {
	t := v.Time.UTC()
	return map[string]string{
		"year":       t.Format("2006"),
		"month":      t.Format("01"),
		"day":        t.Format("02"),
		"timestamp":  t.Format(TimestampLayout),
		"collection": v.Collection,
	}
}

// ExpandTemplate fills {year} {month} {day} {timestamp} {collection} in
// tmpl. Any placeholder left unresolved is a configuration error.
func ExpandTemplate(tmpl string, vars TemplateVars) (string, error) {
	values := vars.values()
	var unresolved []string
	out := placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := values[name]; ok && v != "" {
			return v
		}
		unresolved = append(unresolved, m)
		return m
	})
	if len(unresolved) > 0 {
		return "", apperrors.New(apperrors.ErrConfiguration, "expand template",
			"unresolved placeholders %s in %q", strings.Join(unresolved, ", "), tmpl)
	}
	return out, nil
}

// TemplatePrefix returns the part of tmpl before its first placeholder,
// cut back to the last path separator. It is the listing root for
// archives produced from tmpl.
func TemplatePrefix(tmpl string) string {
	i := strings.Index(tmpl, "{")
	if i < 0 {
		return tmpl
	}
	head := tmpl[:i]
	if j := strings.LastIndex(head, "/"); j >= 0 {
		return head[:j+1]
	}
	return head
}

var templatePatterns = map[string]string{
	"year":       `(?P<year>\d{4})`,
	"month":      `(?P<month>\d{2})`,
	"day":        `(?P<day>\d{2})`,
	"timestamp":  `(?P<timestamp>\d{14})`,
	"collection": `(?P<collection>[^/]+)`,
}

// TemplatePattern compiles tmpl into a regexp matching URIs it could have
// produced. A template naming a directory also matches any file below it.
func TemplatePattern(tmpl string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	seen := make(map[string]bool)
	last := 0
	for _, loc := range placeholderPattern.FindAllStringIndex(tmpl, -1) {
		b.WriteString(regexp.QuoteMeta(tmpl[last:loc[0]]))
		name := tmpl[loc[0]+1 : loc[1]-1]
		pattern, ok := templatePatterns[name]
		if !ok {
			return nil, apperrors.New(apperrors.ErrConfiguration, "template pattern", "unknown placeholder {%s}", name)
		}
		if seen[name] {
			pattern = `[^/]+`
		}
		seen[name] = true
		b.WriteString(pattern)
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(tmpl[last:]))
	if strings.HasSuffix(tmpl, "/") {
		b.WriteString(`[^/]+`)
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
