// Package wacz writes captured transactions into WARC records packaged as
// WACZ containers, and reads containers back into a lookup index.
package wacz

import (
	"strings"
	"time"

	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
)

// Container layout.
const (
	WACZVersion      = "1.1.1"
	ProfileName      = "data-package"
	ManifestPath     = "datapackage.json"
	DigestPath       = "datapackage-digest.json"
	ArchiveDir       = "archive/"
	IndexDir         = "indexes/"
	DefaultIndexPath = IndexDir + "index.cdxj"
	DefaultSoftware  = "north-cloud-webarchive/1.0"
	DefaultName      = "webarchive"
	manifestDateFmt  = "2006-01-02T15:04:05Z"
)

// indexCandidates are tried when the manifest lists no index resource.
var indexCandidates = []string{
	IndexDir + "index.cdxj",
	IndexDir + "index.cdxj.gz",
	IndexDir + "index.cdx",
	IndexDir + "index.cdx.gz",
}

// Resource describes one container member.
type Resource struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Hash  string `json:"hash"`
	Bytes int64  `json:"bytes"`
	// URI is where a staged member lives before packaging.
	URI string `json:"-"`
}

// Manifest is the container's datapackage.json.
type Manifest struct {
	Profile      string     `json:"profile"`
	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description,omitempty"`
	Created      string     `json:"created"`
	Modified     string     `json:"modified,omitempty"`
	WACZVersion  string     `json:"wacz_version"`
	Software     string     `json:"software"`
	MainPageURL  string     `json:"mainPageUrl,omitempty"`
	MainPageDate string     `json:"mainPageDate,omitempty"`
	Resources    []Resource `json:"resources"`
}

// manifestDigest is datapackage-digest.json.
type manifestDigest struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

func formatManifestDate(t time.Time) string {
	return t.UTC().Format(manifestDateFmt)
}

// staged returns the URIs of resources stored under dir.
func (m *Manifest) staged(dir string) []string {
	var out []string
	for _, r := range m.Resources {
		if strings.HasPrefix(r.Path, dir) && r.URI != "" {
			out = append(out, r.URI)
		}
	}
	return out
}

// RecordsURIs returns where the staged records files live.
func (m *Manifest) RecordsURIs() []string { return m.staged(ArchiveDir) }

// IndexURIs returns where the staged index files live.
func (m *Manifest) IndexURIs() []string { return m.staged(IndexDir) }

// checkVersion accepts any 1.x container.
func (m *Manifest) checkVersion() error {
	if m.WACZVersion == "" || !strings.HasPrefix(m.WACZVersion, "1.") {
		return apperrors.New(apperrors.ErrFormat, "open", "unsupported wacz_version %q", m.WACZVersion)
	}
	return nil
}

// indexPaths lists index members named by the manifest, falling back to
// the well-known locations.
func (m *Manifest) indexPaths(has func(string) bool) []string {
	var out []string
	for _, r := range m.Resources {
		if isIndexPath(r.Path) && has(r.Path) {
			out = append(out, r.Path)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, p := range indexCandidates {
		if has(p) {
			out = append(out, p)
		}
	}
	return out
}

func isIndexPath(p string) bool {
	if !strings.HasPrefix(p, IndexDir) {
		return false
	}
	for _, suffix := range []string{".cdxj", ".cdxj.gz", ".cdx", ".cdx.gz"} {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}
