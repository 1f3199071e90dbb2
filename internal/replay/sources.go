package replay

import (
	"context"
	"sort"
	"strings"
	"time"

	archiveconfig "github.com/jonesrussell/north-cloud/webarchive/internal/config/archive"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
)

// PickSource chooses among candidate containers by modification time.
// "before" picks the newest at or before target, "after" the oldest at
// or after it.
func PickSource(files []storage.ObjectInfo, strategy string, target time.Time) (string, bool) {
	sorted := make([]storage.ObjectInfo, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastModified.Before(sorted[j].LastModified)
	})

	switch strategy {
	case archiveconfig.StrategyBefore:
		for i := len(sorted) - 1; i >= 0; i-- {
			if !sorted[i].LastModified.After(target) {
				return sorted[i].Location.String(), true
			}
		}
	case archiveconfig.StrategyAfter:
		for _, f := range sorted {
			if !f.LastModified.Before(target) {
				return f.Location.String(), true
			}
		}
	}
	return "", false
}

// ResolveSources returns the containers to replay from. Explicit source
// URIs win; otherwise containers under the export template are listed and
// one is picked with the configured lookup strategy relative to the
// lookup target, or now when no target is set.
func ResolveSources(ctx context.Context, resolver *storage.Resolver, cfg *archiveconfig.Config, now time.Time, log logger.Logger) ([]string, error) {
	const op = "resolve sources"
	if log == nil {
		log = logger.NewNop()
	}

	if sources := cfg.Sources(); len(sources) > 0 {
		return sources, nil
	}
	if cfg.ExportURI == "" {
		return nil, apperrors.New(apperrors.ErrConfiguration, op, "neither source_uri nor export_uri is set")
	}

	tmpl := strings.TrimPrefix(cfg.ExportURI, "file://")
	tmpl = strings.ReplaceAll(tmpl, "{collection}", cfg.Collection)
	prefix := storage.TemplatePrefix(tmpl)
	if prefix == tmpl && !strings.HasSuffix(tmpl, "/") {
		return []string{tmpl}, nil
	}

	pattern, err := storage.TemplatePattern(tmpl)
	if err != nil {
		return nil, err
	}
	target, err := cfg.Target()
	if err != nil {
		return nil, err
	}
	if target.IsZero() {
		target = now
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	infos, err := resolver.List(ctx, prefix)
	if err != nil {
		return nil, apperrors.WrapWithContextf(err, "list %s", prefix)
	}

	var matching []storage.ObjectInfo
	for _, info := range infos {
		if pattern.MatchString(info.Location.String()) {
			matching = append(matching, info)
		}
	}

	uri, ok := PickSource(matching, cfg.LookupStrategy, target)
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotFound, op,
			"no container under %s %s %s", prefix, cfg.LookupStrategy, target.Format(time.RFC3339))
	}

	log.Info("Resolved replay source",
		logger.URI(uri),
		logger.String("strategy", cfg.LookupStrategy),
		logger.Time("target", target),
		logger.Int("candidates", len(matching)))
	return []string{uri}, nil
}
