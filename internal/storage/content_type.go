package storage

import "strings"

func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".wacz"):
		return "application/wacz"
	case strings.HasSuffix(key, ".warc.gz"), strings.HasSuffix(key, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(key, ".warc"):
		return "application/warc"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".cdxj"):
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
