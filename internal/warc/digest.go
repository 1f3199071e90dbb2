package warc

import (
	"crypto/sha1" //nolint:gosec // WARC digests are sha1 by convention
	"encoding/base32"
	"strings"
)

const digestAlgorithm = "sha1"

// Digest returns the WARC digest of b, "sha1:<base32>".
func Digest(b []byte) string {
	sum := sha1.Sum(b) //nolint:gosec // see import
	return digestAlgorithm + ":" + base32.StdEncoding.EncodeToString(sum[:])
}

// verifyDigest reports whether want matches b. Algorithms other than sha1
// cannot be checked and are reported as matching.
func verifyDigest(want string, b []byte) bool {
	algo, _, ok := strings.Cut(want, ":")
	if !ok || !strings.EqualFold(algo, digestAlgorithm) {
		return true
	}
	return strings.EqualFold(want, Digest(b))
}
