// Package alias normalizes and hashes user aliases, keeps the authoritative
// alias rows behind Store, and caches lookups behind Cache.
package alias

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"unicode/utf8"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MaxLength bounds a normalized alias, in runes.
const MaxLength = 64

var folder = cases.Fold()

// Normalize folds case and applies NFKC so that visually equal aliases
// collide.
func Normalize(raw string) (string, error) {
	s := norm.NFKC.String(strings.TrimSpace(raw))
	s = folder.String(s)
	s = norm.NFKC.String(s)
	if s == "" {
		return "", apperrors.Validation("aliases", "alias must not be empty")
	}
	if utf8.RuneCountInString(s) > MaxLength {
		return "", apperrors.Validation("aliases", "alias is too long")
	}
	if strings.ContainsFunc(s, isControl) {
		return "", apperrors.Validation("aliases", "alias contains control characters")
	}
	return s, nil
}

// Hash returns the keyed hash stored for a normalized alias.
func Hash(secret []byte, normalized string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(normalized))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// HashAll normalizes and hashes aliases, rejecting duplicates after
// normalization.
func HashAll(secret []byte, aliases []string) ([]string, error) {
	seen := make(map[string]struct{}, len(aliases))
	hashes := make([]string, 0, len(aliases))
	for _, raw := range aliases {
		normalized, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[normalized]; ok {
			return nil, apperrors.Validation("aliases", "aliases must be distinct")
		}
		seen[normalized] = struct{}{}
		hashes = append(hashes, Hash(secret, normalized))
	}
	return hashes, nil
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}
