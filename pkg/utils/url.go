package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// HashURL creates a SHA256 hash of a URL string.
// Used for lock striping and as a compact Redis member.
func HashURL(rawURL string) string {
	h := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(h[:])
}

// ResolveURL converts ref to an absolute URL against base. Protocol-relative
// refs ("//cdn.example/x.jpg") are given the base's scheme.
func ResolveURL(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if base == "" {
		return refURL.String(), nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
