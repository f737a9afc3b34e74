// Package canon normalizes raw listing fields into their canonical forms.
package canon

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/user/imo-scraper/internal/entity"
)

type pathRewrite struct {
	from, to string
}

type urlRule struct {
	rewrites []pathRewrite
	// idParam is the query parameter carrying the listing id, if any.
	idParam string
}

var urlRules = map[entity.Source]urlRule{
	entity.SourceImoVirtual: {
		rewrites: []pathRewrite{{from: "/hpr/pt/", to: "/pt/"}},
	},
	entity.SourceIdealista: {
		rewrites: []pathRewrite{{from: "/en/imovel/", to: "/imovel/"}},
	},
	entity.SourceERA:      {idParam: "id"},
	entity.SourceCasaSapo: {idParam: "g3pid"},
}

// CanonicalURL returns the identity form of a listing URL: lower-case scheme
// and host, default port, fragment and tracking query removed, per-source path
// rewrites applied and no trailing slash. It is idempotent.
func CanonicalURL(src entity.Source, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) ||
		(u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	rule := urlRules[src]
	path := collapseSlashes(u.EscapedPath())
	for rewritten := true; rewritten; {
		rewritten = false
		for _, rw := range rule.rewrites {
			if strings.HasPrefix(path, rw.from) {
				path = collapseSlashes(rw.to + strings.TrimPrefix(path, rw.from))
				rewritten = true
			}
		}
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		path = "/"
	}
	if err := setEscapedPath(u, path); err != nil {
		return "", err
	}

	u.RawQuery = filterQuery(u.Query(), rule.idParam)
	u.ForceQuery = false
	return u.String(), nil
}

// ListingURL canonicalizes raw like CanonicalURL. For sources whose listing
// id travels in the query it fills that parameter from siteID when the link
// lacks it, and fails when neither carries an id.
func ListingURL(src entity.Source, raw, siteID string) (string, error) {
	canonical, err := CanonicalURL(src, raw)
	if err != nil {
		return "", err
	}
	param := urlRules[src].idParam
	if param == "" {
		return canonical, nil
	}
	u, err := url.Parse(canonical)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", canonical, err)
	}
	q := u.Query()
	if q.Get(param) != "" {
		return canonical, nil
	}
	if siteID = strings.TrimSpace(siteID); siteID == "" {
		return "", fmt.Errorf("url %q has no %s and no site id", raw, param)
	}
	q.Set(param, siteID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func collapseSlashes(path string) string {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	return path
}

func setEscapedPath(u *url.URL, escaped string) error {
	p, err := url.PathUnescape(escaped)
	if err != nil {
		return fmt.Errorf("unescape path %q: %w", escaped, err)
	}
	u.Path = p
	u.RawPath = ""
	if u.EscapedPath() != escaped {
		u.RawPath = escaped
	}
	return nil
}

func filterQuery(q url.Values, keep string) string {
	if keep == "" || len(q) == 0 {
		return ""
	}
	kept := url.Values{}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, keep) {
			kept[keep] = append(kept[keep], q[k]...)
		}
	}
	return kept.Encode()
}
