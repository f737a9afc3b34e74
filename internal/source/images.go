package source

import (
	"bytes"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// imageStrategy pulls image URLs out of a parsed page. Strategies run in
// order and the first non-empty result wins.
type imageStrategy func(doc *goquery.Selection, body []byte) []string

func runImageStrategies(strategies []imageStrategy, doc *goquery.Selection, body []byte) []string {
	for _, s := range strategies {
		if urls := s(doc, body); len(urls) > 0 {
			return urls
		}
	}
	return nil
}

var lazyAttrs = []string{"data-src", "data-lazy", "data-original", "data-lazy-src", "src"}

// galleryDOM reads the image of every element matching sel, preferring
// lazy-load attributes over src.
func galleryDOM(sel string) imageStrategy {
	return func(doc *goquery.Selection, _ []byte) []string {
		var out []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			for _, attr := range lazyAttrs {
				if v, ok := s.Attr(attr); ok && usableImage(v) {
					out = append(out, strings.TrimSpace(v))
					return
				}
			}
		})
		return out
	}
}

// srcsetImages takes the widest candidate of each srcset under sel.
func srcsetImages(sel string) imageStrategy {
	return func(doc *goquery.Selection, _ []byte) []string {
		var out []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			for _, attr := range []string{"data-srcset", "srcset"} {
				if v, ok := s.Attr(attr); ok {
					if best := widestSrcset(v); best != "" {
						out = append(out, best)
						return
					}
				}
			}
		})
		return out
	}
}

func widestSrcset(srcset string) string {
	type cand struct {
		url   string
		width float64
	}
	var cands []cand
	for _, entry := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(entry))
		if len(fields) == 0 || !usableImage(fields[0]) {
			continue
		}
		c := cand{url: fields[0], width: 1}
		if len(fields) > 1 {
			d := fields[1]
			if n, err := strconv.ParseFloat(strings.TrimRight(d, "wxWX"), 64); err == nil {
				c.width = n
			}
		}
		cands = append(cands, c)
	}
	if len(cands) == 0 {
		return ""
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].width > cands[j].width })
	return cands[0].url
}

var bodyImageURL = regexp.MustCompile(`https?://[^\s"'<>()\\]+?\.(?:jpe?g|png|webp)(?:\?[^\s"'<>()\\]*)?`)

// bodyRegex scans the raw body, including JSON blobs with escaped slashes,
// for image URLs whose path contains one of hints.
func bodyRegex(hints ...string) imageStrategy {
	return func(_ *goquery.Selection, body []byte) []string {
		body = bytes.ReplaceAll(body, []byte(`\/`), []byte(`/`))
		seen := make(map[string]bool)
		var out []string
		for _, m := range bodyImageURL.FindAll(body, -1) {
			u := string(m)
			if seen[u] || !containsAny(u, hints) {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
		return out
	}
}

func containsAny(s string, subs []string) bool {
	if len(subs) == 0 {
		return true
	}
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func usableImage(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.HasPrefix(v, "data:") && !strings.HasPrefix(v, "blob:")
}
