package source

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var spaceRun = regexp.MustCompile(`\s+`)

// clean collapses whitespace runs and trims.
func clean(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// textOf returns the cleaned text of the first match of sel within s.
func textOf(s *goquery.Selection, sel string) string {
	if sel == "" {
		return ""
	}
	return clean(s.Find(sel).First().Text())
}

var (
	areaToken     = regexp.MustCompile(`(?i)\d+(?:[.,]\d+)?\s*m(?:²|2)`)
	bedroomsToken = regexp.MustCompile(`(?i)^(?:T\d+|\d+\s*(?:quartos?|assoalhadas?|rooms?)|est[uú]dio|room in t\d+)`)
	floorToken    = regexp.MustCompile(`(?i)andar|piso|r/c|r\/?ch|rés[- ]do[- ]ch[aã]o|cave|sótão|floor`)
)

// classifyFeatures sorts the tokens of a feature line ("T2 · 85 m² · 3º andar")
// into bedrooms, area and floor. Later tokens never override earlier ones.
func classifyFeatures(parts []string) (bedrooms, area, floor string) {
	for _, p := range parts {
		p = clean(p)
		switch {
		case p == "":
		case area == "" && areaToken.MatchString(p):
			area = p
		case bedrooms == "" && bedroomsToken.MatchString(p):
			bedrooms = p
		case floor == "" && floorToken.MatchString(p):
			floor = p
		}
	}
	return bedrooms, area, floor
}

// splitFeatures splits a single feature line on the separators sites use.
func splitFeatures(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == '·' || r == '|' || r == '•' || r == '\n'
	})
}

// zoneFromTitle takes what follows " em " or " in " in titles such as
// "Apartamento T2 em Benfica, Lisboa".
func zoneFromTitle(title string) string {
	lower := strings.ToLower(title)
	for _, sep := range []string{" em ", " in ", " na ", " no "} {
		if i := strings.LastIndex(lower, sep); i >= 0 {
			return clean(title[i+len(sep):])
		}
	}
	return ""
}

// setQuery returns raw with key set to value.
func setQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// withPathSuffix appends suffix to the path of raw, keeping the query.
func withPathSuffix(raw, suffix string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.Path += suffix
	u.RawPath = ""
	return u.String()
}

func pageParam(key string) func(seed string, n int) string {
	return func(seed string, n int) string {
		if n <= 1 {
			return seed
		}
		return setQuery(seed, key, strconv.Itoa(n))
	}
}
