package canon

import (
	"net/url"
	"path"
	"strings"

	"github.com/user/imo-scraper/pkg/utils"
)

var extRank = map[string]int{
	".webp": 0,
	".jpg":  1,
	".jpeg": 1,
	".png":  2,
}

const unknownExtRank = 3

// NormalizeImages resolves image URLs against base, drops blocklisted file
// names and collapses variants sharing a file stem, preferring .webp, then
// .jpg, then .png. Output order follows the first occurrence of each stem.
func NormalizeImages(base string, raw []string, blocklist []string) []string {
	type pick struct {
		url  string
		rank int
	}
	var order []string
	best := make(map[string]pick)

	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" || strings.HasPrefix(r, "data:") {
			continue
		}
		abs, err := utils.ResolveURL(base, r)
		if err != nil {
			continue
		}
		u, err := url.Parse(abs)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		name, stem, ext := fileParts(u.Path)
		if name == "" || name == "/" || name == "." || blocked(name, blocklist) {
			continue
		}
		rank, ok := extRank[ext]
		if !ok {
			rank = unknownExtRank
		}

		cur, seen := best[stem]
		if !seen {
			order = append(order, stem)
			best[stem] = pick{url: abs, rank: rank}
			continue
		}
		if rank < cur.rank {
			best[stem] = pick{url: abs, rank: rank}
		}
	}

	out := make([]string, 0, len(order))
	for _, stem := range order {
		out = append(out, best[stem].url)
	}
	return out
}

// fileParts splits the lower-cased base name of p into stem and extension.
func fileParts(p string) (name, stem, ext string) {
	name = strings.ToLower(path.Base(p))
	ext = path.Ext(name)
	return name, strings.TrimSuffix(name, ext), ext
}

func blocked(name string, blocklist []string) bool {
	for _, frag := range blocklist {
		if frag != "" && strings.Contains(name, strings.ToLower(frag)) {
			return true
		}
	}
	return false
}
