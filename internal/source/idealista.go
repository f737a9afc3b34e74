package source

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/imo-scraper/internal/entity"
)

// idealistaPage turns ".../lisboa/" into ".../lisboa/pagina-3.htm".
func idealistaPage(seed string, n int) string {
	if n <= 1 {
		return seed
	}
	return withPathSuffix(seed, fmt.Sprintf("pagina-%d.htm", n))
}

func newIdealista() *siteAdapter {
	return &siteAdapter{spec: siteSpec{
		source: entity.SourceIdealista,
		seeds: map[entity.ListingKind][]string{
			entity.KindRent: {"https://www.idealista.pt/arrendar-casas/lisboa-distrito/"},
			entity.KindBuy:  {"https://www.idealista.pt/comprar-casas/lisboa-distrito/"},
		},
		pageURL: idealistaPage,
		list:    pageSpec{mode: entity.RenderStatic, useProxy: true},
		layout:  "main.listing-items, section.items-container, div.listing-top",
		card:    "article.item",
		fields: cardFields{
			link:     "a.item-link",
			title:    "a.item-link",
			price:    "span.item-price",
			features: "div.item-detail-char span.item-detail",
			images:   "picture img, img",
		},
		siteID: func(card *goquery.Selection, href string) string {
			if id, ok := card.Attr("data-element-id"); ok {
				return id
			}
			return trailingSegment(href)
		},
		next: "div.pagination li.next a",

		gallery: []imageStrategy{
			galleryDOM("div.main-image img, #main-multimedia img"),
			bodyRegex("img3.idealista.pt", "img4.idealista.pt"),
		},
		browserGallery: &pageSpec{
			mode:         entity.RenderDynamic,
			waitSelector: "#main-multimedia",
			useProxy:     true,
			needImages:   true,
		},
	}}
}

// trailingSegment returns the last non-empty path segment of u.
func trailingSegment(u string) string {
	u = strings.TrimRight(strings.SplitN(u, "?", 2)[0], "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}
