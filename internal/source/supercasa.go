package source

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/imo-scraper/internal/entity"
)

// supercasaPage turns ".../lisboa" into ".../lisboa/pagina-3".
func supercasaPage(seed string, n int) string {
	if n <= 1 {
		return seed
	}
	return withPathSuffix(seed, fmt.Sprintf("pagina-%d", n))
}

func newSuperCasa() *siteAdapter {
	return &siteAdapter{spec: siteSpec{
		source: entity.SourceSuperCasa,
		seeds: map[entity.ListingKind][]string{
			entity.KindRent: {"https://supercasa.pt/arrendar-casas/lisboa-distrito"},
			entity.KindBuy:  {"https://supercasa.pt/comprar-casas/lisboa-distrito"},
		},
		pageURL: supercasaPage,
		list:    pageSpec{mode: entity.RenderStatic},
		layout:  "div.list-properties, div.no-results",
		card:    "div.list-properties div.property",
		fields: cardFields{
			link:     "h2.property-list-title a",
			title:    "h2.property-list-title",
			price:    "div.property-price",
			features: "div.property-features span",
			srcset:   "picture source",
			images:   "img",
		},
		siteID: func(card *goquery.Selection, href string) string {
			if id, ok := card.Attr("data-id"); ok {
				return id
			}
			return trailingSegment(href)
		},
		next: "div.list-pagination a.list-pagination-next",
	}}
}
