package source

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/imo-scraper/internal/entity"
)

func newCasaSapo() *siteAdapter {
	return &siteAdapter{spec: siteSpec{
		source: entity.SourceCasaSapo,
		seeds: map[entity.ListingKind][]string{
			entity.KindRent: {"https://casa.sapo.pt/alugar-apartamentos/lisboa/"},
			entity.KindBuy:  {"https://casa.sapo.pt/comprar-apartamentos/lisboa/"},
		},
		pageURL: pageParam("pn"),
		list:    pageSpec{mode: entity.RenderStatic},
		layout:  "div.property-list, div.no-results-wrapper",
		card:    "div.property-list div.property",
		fields: cardFields{
			link:     "a.property-info",
			title:    ".property-type",
			zone:     ".property-location",
			price:    ".property-price-value",
			features: ".property-features",
			images:   ".property-photos img, img",
		},
		siteID: func(card *goquery.Selection, href string) string {
			if u, err := url.Parse(href); err == nil {
				if id := u.Query().Get("g3pid"); id != "" {
					return id
				}
			}
			return strings.TrimSpace(card.AttrOr("data-g3pid", ""))
		},
		next: "div.pagination a.next, a[rel=next]",
	}}
}
