package source

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/imo-scraper/internal/entity"
)

func newERA() *siteAdapter {
	detail := pageSpec{mode: entity.RenderStatic}
	return &siteAdapter{spec: siteSpec{
		source: entity.SourceERA,
		seeds: map[entity.ListingKind][]string{
			entity.KindRent: {"https://www.era.pt/imoveis/arrendar/apartamentos/lisboa"},
			entity.KindBuy:  {"https://www.era.pt/imoveis/comprar/apartamentos/lisboa"},
		},
		pageURL: pageParam("page"),
		list:    pageSpec{mode: entity.RenderStatic},
		layout:  "div.properties-list, div.no-results",
		card:    "div.properties-list div.property-card",
		fields: cardFields{
			link:     "a[href*='imovel']",
			title:    ".property-title",
			zone:     ".property-location",
			price:    ".property-price",
			features: ".property-features",
			images:   "img",
		},
		siteID: func(card *goquery.Selection, href string) string {
			if u, err := url.Parse(href); err == nil {
				if id := u.Query().Get("id"); id != "" {
					return id
				}
			}
			return strings.TrimSpace(card.AttrOr("data-id", ""))
		},
		next: "ul.pagination a.next, a[rel=next]",

		detail: &detail,
		detailFields: detailFields{
			title:       "h1",
			zone:        ".property-location",
			price:       ".property-price",
			features:    ".property-features",
			description: ".property-description",
		},
		needsDetail: func(c entity.RawListing) bool { return c.Description == "" },
		gallery: []imageStrategy{
			galleryDOM("div.property-gallery img"),
			bodyRegex("era.pt/"),
		},
	}}
}
