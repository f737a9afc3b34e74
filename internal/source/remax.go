package source

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/user/imo-scraper/internal/entity"
)

func newRemax() *siteAdapter {
	detail := pageSpec{mode: entity.RenderDynamic, waitSelector: "h1", needImages: true}
	return &siteAdapter{spec: siteSpec{
		source: entity.SourceRemax,
		seeds: map[entity.ListingKind][]string{
			entity.KindRent: {"https://www.remax.pt/pt/arrendar/imoveis/habitacao/lisboa/r/r"},
			entity.KindBuy:  {"https://www.remax.pt/pt/comprar/imoveis/habitacao/lisboa/r/r"},
		},
		pageURL: pageParam("page"),
		list: pageSpec{
			mode:         entity.RenderDynamic,
			waitSelector: "div.listings-container, div.no-results",
			steps: []entity.BrowserStep{
				{Selector: "#onetrust-accept-btn-handler", Action: "click", PostDelayMS: 500},
			},
		},
		layout: "div.listings-container, div.no-results",
		card:   "div.listings-container div.listing-card, div.listings-container div.result-card",
		fields: cardFields{
			link:     "a",
			title:    "h2, .listing-title",
			zone:     ".listing-address, .address",
			price:    ".listing-price, .price",
			bedrooms: ".listing-bedroom, .bedrooms",
			area:     ".listing-area, .area",
			images:   "img",
		},
		siteID: func(_ *goquery.Selection, href string) string { return trailingSegment(href) },
		next:   "ul.pagination li.next a, a[rel=next]",

		detail: &detail,
		detailFields: detailFields{
			title:       "h1",
			zone:        ".listing-address",
			price:       ".listing-price",
			features:    ".features-container li",
			description: ".listing-description, #description",
		},
		gallery: []imageStrategy{
			galleryDOM("div.gallery img, div.swiper-slide img"),
			srcsetImages("div.gallery picture source"),
			bodyRegex("i.maxwork.pt", "remax"),
		},
	}}
}
