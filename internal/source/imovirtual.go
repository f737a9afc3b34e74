package source

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/user/imo-scraper/internal/entity"
)

func newImoVirtual() *siteAdapter {
	detail := pageSpec{mode: entity.RenderDynamic, waitSelector: "main", needImages: true}
	return &siteAdapter{spec: siteSpec{
		source: entity.SourceImoVirtual,
		seeds: map[entity.ListingKind][]string{
			entity.KindRent: {"https://www.imovirtual.com/pt/resultados/arrendar/apartamento/lisboa"},
			entity.KindBuy:  {"https://www.imovirtual.com/pt/resultados/comprar/apartamento/lisboa"},
		},
		pageURL: pageParam("page"),
		list: pageSpec{
			mode:         entity.RenderDynamic,
			waitSelector: `[data-cy="search.listing.organic"]`,
			scroll:       true,
		},
		layout: `[data-cy="search.listing.organic"], [data-cy="no-search-results"]`,
		card:   `[data-cy="search.listing.organic"] article[data-cy="listing-item"]`,
		fields: cardFields{
			link:     `a[data-cy="listing-item-link"]`,
			title:    `[data-cy="listing-item-title"]`,
			zone:     `p[data-testid="advert-card-address"]`,
			price:    `[data-sentry-element="MainPrice"], span[direction="horizontal"]`,
			features: `dl dd`,
			images:   `img`,
		},
		siteID: func(_ *goquery.Selection, href string) string { return trailingSegment(href) },
		next:   `li[aria-label="Go to next Page"], button[data-cy="pagination.next-page"]`,

		detail: &detail,
		detailFields: detailFields{
			title:       `h1[data-cy="adPageAdTitle"]`,
			zone:        `a[href="#map"]`,
			price:       `strong[data-cy="adPageHeaderPrice"]`,
			floor:       `[data-testid="table-value-floor"]`,
			description: `[data-cy="adPageAdDescription"]`,
		},
		needsDetail: func(c entity.RawListing) bool { return c.Description == "" },
		gallery: []imageStrategy{
			galleryDOM(`[data-cy="mosaic-gallery-main-view"] img, div.image-gallery-slide img`),
			srcsetImages(`picture source`),
			bodyRegex("apollo.olxcdn.com", "ireland.apollo"),
		},
	}}
}
