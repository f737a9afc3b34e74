package source

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/repository"
	"github.com/user/imo-scraper/pkg/utils"
)

// pageSpec is how a page type must be fetched.
type pageSpec struct {
	mode         entity.RenderMode
	waitSelector string
	scroll       bool
	steps        []entity.BrowserStep
	useProxy     bool
	needImages   bool
	timeout      time.Duration
}

func (p pageSpec) request(u string) entity.FetchRequest {
	mode := p.mode
	if mode == "" {
		mode = entity.RenderStatic
	}
	return entity.FetchRequest{
		URL:            u,
		Mode:           mode,
		Timeout:        p.timeout,
		UseProxy:       p.useProxy,
		WaitSelector:   p.waitSelector,
		ScrollToBottom: p.scroll,
		Steps:          p.steps,
		NeedImages:     p.needImages,
	}
}

// cardFields are selectors relative to one result card.
type cardFields struct {
	link     string
	title    string
	zone     string
	price    string
	bedrooms string
	area     string
	floor    string
	// features is a combined line split and classified when the site does
	// not label bedrooms, area and floor separately.
	features string
	images   string
	srcset   string
}

// detailFields are selectors on a listing page.
type detailFields struct {
	title       string
	zone        string
	price       string
	features    string
	floor       string
	description string
}

type siteSpec struct {
	source  entity.Source
	seeds   map[entity.ListingKind][]string
	pageURL func(seed string, n int) string

	list pageSpec
	// layout matches on every results page, including an empty one.
	layout string
	card   string
	fields cardFields
	// siteID extracts the site's own listing id; href is already absolute.
	siteID func(card *goquery.Selection, href string) string
	// next is the pager's next control. A disabled control or none at all
	// means there is no next page.
	next string

	detail       *pageSpec
	detailFields detailFields
	needsDetail  func(c entity.RawListing) bool

	// gallery is the ordered image fallback applied to detail pages.
	gallery []imageStrategy
	// browserGallery, when set, renders the listing to collect images the
	// static page does not carry.
	browserGallery *pageSpec
}

type siteAdapter struct {
	spec siteSpec
}

var _ Adapter = (*siteAdapter)(nil)

func (a *siteAdapter) Source() entity.Source { return a.spec.source }

func (a *siteAdapter) SeedURLs(kind entity.ListingKind) []string {
	return append([]string(nil), a.spec.seeds[kind]...)
}

func (a *siteAdapter) PageURL(seed string, n int) string {
	return a.spec.pageURL(seed, n)
}

func (a *siteAdapter) ListRequest(pageURL string) entity.FetchRequest {
	return a.spec.list.request(pageURL)
}

func (a *siteAdapter) ParseListPage(resp *entity.FetchResponse) (ListPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return ListPage{}, fmt.Errorf("%s: parse html: %w", a.spec.source, err)
	}

	cards := doc.Find(a.spec.card)
	if cards.Length() == 0 {
		if doc.Find(a.spec.layout).Length() == 0 {
			return ListPage{}, fmt.Errorf("%s %s: %w", a.spec.source, resp.FinalURL, repository.ErrUnrecognizedLayout)
		}
		return ListPage{}, nil
	}

	var page ListPage
	seen := make(map[string]bool)
	cards.Each(func(_ int, card *goquery.Selection) {
		c, ok := a.parseCard(card, resp.FinalURL)
		if !ok {
			page.Skipped++
			return
		}
		key := c.URL + "|" + c.SiteID
		if seen[key] {
			return
		}
		seen[key] = true
		page.Candidates = append(page.Candidates, c)
	})

	page.HasNext, page.NextURL = a.nextPage(doc, resp.FinalURL)
	return page, nil
}

func (a *siteAdapter) parseCard(card *goquery.Selection, base string) (entity.RawListing, bool) {
	f := a.spec.fields
	link := card
	if f.link != "" {
		link = card.Find(f.link).First()
	}
	href, _ := link.Attr("href")
	if strings.TrimSpace(href) == "" {
		return entity.RawListing{}, false
	}
	abs, err := utils.ResolveURL(base, href)
	if err != nil {
		return entity.RawListing{}, false
	}

	c := entity.RawListing{
		Source:    a.spec.source,
		URL:       abs,
		Title:     textOf(card, f.title),
		ZoneText:  textOf(card, f.zone),
		PriceText: textOf(card, f.price),
		Bedrooms:  textOf(card, f.bedrooms),
		AreaText:  textOf(card, f.area),
		Floor:     textOf(card, f.floor),
		BaseURL:   base,
	}
	if c.Title == "" {
		c.Title = clean(link.AttrOr("title", link.Text()))
	}
	if f.features != "" {
		var parts []string
		card.Find(f.features).Each(func(_ int, s *goquery.Selection) {
			parts = append(parts, splitFeatures(s.Text())...)
		})
		fillFeatures(&c, parts)
	}
	if c.ZoneText == "" {
		c.ZoneText = zoneFromTitle(c.Title)
	}
	if a.spec.siteID != nil {
		c.SiteID = a.spec.siteID(card, abs)
	}

	var strategies []imageStrategy
	if f.images != "" {
		strategies = append(strategies, galleryDOM(f.images))
	}
	if f.srcset != "" {
		strategies = append(strategies, srcsetImages(f.srcset))
	}
	c.ImageURLs = runImageStrategies(strategies, card, nil)
	return c, true
}

func fillFeatures(c *entity.RawListing, parts []string) {
	beds, area, floor := classifyFeatures(parts)
	if c.Bedrooms == "" {
		c.Bedrooms = beds
	}
	if c.AreaText == "" {
		c.AreaText = area
	}
	if c.Floor == "" {
		c.Floor = floor
	}
}

func (a *siteAdapter) nextPage(doc *goquery.Document, base string) (bool, string) {
	if a.spec.next == "" {
		return false, ""
	}
	next := doc.Find(a.spec.next).First()
	if next.Length() == 0 {
		return false, ""
	}
	if _, disabled := next.Attr("disabled"); disabled ||
		next.AttrOr("aria-disabled", "") == "true" ||
		next.HasClass("disabled") ||
		next.Parent().HasClass("disabled") {
		return false, ""
	}
	href, ok := next.Attr("href")
	if !ok || strings.TrimSpace(href) == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return true, ""
	}
	abs, err := utils.ResolveURL(base, href)
	if err != nil {
		return true, ""
	}
	return true, abs
}

func (a *siteAdapter) NeedsDetailPage(c entity.RawListing) bool {
	if a.spec.detail == nil {
		return false
	}
	if a.spec.needsDetail != nil {
		return a.spec.needsDetail(c)
	}
	return c.Description == "" || len(c.ImageURLs) == 0
}

func (a *siteAdapter) DetailRequest(c entity.RawListing) entity.FetchRequest {
	spec := pageSpec{}
	if a.spec.detail != nil {
		spec = *a.spec.detail
	}
	return spec.request(c.URL)
}

// ParseDetailPage fills the fields the list card lacked. Values already on
// the candidate win, except images which the full gallery replaces.
func (a *siteAdapter) ParseDetailPage(c entity.RawListing, resp *entity.FetchResponse) (entity.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return c, fmt.Errorf("%s: parse detail html: %w", a.spec.source, err)
	}
	f := a.spec.detailFields
	root := doc.Selection

	setIfEmpty(&c.Title, textOf(root, f.title))
	setIfEmpty(&c.ZoneText, textOf(root, f.zone))
	setIfEmpty(&c.PriceText, textOf(root, f.price))
	setIfEmpty(&c.Floor, textOf(root, f.floor))
	setIfEmpty(&c.Description, textOf(root, f.description))
	if f.features != "" {
		var parts []string
		root.Find(f.features).Each(func(_ int, s *goquery.Selection) {
			parts = append(parts, splitFeatures(s.Text())...)
		})
		fillFeatures(&c, parts)
	}
	if imgs := runImageStrategies(a.spec.gallery, root, resp.Body); len(imgs) > 0 {
		c.ImageURLs = imgs
	}
	if resp.FinalURL != "" {
		c.BaseURL = resp.FinalURL
	}
	return c, nil
}

func (a *siteAdapter) ExtractImages(ctx context.Context, c entity.RawListing, controller repository.Fetcher) ([]string, error) {
	if len(c.ImageURLs) > 0 || a.spec.browserGallery == nil || controller == nil {
		return c.ImageURLs, nil
	}
	resp, err := controller.Fetch(ctx, a.spec.browserGallery.request(c.URL))
	if err != nil {
		return nil, fmt.Errorf("render gallery %s: %w", c.URL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse gallery %s: %w", c.URL, err)
	}
	return runImageStrategies(a.spec.gallery, doc.Selection, resp.Body), nil
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
