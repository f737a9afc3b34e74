package chromedp_fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/imo-scraper/internal/entity"
)

func TestExtraHeadersSkipsEmulatedOnes(t *testing.T) {
	h := extraHeaders(map[string]string{
		"User-Agent":      "ua",
		"Accept-Language": "pt-PT",
		"Referer":         "https://www.idealista.pt/",
	})
	assert.Equal(t, 1, len(h))
	assert.Equal(t, "https://www.idealista.pt/", h["Referer"])
}

func TestActionsFollowRequestSteps(t *testing.T) {
	b := &Browser{}
	var html, final string

	plain := b.actions(entity.FetchRequest{URL: "https://x.pt"}, &html, &final)
	scripted := b.actions(entity.FetchRequest{
		URL:            "https://x.pt",
		Headers:        map[string]string{"User-Agent": "ua"},
		WaitSelector:   "#listings",
		ScrollToBottom: true,
		Steps: []entity.BrowserStep{
			{Selector: "#accept-cookies", Action: "click", PostDelayMS: 500},
			{Selector: ".gallery", Action: "scroll_into_view"},
		},
	}, &html, &final)

	// user agent override, scroll, two steps and one post delay
	assert.Equal(t, len(plain)+5, len(scripted))
}
