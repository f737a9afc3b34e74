package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/repository"
)

func fixture(t *testing.T, name, finalURL string) *entity.FetchResponse {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return &entity.FetchResponse{StatusCode: 200, FinalURL: finalURL, Body: body, ContentType: "text/html"}
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, req entity.FetchRequest) (*entity.FetchResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*entity.FetchResponse)
	return resp, args.Error(1)
}

func TestRegistryCoversEverySource(t *testing.T) {
	for _, src := range entity.AllSources {
		a, err := Lookup(src)
		require.NoError(t, err, src)
		assert.Equal(t, src, a.Source())
		assert.NotEmpty(t, a.SeedURLs(entity.KindRent), src)
		assert.NotEmpty(t, a.SeedURLs(entity.KindBuy), src)
	}
	assert.Len(t, All(), len(entity.AllSources))

	_, err := Lookup(entity.Source("olx"))
	assert.Error(t, err)
}

func TestPageURLSchemes(t *testing.T) {
	tests := []struct {
		src  entity.Source
		seed string
		want string
	}{
		{entity.SourceIdealista, "https://www.idealista.pt/arrendar-casas/lisboa-distrito/", "https://www.idealista.pt/arrendar-casas/lisboa-distrito/pagina-3.htm"},
		{entity.SourceImoVirtual, "https://www.imovirtual.com/pt/resultados/arrendar/apartamento/lisboa", "https://www.imovirtual.com/pt/resultados/arrendar/apartamento/lisboa?page=3"},
		{entity.SourceRemax, "https://www.remax.pt/pt/arrendar/imoveis/habitacao/lisboa/r/r", "https://www.remax.pt/pt/arrendar/imoveis/habitacao/lisboa/r/r?page=3"},
		{entity.SourceERA, "https://www.era.pt/imoveis/arrendar/apartamentos/lisboa", "https://www.era.pt/imoveis/arrendar/apartamentos/lisboa?page=3"},
		{entity.SourceCasaSapo, "https://casa.sapo.pt/alugar-apartamentos/lisboa/", "https://casa.sapo.pt/alugar-apartamentos/lisboa/?pn=3"},
		{entity.SourceSuperCasa, "https://supercasa.pt/arrendar-casas/lisboa-distrito", "https://supercasa.pt/arrendar-casas/lisboa-distrito/pagina-3"},
	}
	for _, tt := range tests {
		t.Run(string(tt.src), func(t *testing.T) {
			a, err := Lookup(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.seed, a.PageURL(tt.seed, 1))
			assert.Equal(t, tt.want, a.PageURL(tt.seed, 3))
		})
	}
}

func TestPageURLKeepsExistingQuery(t *testing.T) {
	a, err := Lookup(entity.SourceSuperCasa)
	require.NoError(t, err)
	assert.Equal(t, "https://supercasa.pt/arrendar-casas/lisboa/pagina-2?ordem=recentes",
		a.PageURL("https://supercasa.pt/arrendar-casas/lisboa?ordem=recentes", 2))
}

func TestListRequestRenderNeeds(t *testing.T) {
	idealista, _ := Lookup(entity.SourceIdealista)
	req := idealista.ListRequest("https://www.idealista.pt/x/")
	assert.Equal(t, entity.RenderStatic, req.Mode)
	assert.True(t, req.UseProxy)

	imo, _ := Lookup(entity.SourceImoVirtual)
	req = imo.ListRequest("https://www.imovirtual.com/pt/resultados/x")
	assert.Equal(t, entity.RenderDynamic, req.Mode)
	assert.True(t, req.ScrollToBottom)
	assert.NotEmpty(t, req.WaitSelector)
	assert.False(t, req.NeedImages)
}

func TestIdealistaListPage(t *testing.T) {
	a, _ := Lookup(entity.SourceIdealista)
	page, err := a.ParseListPage(fixture(t, "idealista_list.html", "https://www.idealista.pt/arrendar-casas/lisboa-distrito/"))
	require.NoError(t, err)

	require.Len(t, page.Candidates, 2)
	assert.Equal(t, 1, page.Skipped)
	assert.True(t, page.HasNext)
	assert.Equal(t, "https://www.idealista.pt/arrendar-casas/lisboa-distrito/pagina-2.htm", page.NextURL)

	first := page.Candidates[0]
	assert.Equal(t, entity.SourceIdealista, first.Source)
	assert.Equal(t, "https://www.idealista.pt/imovel/33412345/", first.URL)
	assert.Equal(t, "33412345", first.SiteID)
	assert.Equal(t, "Apartamento T2 na Rua de Benfica, Benfica", first.Title)
	assert.Equal(t, "Rua de Benfica, Benfica", first.ZoneText)
	assert.Equal(t, "1.250€/mês", first.PriceText)
	assert.Equal(t, "T2", first.Bedrooms)
	assert.Equal(t, "85 m² área bruta", first.AreaText)
	assert.Equal(t, "3º andar com elevador", first.Floor)
	assert.Equal(t, []string{"https://img4.idealista.pt/blur/WEB_LISTING/0/id.pro.pt.image.master/ab/cd/12345.webp"}, first.ImageURLs)
	assert.Equal(t, "https://www.idealista.pt/arrendar-casas/lisboa-distrito/", first.BaseURL)

	second := page.Candidates[1]
	assert.Equal(t, "Arroios, Lisboa", second.ZoneText)
	assert.Equal(t, "32 m²", second.AreaText)
	assert.Empty(t, second.Bedrooms)
	assert.Empty(t, second.ImageURLs)
}

func TestEmptyResultsPageIsNotALayoutError(t *testing.T) {
	a, _ := Lookup(entity.SourceIdealista)
	page, err := a.ParseListPage(fixture(t, "idealista_empty.html", "https://www.idealista.pt/arrendar-casas/lisboa-distrito/pagina-9.htm"))
	require.NoError(t, err)
	assert.Empty(t, page.Candidates)
	assert.False(t, page.HasNext)
}

func TestUnknownPageIsALayoutError(t *testing.T) {
	for _, src := range entity.AllSources {
		a, _ := Lookup(src)
		_, err := a.ParseListPage(fixture(t, "captcha.html", "https://example.pt/"))
		assert.ErrorIs(t, err, repository.ErrUnrecognizedLayout, src)
	}
}

func TestSuperCasaSrcsetAndDisabledNext(t *testing.T) {
	a, _ := Lookup(entity.SourceSuperCasa)
	page, err := a.ParseListPage(fixture(t, "supercasa_list.html", "https://supercasa.pt/arrendar-casas/lisboa-distrito/pagina-2"))
	require.NoError(t, err)

	require.Len(t, page.Candidates, 1)
	c := page.Candidates[0]
	assert.Equal(t, "https://supercasa.pt/arrendar-apartamento-t3-lisboa-alvalade/i4551230", c.URL)
	assert.Equal(t, "4551230", c.SiteID)
	assert.Equal(t, "Alvalade, Lisboa", c.ZoneText)
	assert.Equal(t, "1 800 €", c.PriceText)
	assert.Equal(t, "T3", c.Bedrooms)
	assert.Equal(t, "110 m²", c.AreaText)
	assert.Equal(t, []string{"https://media.supercasa.pt/4551230/foto1_1200.jpg"}, c.ImageURLs)
	assert.False(t, page.HasNext)
	assert.Empty(t, page.NextURL)
}

func TestERAIDFromCardWhenLinkLacksIt(t *testing.T) {
	a, _ := Lookup(entity.SourceERA)
	body := `<html><body><div class="properties-list">
	<div class="property-card" data-id="501"><a href="/imovel/t2-lisboa">T2</a><span class="property-price">900 €</span></div>
	<div class="property-card" data-id="502"><a href="/imovel/t2-lisboa">T2</a><span class="property-price">950 €</span></div>
	<div class="property-card" data-id="777"><a href="/imovel?id=503">T1</a><span class="property-price">700 €</span></div>
	</div></body></html>`
	page, err := a.ParseListPage(&entity.FetchResponse{StatusCode: 200, FinalURL: "https://www.era.pt/imoveis/arrendar", Body: []byte(body)})
	require.NoError(t, err)

	require.Len(t, page.Candidates, 3)
	assert.Equal(t, "501", page.Candidates[0].SiteID)
	assert.Equal(t, "502", page.Candidates[1].SiteID)
	assert.Equal(t, "503", page.Candidates[2].SiteID, "the link's id wins over the card attribute")
}

func TestImoVirtualDetailPage(t *testing.T) {
	a, _ := Lookup(entity.SourceImoVirtual)
	c := entity.RawListing{
		Source:    entity.SourceImoVirtual,
		URL:       "https://www.imovirtual.com/pt/anuncio/t1-renovado-ID1abc",
		Title:     "T1 renovado em Campo de Ourique",
		PriceText: "1 100 €",
	}
	require.True(t, a.NeedsDetailPage(c))
	req := a.DetailRequest(c)
	assert.Equal(t, entity.RenderDynamic, req.Mode)
	assert.True(t, req.NeedImages)
	assert.Equal(t, c.URL, req.URL)

	got, err := a.ParseDetailPage(c, fixture(t, "imovirtual_detail.html", c.URL))
	require.NoError(t, err)
	assert.Equal(t, "T1 renovado em Campo de Ourique", got.Title, "list values win")
	assert.Equal(t, "Campo de Ourique, Lisboa", got.ZoneText)
	assert.Equal(t, "2", got.Floor)
	assert.Equal(t, "Apartamento luminoso, totalmente renovado.", got.Description)
	assert.Equal(t, []string{
		"https://ireland.apollo.olxcdn.com/v1/files/abc/image;s=1280x1024.webp",
		"https://ireland.apollo.olxcdn.com/v1/files/def/image;s=1280x1024.jpg",
	}, got.ImageURLs)
	assert.False(t, a.NeedsDetailPage(got))
}

func TestDetailImagesFallBackToBodyScan(t *testing.T) {
	a, _ := Lookup(entity.SourceImoVirtual)
	got, err := a.ParseDetailPage(entity.RawListing{URL: "https://www.imovirtual.com/pt/anuncio/x"},
		fixture(t, "imovirtual_script_only.html", "https://www.imovirtual.com/pt/anuncio/x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://ireland.apollo.olxcdn.com/v1/files/zzz/photo.jpg"}, got.ImageURLs)
}

func TestSitesWithoutDetailPages(t *testing.T) {
	for _, src := range []entity.Source{entity.SourceIdealista, entity.SourceCasaSapo, entity.SourceSuperCasa} {
		a, _ := Lookup(src)
		assert.False(t, a.NeedsDetailPage(entity.RawListing{URL: "https://x.pt/1"}), src)
	}
}

func TestExtractImagesKeepsListImages(t *testing.T) {
	a, _ := Lookup(entity.SourceIdealista)
	controller := new(mockFetcher)
	c := entity.RawListing{URL: "https://www.idealista.pt/imovel/1/", ImageURLs: []string{"https://img4.idealista.pt/a.jpg"}}

	got, err := a.ExtractImages(context.Background(), c, controller)
	require.NoError(t, err)
	assert.Equal(t, c.ImageURLs, got)
	controller.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestExtractImagesRendersGallery(t *testing.T) {
	a, _ := Lookup(entity.SourceIdealista)
	controller := new(mockFetcher)
	body := []byte(`<html><body><div id="main-multimedia"><img data-src="https://img4.idealista.pt/blur/x/1.jpg"><img src="https://img4.idealista.pt/blur/x/2.jpg"></div></body></html>`)
	controller.On("Fetch", mock.Anything, mock.MatchedBy(func(req entity.FetchRequest) bool {
		return req.Mode == entity.RenderDynamic && req.NeedImages && req.UseProxy && req.URL == "https://www.idealista.pt/imovel/1/"
	})).Return(&entity.FetchResponse{StatusCode: 200, Body: body}, nil).Once()

	got, err := a.ExtractImages(context.Background(), entity.RawListing{URL: "https://www.idealista.pt/imovel/1/"}, controller)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img4.idealista.pt/blur/x/1.jpg", "https://img4.idealista.pt/blur/x/2.jpg"}, got)
	controller.AssertExpectations(t)
}

func TestExtractImagesPropagatesRenderError(t *testing.T) {
	a, _ := Lookup(entity.SourceIdealista)
	controller := new(mockFetcher)
	boom := errors.New("browser crashed")
	controller.On("Fetch", mock.Anything, mock.Anything).Return(nil, boom)

	_, err := a.ExtractImages(context.Background(), entity.RawListing{URL: "https://www.idealista.pt/imovel/2/"}, controller)
	assert.ErrorIs(t, err, boom)

	got, err := a.ExtractImages(context.Background(), entity.RawListing{URL: "https://www.idealista.pt/imovel/2/"}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClassifyFeatures(t *testing.T) {
	beds, area, floor := classifyFeatures(splitFeatures("T2 · 85,5 m² · 3º andar"))
	assert.Equal(t, "T2", beds)
	assert.Equal(t, "85,5 m²", area)
	assert.Equal(t, "3º andar", floor)

	beds, area, floor = classifyFeatures([]string{"Rés-do-chão", "2 quartos", "60m2"})
	assert.Equal(t, "2 quartos", beds)
	assert.Equal(t, "60m2", area)
	assert.Equal(t, "Rés-do-chão", floor)
}

func TestWidestSrcset(t *testing.T) {
	assert.Equal(t, "b.jpg", widestSrcset("a.jpg 320w, b.jpg 1024w, c.jpg 640w"))
	assert.Equal(t, "hi.jpg", widestSrcset("lo.jpg 1x, hi.jpg 2x"))
	assert.Equal(t, "", widestSrcset("data:image/gif;base64,AAAA 1x"))
}
