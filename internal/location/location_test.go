package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/imo-scraper/internal/entity"
)

const (
	districtLisboa = 11
	districtPorto  = 13
	countyLisboa   = 1106
	countySintra   = 1111
	countyPorto    = 1312

	parishBenfica         = 110601
	parishSantaMariaMaior = 110602
	parishAlvalade        = 110603
	parishSantoAntonioLX  = 110604
	parishBelem           = 110605
	parishAlgueirao       = 111101
	parishSantoAntonioSNT = 111102
	parishBonfim          = 131201
)

func testGazetteer() *entity.Gazetteer {
	return &entity.Gazetteer{Districts: []entity.District{
		{ID: districtPorto, Name: "Porto", Counties: []entity.County{
			{ID: countyPorto, Name: "Porto", Parishes: []entity.Parish{
				{ID: parishBonfim, Name: "Bonfim"},
			}},
		}},
		{ID: districtLisboa, Name: "Lisboa", Counties: []entity.County{
			{ID: countySintra, Name: "Sintra", Parishes: []entity.Parish{
				{ID: parishSantoAntonioSNT, Name: "Santo António"},
				{ID: parishAlgueirao, Name: "Algueirão-Mem Martins"},
			}},
			{ID: countyLisboa, Name: "Lisboa", Parishes: []entity.Parish{
				{ID: parishBelem, Name: "Belém"},
				{ID: parishBenfica, Name: "Benfica"},
				{ID: parishSantaMariaMaior, Name: "Santa Maria Maior"},
				{ID: parishAlvalade, Name: "Alvalade"},
				{ID: parishSantoAntonioLX, Name: "Santo António"},
			}},
		}},
	}}
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(testGazetteer(), "Lisboa")
	require.NoError(t, err)
	return r
}

func assertLocation(t *testing.T, got entity.Location, parish, county *int, district int) {
	t.Helper()
	assert.Equal(t, parish, got.ParishID, "parish")
	assert.Equal(t, county, got.CountyID, "county")
	require.NotNil(t, got.DistrictID)
	assert.Equal(t, district, *got.DistrictID, "district")
}

func id(v int) *int { return &v }

func TestNormalize(t *testing.T) {
	assert.Equal(t, "algueirao mem martins", Normalize("Algueirão-Mem Martins"))
	assert.Equal(t, "rua augusta,santa maria maior,lisboa", Normalize("Rua Augusta, Santa Maria Maior, LISBOA"))
	assert.Equal(t, "sao joao da talha", Normalize("  São   João da Talha "))
}

func TestPartialRatio(t *testing.T) {
	assert.Equal(t, 100, PartialRatio("benfica", "benfica"))
	assert.Equal(t, 100, PartialRatio("benfica", "apartamento em benfica"))
	assert.GreaterOrEqual(t, PartialRatio("alvalade", "alvalad"), MatchThreshold)
	assert.Less(t, PartialRatio("sintra", "santo antonio"), MatchThreshold)
	assert.Equal(t, 0, PartialRatio("", "lisboa"))
}

func TestResolveParishAndCounty(t *testing.T) {
	r := newTestResolver(t)
	assertLocation(t, r.Resolve("Benfica, Lisboa"), id(parishBenfica), id(countyLisboa), districtLisboa)
}

func TestResolveSkipsStreet(t *testing.T) {
	r := newTestResolver(t)
	assertLocation(t, r.Resolve("Rua Augusta, Santa Maria Maior, Lisboa"),
		id(parishSantaMariaMaior), id(countyLisboa), districtLisboa)
}

func TestResolveStripsDiacritics(t *testing.T) {
	r := newTestResolver(t)
	assertLocation(t, r.Resolve("BELEM"), id(parishBelem), id(countyLisboa), districtLisboa)
	assertLocation(t, r.Resolve("Algueirão - Mem Martins, Sintra"), id(parishAlgueirao), id(countySintra), districtLisboa)
}

func TestResolveCountyOnly(t *testing.T) {
	r := newTestResolver(t)
	assertLocation(t, r.Resolve("Sintra"), nil, id(countySintra), districtLisboa)
}

func TestResolveEmptyFallsBackToDefaultDistrict(t *testing.T) {
	r := newTestResolver(t)
	for _, in := range []string{"", "N/A", "-", "  ", "Rua Augusta"} {
		assertLocation(t, r.Resolve(in), nil, nil, districtLisboa)
	}
}

func TestResolveAmbiguousParishPrefersMatchedCounty(t *testing.T) {
	r := newTestResolver(t)
	assertLocation(t, r.Resolve("Santo António, Sintra"), id(parishSantoAntonioSNT), id(countySintra), districtLisboa)
	// Without a county hint the lowest id wins.
	assertLocation(t, r.Resolve("Santo António"), id(parishSantoAntonioLX), id(countyLisboa), districtLisboa)
}

func TestResolveIgnoresOtherDistricts(t *testing.T) {
	r := newTestResolver(t)
	assertLocation(t, r.Resolve("Bonfim, Porto"), nil, nil, districtLisboa)
}

func TestResolveWithoutPrimaryDistrict(t *testing.T) {
	r, err := NewResolver(testGazetteer(), "")
	require.NoError(t, err)

	got := r.Resolve("Bonfim, Porto")
	assert.Equal(t, id(parishBonfim), got.ParishID)
	assert.Equal(t, id(countyPorto), got.CountyID)
	assert.Equal(t, id(districtPorto), got.DistrictID)

	assert.Nil(t, r.Resolve("").DistrictID)
}

func TestNewResolverUnknownDistrict(t *testing.T) {
	_, err := NewResolver(testGazetteer(), "Faro")
	assert.Error(t, err)
}

func TestResolveExactTokenAlwaysWins(t *testing.T) {
	r := newTestResolver(t)
	g := Prepare(testGazetteer())
	for _, d := range g.Districts {
		if d.ID != districtLisboa {
			continue
		}
		for _, c := range d.Counties {
			for _, p := range c.Parishes {
				if p.Name == "Santo António" {
					continue
				}
				got := r.Resolve(p.Name + ", " + c.Name)
				require.NotNil(t, got.ParishID, p.Name)
				assert.Equal(t, p.ID, *got.ParishID, p.Name)
				assert.Equal(t, c.ID, *got.CountyID, p.Name)
			}
		}
	}
}
