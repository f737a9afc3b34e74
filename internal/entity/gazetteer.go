package entity

// District, County and Parish form the administrative hierarchy.
// NormName is lower-cased with diacritics stripped.
type District struct {
	ID       int
	Name     string
	NormName string
	Counties []County
}

type County struct {
	ID         int
	DistrictID int
	Name       string
	NormName   string
	Parishes   []Parish
}

type Parish struct {
	ID       int
	CountyID int
	Name     string
	NormName string
}

// Gazetteer is read-only once built. Districts, counties and parishes are
// kept in ascending id order.
type Gazetteer struct {
	Districts []District
}

// Location is a resolver result; DistrictID falls back to the primary district.
type Location struct {
	ParishID   *int
	CountyID   *int
	DistrictID *int
}
