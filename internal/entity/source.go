package entity

import (
	"fmt"
	"strings"
)

// Source identifies one of the supported real-estate sites.
type Source string

const (
	SourceImoVirtual Source = "imovirtual"
	SourceIdealista  Source = "idealista"
	SourceRemax      Source = "remax"
	SourceERA        Source = "era"
	SourceCasaSapo   Source = "casasapo"
	SourceSuperCasa  Source = "supercasa"
)

// AllSources lists every source in the order workers are spawned.
var AllSources = []Source{
	SourceImoVirtual,
	SourceIdealista,
	SourceRemax,
	SourceERA,
	SourceCasaSapo,
	SourceSuperCasa,
}

// Known reports whether s is one of AllSources.
func (s Source) Known() bool {
	for _, src := range AllSources {
		if src == s {
			return true
		}
	}
	return false
}

// ParseSource accepts both the lower-case tag and the display name ("ImoVirtual").
func ParseSource(s string) (Source, error) {
	if v := Source(strings.ToLower(strings.TrimSpace(s))); v.Known() {
		return v, nil
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// ListingKind is whether a listing is for rent or for sale.
type ListingKind string

const (
	KindRent ListingKind = "rent"
	KindBuy  ListingKind = "buy"
)

func ParseListingKind(s string) (ListingKind, error) {
	switch ListingKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindRent:
		return KindRent, nil
	case KindBuy:
		return KindBuy, nil
	}
	return "", fmt.Errorf("invalid listing kind %q: want rent or buy", s)
}
