package canon

import (
	"regexp"
	"strings"
)

var numberRun = regexp.MustCompile(`\d[\d.,]*`)

// maxPriceDigits keeps int64 minor-unit arithmetic far from overflow.
const maxPriceDigits = 13

// ParsePrice turns a display price into euro cents.
//
// Currency glyphs and whitespace are ignored. When both '.' and ',' occur the
// last one is the decimal separator; a lone separator followed by exactly three
// digits (or repeated) groups thousands. Results below 100 euros are read as
// thousands ("1,15" is 1150 euros). Integer arithmetic only.
func ParsePrice(s string) (int64, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '\u00a0', '\u202f', '\u2009':
			return -1
		}
		return r
	}, s)

	tok := numberRun.FindString(s)
	tok = strings.TrimRight(tok, ".,")
	if tok == "" {
		return 0, false
	}

	intDigits, fracDigits := splitDecimal(tok)
	if intDigits == "" {
		intDigits = "0"
	}
	if len(intDigits) > maxPriceDigits {
		return 0, false
	}

	var whole int64
	for _, r := range intDigits {
		whole = whole*10 + int64(r-'0')
	}
	var cents int64
	for i := 0; i < 2; i++ {
		cents *= 10
		if i < len(fracDigits) {
			cents += int64(fracDigits[i] - '0')
		}
	}

	minor := whole*100 + cents
	// Genuinely cheap rentals get misread here; kept pending a product decision.
	if whole < 100 {
		minor *= 1000
	}
	return minor, true
}

func splitDecimal(tok string) (intPart, frac string) {
	dots := strings.Count(tok, ".")
	commas := strings.Count(tok, ",")

	var dec byte
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(tok, ".") > strings.LastIndex(tok, ",") {
			dec = '.'
		} else {
			dec = ','
		}
	case dots == 1:
		if !groupsThousands(tok, '.') {
			dec = '.'
		}
	case commas == 1:
		if !groupsThousands(tok, ',') {
			dec = ','
		}
	}

	if dec != 0 {
		i := strings.LastIndexByte(tok, dec)
		intPart, frac = tok[:i], tok[i+1:]
	} else {
		intPart = tok
	}
	return digitsOnly(intPart), digitsOnly(frac)
}

func groupsThousands(tok string, sep byte) bool {
	i := strings.IndexByte(tok, sep)
	return len(tok)-i-1 == 3
}

func digitsOnly(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
