package canon

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	digitRun   = regexp.MustCompile(`\d+`)
	decimalRun = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

const maxBedrooms = 20

// ParseBedrooms reads the first integer in a typology string: "T3" is 3,
// "Room in T2" is 2. Values above 20 are rejected.
func ParseBedrooms(s string) *int {
	run := digitRun.FindString(s)
	if run == "" {
		return nil
	}
	n, err := strconv.Atoi(run)
	if err != nil || n < 0 || n > maxBedrooms {
		return nil
	}
	return &n
}

// ParseArea reads the first decimal number as square metres and accepts it
// only when its integer part lies in [10, 500].
func ParseArea(s string) *float64 {
	run := decimalRun.FindString(s)
	if run == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.Replace(run, ",", ".", 1), 64)
	if err != nil {
		return nil
	}
	whole := int(f)
	if whole < 10 || whole > 500 {
		return nil
	}
	return &f
}
