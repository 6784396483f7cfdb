package core

import "strings"

const (
	CategoryFood          = "Food"
	CategoryGroceries     = "Groceries"
	CategoryTransport     = "Transport"
	CategoryShopping      = "Shopping"
	CategoryEntertainment = "Entertainment"
	CategoryHousing       = "Housing"
	CategoryUtilities     = "Utilities"
	CategoryHealth        = "Health"
	CategoryEducation     = "Education"
	CategoryOther         = "Other"
)

// Categories is the closed set an external classifier may answer with.
var Categories = []string{
	CategoryFood,
	CategoryGroceries,
	CategoryTransport,
	CategoryShopping,
	CategoryEntertainment,
	CategoryHousing,
	CategoryUtilities,
	CategoryHealth,
	CategoryEducation,
	CategoryOther,
}

// CanonicalCategory maps s onto the closed category set, ignoring case and
// surrounding whitespace or punctuation. It reports false for unknown labels.
func CanonicalCategory(s string) (string, bool) {
	s = strings.Trim(strings.TrimSpace(s), ".\"'`")
	for _, c := range Categories {
		if strings.EqualFold(s, c) {
			return c, true
		}
	}
	return "", false
}
