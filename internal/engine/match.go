package engine

import (
	"strings"
	"unicode"

	"github.com/webwaysys/kommo-sync/internal/kommo"
)

// reservedFieldCodes are vendor-defined field codes that exist on every
// tenant. They are never created, deleted or matched for sync in either
// direction.
var reservedFieldCodes = map[string]struct{}{
	"PHONE":    {},
	"EMAIL":    {},
	"POSITION": {},
	"WEB":      {},
	"IM":       {},
	"ADDRESS":  {},
}

// IsReservedFieldCode reports whether the code names a vendor-managed field.
func IsReservedFieldCode(code string) bool {
	_, ok := reservedFieldCodes[strings.ToUpper(code)]
	return ok
}

// fieldTypeCoercions maps master field types the write API no longer
// accepts to their closest supported type.
var fieldTypeCoercions = map[string]string{
	"birthday":      "date",
	"birthday_date": "date",
	"datetime":      "date_time",
}

var knownFieldTypes = map[string]struct{}{
	"text":          {},
	"numeric":       {},
	"checkbox":      {},
	"select":        {},
	"multiselect":   {},
	"date":          {},
	"url":           {},
	"textarea":      {},
	"radiobutton":   {},
	"streetaddress": {},
	"smart_address": {},
	"legal_entity":  {},
	"date_time":     {},
	"price":         {},
	"monetary":      {},
	"category":      {},
	"tracking_data": {},
	"chained_list":  {},
	"file":          {},
}

// TranslateFieldType coerces unsupported master types and falls back to
// text for anything unknown.
func TranslateFieldType(t string) string {
	if coerced, ok := fieldTypeCoercions[t]; ok {
		return coerced
	}
	if _, ok := knownFieldTypes[t]; ok {
		return t
	}
	return "text"
}

func compatibleFieldTypes(a, b string) bool {
	return TranslateFieldType(a) == TranslateFieldType(b)
}

// fieldMatcher is one rule of the matching chain. Rules run in order and
// the first candidate hit wins, so earlier rules take priority over
// candidate order.
type fieldMatcher struct {
	name  string
	match func(master, candidate kommo.CustomField) bool
}

var fieldMatchers = []fieldMatcher{
	{"code", matchByCode},
	{"name", matchByExactName},
	{"name-fold", matchByFoldedName},
	{"substring", matchBySubstring},
	{"alnum", matchByAlnumName},
	{"similarity", matchBySimilarity},
}

// MatchField finds the slave field corresponding to a master field, trying
// each rule of the chain in turn. It returns the matched candidate and the
// name of the rule that hit, or nil when nothing matched.
func MatchField(master kommo.CustomField, candidates []kommo.CustomField) (*kommo.CustomField, string) {
	for _, rule := range fieldMatchers {
		for i := range candidates {
			if rule.match(master, candidates[i]) {
				return &candidates[i], rule.name
			}
		}
	}
	return nil, ""
}

func matchByCode(m, c kommo.CustomField) bool {
	return m.Code != "" && c.Code != "" && m.Code == c.Code
}

func matchByExactName(m, c kommo.CustomField) bool {
	return m.Name == c.Name
}

func matchByFoldedName(m, c kommo.CustomField) bool {
	return foldName(m.Name) == foldName(c.Name)
}

func matchBySubstring(m, c kommo.CustomField) bool {
	a, b := foldName(m.Name), foldName(c.Name)
	if a == "" || b == "" {
		return false
	}
	delta := len(a) - len(b)
	if delta < 0 {
		delta = -delta
	}
	if delta > 3 {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func matchByAlnumName(m, c kommo.CustomField) bool {
	if !compatibleFieldTypes(m.Type, c.Type) {
		return false
	}
	a, b := alnumName(m.Name), alnumName(c.Name)
	return a != "" && a == b
}

func matchBySimilarity(m, c kommo.CustomField) bool {
	if !compatibleFieldTypes(m.Type, c.Type) {
		return false
	}
	return nameSimilarity(foldName(m.Name), foldName(c.Name)) >= 0.7
}

// foldName lowercases, trims and collapses inner whitespace.
func foldName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// alnumName keeps only letters and digits, lowercased.
func alnumName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// nameSimilarity is the share of rune positions where both names carry the
// same rune, over the longer length.
func nameSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longer := len(ra)
	if len(rb) > longer {
		longer = len(rb)
	}
	if longer == 0 {
		return 0
	}
	shorter := len(ra)
	if len(rb) < shorter {
		shorter = len(rb)
	}
	same := 0
	for i := 0; i < shorter; i++ {
		if ra[i] == rb[i] {
			same++
		}
	}
	return float64(same) / float64(longer)
}
