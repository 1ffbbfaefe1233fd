// Package normalize builds identity keys for companies and people so that
// repeated research runs upsert rather than duplicate.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes lists common legal entity suffixes stripped from company names.
var legalSuffixes = []string{
	" llc", " l.l.c.", " l.l.c",
	" inc", " inc.", " incorporated",
	" corp", " corp.", " corporation",
	" ltd", " ltd.", " limited",
	" gmbh", " s.a.", " sa", " ag",
	" co", " co.",
	" plc", " p.l.c.",
}

// honorifics are dropped from the front of person names.
var honorifics = []string{"dr. ", "dr ", "mr. ", "mr ", "ms. ", "ms ", "mrs. ", "mrs ", "prof. ", "prof "}

var (
	multiSpaceRe = regexp.MustCompile(`\s+`)
	folder       = cases.Fold()
)

// fold lowercases and strips diacritics ("José" and "jose" share a key).
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return folder.String(out)
}

// CompanyKey standardizes a company name for matching:
//  1. Folding case and diacritics
//  2. Removing one trailing legal suffix (LLC, Inc, Corp, ...)
//  3. Stripping punctuation and collapsing whitespace
func CompanyKey(name string) string {
	name = strings.TrimSpace(fold(name))
	if name == "" {
		return ""
	}
	name = strings.TrimSuffix(name, ",")

	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"&", "and",
		"-", " ",
	).Replace(name)

	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(name, " "))
}

// PersonKey standardizes a person name for matching. Honorifics and
// punctuation are removed; word order is preserved.
func PersonKey(name string) string {
	name = strings.TrimSpace(fold(name))
	for _, h := range honorifics {
		if strings.HasPrefix(name, h) {
			name = strings.TrimPrefix(name, h)
			break
		}
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case unicode.IsSpace(r), r == '-':
			return ' '
		default:
			return -1
		}
	}, name)
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(name, " "))
}
