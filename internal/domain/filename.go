package domain

import (
	"path/filepath"
	"strings"
	"unicode"
)

// ParseFileName extracts the radar identifier and product suffix from a
// product file name. The radar is the first all-letter token of three or
// four characters; the suffix is the next three-character token that is not
// all digits. Missing parts come back empty.
func ParseFileName(name string) (radar, suffix string) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	tokens := strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})

	i := 0
	for ; i < len(tokens); i++ {
		if t := tokens[i]; (len(t) == 3 || len(t) == 4) && allLetters(t) {
			radar = strings.ToUpper(t)
			break
		}
	}
	if radar == "" {
		i = -1
	}
	for i++; i < len(tokens); i++ {
		if t := tokens[i]; len(t) == 3 && !allDigits(t) {
			suffix = strings.ToUpper(t)
			break
		}
	}
	return radar, suffix
}

func allLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
