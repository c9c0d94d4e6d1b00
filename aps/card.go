package aps

import (
	"regexp"
	"sync"
)

// Card networks recognized from a BIN.
const (
	CardMada       = "mada"
	CardMeeza      = "meeza"
	CardVisa       = "visa"
	CardMastercard = "mastercard"
	CardAmex       = "amex"
)

var (
	visaRegex       = regexp.MustCompile(`^4[0-9]{0,15}$`)
	mastercardRegex = regexp.MustCompile(`^5$|^5[0-5][0-9]{0,16}$`)
	amexRegex       = regexp.MustCompile(`^3$|^3[47][0-9]{0,13}$`)
	cleanRegex      = regexp.MustCompile(`[^A-Za-z0-9-]`)
	spaceHyphen     = regexp.MustCompile(`[ -]`)

	binCacheMu sync.Mutex
	binCache   = map[string]*regexp.Regexp{}
)

// binRegex compiles a domestic-scheme pattern anchored at the start of the
// card number. Patterns come from merchant configuration and change rarely,
// so compiled forms are cached.
func binRegex(pattern string) *regexp.Regexp {
	binCacheMu.Lock()
	defer binCacheMu.Unlock()
	if re, ok := binCache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(`^(` + pattern + `)`)
	if err != nil {
		return nil
	}
	binCache[pattern] = re
	return re
}

// CardType classifies a BIN into a card network. Domestic schemes are checked
// first since their ranges overlap the international prefixes. Returns ""
// when nothing matches.
func CardType(bin, madaBins, meezaBins string) string {
	if re := binRegex(madaBins); madaBins != "" && re != nil && re.MatchString(bin) {
		return CardMada
	}
	if re := binRegex(meezaBins); meezaBins != "" && re != nil && re.MatchString(bin) {
		return CardMeeza
	}
	switch {
	case visaRegex.MatchString(bin):
		return CardVisa
	case mastercardRegex.MatchString(bin):
		return CardMastercard
	case amexRegex.MatchString(bin):
		return CardAmex
	}
	return ""
}

// CleanString sanitizes descriptor fields: spaces and hyphens are removed,
// then every character outside [A-Za-z0-9-] is dropped.
func CleanString(s string) string {
	s = spaceHyphen.ReplaceAllString(s, "")
	return cleanRegex.ReplaceAllString(s, "")
}
