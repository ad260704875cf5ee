package learning

import (
	"strings"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// globalCategory is the patternstore category cross-domain promotions are
// filed under, separate from per-domain pattern categories.
const globalCategory = "global"

// universalKeywords are the intents whose AI-assisted successes are copied
// into the global patterns file regardless of domain (spec.md §4.11:
// "Cross-domain promotion").
var universalKeywords = []scoutmodel.Intent{
	"login", "submit", "search", "close", "menu",
}

// matchUniversalKeyword reports whether intent contains one of the
// universal keywords, returning the matched keyword.
func matchUniversalKeyword(intent scoutmodel.Intent) (scoutmodel.Intent, bool) {
	s := string(intent)
	for _, kw := range universalKeywords {
		if strings.Contains(s, string(kw)) {
			return kw, true
		}
	}
	return "", false
}
