package fund

import (
	"regexp"
	"strings"

	"github.com/bobmcallan/growthfund/internal/models"
)

var companySuffixes = []*regexp.Regexp{
	regexp.MustCompile(`\s+CLASS\s+[ABC]\b`),
	regexp.MustCompile(`\s+SERIES\s+[ABC]\b`),
	regexp.MustCompile(`\s+\(.*\)$`),
	regexp.MustCompile(`[\s,]+INC\.?$`),
	regexp.MustCompile(`[\s,]+LTD\.?$`),
	regexp.MustCompile(`[\s,]+CORP\.?$`),
	regexp.MustCompile(`[\s,]+PLC\.?$`),
	regexp.MustCompile(`[\s,]+LP\.?$`),
	regexp.MustCompile(`[\s,]+LLC\.?$`),
	regexp.MustCompile(`[\s,]+SA\.?$`),
	regexp.MustCompile(`[\s,]+AG\.?$`),
	regexp.MustCompile(`[\s,]+NV\.?$`),
}

// CanonicalCompanyKey maps share classes of one company to the same key:
// the upper-cased name without class, corporate suffix or trailing
// parenthetical. Suffixes are stripped until none remain, so
// "Alphabet Inc. Class C" and "Alphabet Inc (Class A)" agree. An empty
// result falls back to the ticker root.
func CanonicalCompanyKey(name, symbol string) string {
	key := strings.ToUpper(strings.TrimSpace(name))
	for {
		before := key
		for _, re := range companySuffixes {
			key = strings.TrimSpace(re.ReplaceAllString(key, ""))
		}
		if key == before {
			break
		}
	}
	if key == "" {
		key = strings.ToUpper(strings.SplitN(symbol, ".", 2)[0])
	}
	return key
}

// SelectTopK walks ranked in order and keeps the first stock of each
// company until k are chosen.
func SelectTopK(ranked []*models.StockRecord, k int) []*models.StockRecord {
	selected := make([]*models.StockRecord, 0, k)
	seen := make(map[string]bool)
	for _, st := range ranked {
		if len(selected) >= k {
			break
		}
		key := CanonicalCompanyKey(st.Name, st.Symbol)
		if seen[key] {
			continue
		}
		seen[key] = true
		selected = append(selected, st)
	}
	return selected
}

// Exclude returns pool without the given stocks' symbols, order preserved.
func Exclude(pool, remove []*models.StockRecord) []*models.StockRecord {
	drop := make(map[string]bool, len(remove))
	for _, st := range remove {
		drop[st.Symbol] = true
	}
	out := make([]*models.StockRecord, 0, len(pool))
	for _, st := range pool {
		if !drop[st.Symbol] {
			out = append(out, st)
		}
	}
	return out
}
