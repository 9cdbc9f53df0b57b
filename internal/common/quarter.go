package common

import (
	"fmt"
	"strings"
	"time"
)

// Quarter is a calendar quarter, 1 to 4.
type Quarter int

func (q Quarter) String() string {
	return fmt.Sprintf("Q%d", int(q))
}

// ParseQuarter accepts "Q1".."Q4" (any case) or "1".."4".
func ParseQuarter(s string) (Quarter, error) {
	s = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "Q")
	if len(s) == 1 && s[0] >= '1' && s[0] <= '4' {
		return Quarter(s[0] - '0'), nil
	}
	return 0, fmt.Errorf("%w: invalid quarter %q, want Q1-Q4", ErrConfiguration, s)
}

// QuarterOf returns the quarter containing t.
func QuarterOf(t time.Time) Quarter {
	return Quarter((int(t.Month())-1)/3 + 1)
}

// Period identifies a fund generation period.
type Period struct {
	Quarter Quarter
	Year    int
}

func (p Period) String() string {
	return fmt.Sprintf("%s_%d", p.Quarter, p.Year)
}

// Previous returns the period before p.
func (p Period) Previous() Period {
	if p.Quarter == 1 {
		return Period{Quarter: 4, Year: p.Year - 1}
	}
	return Period{Quarter: p.Quarter - 1, Year: p.Year}
}

// ResolvePeriod fills missing quarter or year from now.
func ResolvePeriod(quarter string, year int, now time.Time) (Period, error) {
	p := Period{Quarter: QuarterOf(now), Year: now.Year()}
	if quarter != "" {
		q, err := ParseQuarter(quarter)
		if err != nil {
			return Period{}, err
		}
		p.Quarter = q
	}
	if year != 0 {
		if year < 2000 || year > 2100 {
			return Period{}, fmt.Errorf("%w: year %d out of range 2000-2100", ErrConfiguration, year)
		}
		p.Year = year
	}
	return p, nil
}

// FundName returns the canonical fund name, e.g. Fund_10_SP500_Q1_2025.
func FundName(market string, p Period) string {
	return fmt.Sprintf("Fund_10_%s_%s_%d", market, p.Quarter, p.Year)
}
