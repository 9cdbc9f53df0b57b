package report

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/growthfund/internal/models"
)

// FormatMoney formats an amount in the currency's display form, for
// example $1,234.50 or ₪1,234.50.
func FormatMoney(amount float64, currency string) string {
	cur := *money.New(0, currency).Currency()
	minor := decimal.NewFromFloat(amount).Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

// formatPercent renders a 0-1 fraction with one decimal, "18.0%".
func formatPercent(fraction float64) string {
	return decimal.NewFromFloat(fraction).Shift(2).StringFixed(1) + "%"
}

func percentOf(n, total int) string {
	if total == 0 {
		return formatPercent(0)
	}
	return formatPercent(float64(n) / float64(total))
}

// cell keeps table cells on one line and free of column separators.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "/")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func writeRow(b *strings.Builder, cells ...string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(c)
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

func writeHeader(b *strings.Builder, cells ...string) {
	writeRow(b, cells...)
	seps := make([]string, len(cells))
	for i, c := range cells {
		seps[i] = strings.Repeat("-", len(c))
	}
	writeRow(b, seps...)
}

// RenderRanked renders a ranked candidates table.
func RenderRanked(entries []RankedEntry) string {
	var b strings.Builder
	writeHeader(&b, "Rank", "Name", "Symbol", "Score")
	for _, e := range entries {
		writeRow(&b, fmt.Sprint(e.Rank), cell(e.Name), cell(e.Symbol), fmt.Sprintf("%.2f", e.Score))
	}
	return b.String()
}

// RenderComposition renders the final composition table.
func RenderComposition(entries []CompositionEntry) string {
	var b strings.Builder
	writeHeader(&b, "Name", "Symbol", "Type", "Weight", "Score", "Price", "Shares")
	for _, e := range entries {
		writeRow(&b,
			cell(e.Name),
			cell(e.Symbol),
			string(e.Type),
			formatPercent(e.Weight),
			fmt.Sprintf("%.2f", e.Score),
			fmt.Sprintf("%.2f", e.Price),
			fmt.Sprint(e.Shares),
		)
	}
	return b.String()
}

// RenderFilterStats renders the eligibility counts table.
func RenderFilterStats(s FilterStats) string {
	var b strings.Builder
	writeHeader(&b, "Metric", "Count", "Percent")
	writeRow(&b, "Total", fmt.Sprint(s.Total), percentOf(s.Total, s.Total))
	writeRow(&b, "Base eligible", fmt.Sprint(s.BaseEligible), percentOf(s.BaseEligible, s.Total))
	writeRow(&b, "Potential eligible", fmt.Sprint(s.PotentialEligible), percentOf(s.PotentialEligible, s.Total))
	writeRow(&b, "Rejected", fmt.Sprint(s.Rejected), percentOf(s.Rejected, s.Total))
	return b.String()
}

// RenderUpdate renders a <Fund>_Update.md document.
func RenderUpdate(doc UpdateDoc) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s%s\n\n", updateTitlePrefix, doc.FundName)
	fmt.Fprintf(&b, "%s %s\n\n", updatedPrefix, doc.Date)

	if doc.Stats != nil {
		fmt.Fprintf(&b, "## %s\n\n", HeadingFilterStats)
		b.WriteString(RenderFilterStats(*doc.Stats))
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## %s\n\n", HeadingBase)
	b.WriteString(RenderRanked(doc.Base))
	fmt.Fprintf(&b, "\n## %s\n\n", HeadingPotential)
	b.WriteString(RenderRanked(doc.Potential))
	fmt.Fprintf(&b, "\n## %s\n\n", HeadingComposition)
	b.WriteString(RenderComposition(doc.Composition))
	return b.String()
}

// RenderFund renders the <Fund>.md document. kind describes how the fund
// was produced.
func RenderFund(f *models.Fund, market models.Market, kind, date string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", f.Name)
	fmt.Fprintf(&b, "Created: %s  \n", date)
	fmt.Fprintf(&b, "Market: %s  \n", market.ID)
	fmt.Fprintf(&b, "Type: %s  \n", kind)
	fmt.Fprintf(&b, "Fund ID: %s\n\n", f.ID)
	b.WriteString(RenderComposition(CompositionFrom(f)))
	fmt.Fprintf(&b, "\nMinimum cost per fund unit: %s\n", FormatMoney(f.MinimumCost, market.Currency))
	return b.String()
}

func arrow(r Retained) string {
	switch {
	case !r.WeightChanged:
		return "="
	case r.NewWeight > r.OldWeight:
		return "up"
	default:
		return "down"
	}
}

// RenderComparison renders the <Fund>_Comparison.md document.
func RenderComparison(d Diff, fundName, date string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Quarterly Comparison %s\n\n", fundName)
	fmt.Fprintf(&b, "From: %s (%s)  \n", d.PreviousFund, d.PreviousDate)
	fmt.Fprintf(&b, "To: %s (%s)\n\n", fundName, date)

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Added: %d\n", len(d.Added))
	fmt.Fprintf(&b, "- Removed: %d\n", len(d.Removed))
	fmt.Fprintf(&b, "- Retained: %d\n", len(d.Retained))

	if len(d.Added) > 0 {
		b.WriteString("\n## Added\n\n")
		writeHeader(&b, "Symbol", "Name", "Type", "Weight", "Score")
		for _, c := range d.Added {
			writeRow(&b, cell(c.Symbol), cell(c.Name), string(c.Type), formatPercent(c.Weight), fmt.Sprintf("%.2f", c.Score))
		}
	}
	if len(d.Removed) > 0 {
		b.WriteString("\n## Removed\n\n")
		writeHeader(&b, "Symbol", "Name", "Type", "Previous Weight", "Previous Score")
		for _, c := range d.Removed {
			writeRow(&b, cell(c.Symbol), cell(c.Name), string(c.Type), formatPercent(c.Weight), fmt.Sprintf("%.2f", c.Score))
		}
	}
	if len(d.Retained) > 0 {
		b.WriteString("\n## Retained\n\n")
		writeHeader(&b, "Symbol", "Name", "Previous Weight", "New Weight", "Previous Score", "New Score", "Change")
		for _, r := range d.Retained {
			writeRow(&b, cell(r.Symbol), cell(r.Name),
				formatPercent(r.OldWeight), formatPercent(r.NewWeight),
				fmt.Sprintf("%.2f", r.OldScore), fmt.Sprintf("%.2f", r.NewScore),
				arrow(r))
		}
	}
	return b.String()
}

// changelogHeader starts a new CHANGELOG.md.
const changelogHeader = "# Growth Fund 10 Changelog\n\nComposition changes across quarters, oldest first.\n\n---\n\n"

// RenderChangelogEntry renders one CHANGELOG.md entry.
func RenderChangelogEntry(d Diff, fundName string, minimumCost float64, currency, date string) string {
	var summary string
	switch {
	case len(d.Added) == 0 && len(d.Removed) == 0:
		summary = "no composition changes"
	default:
		var parts []string
		if len(d.Added) > 0 {
			parts = append(parts, fmt.Sprintf("%d added", len(d.Added)))
		}
		if len(d.Removed) > 0 {
			parts = append(parts, fmt.Sprintf("%d removed", len(d.Removed)))
		}
		summary = strings.Join(parts, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### [%s] %s: %s\n\n", date, fundName, summary)
	fmt.Fprintf(&b, "**Updated from:** %s (%s)\n\n", d.PreviousFund, d.PreviousDate)
	for _, c := range d.Added {
		fmt.Fprintf(&b, "- **+** %s (%s), %s, %s, score %.2f\n", c.Name, c.Symbol, c.Type, formatPercent(c.Weight), c.Score)
	}
	for _, c := range d.Removed {
		fmt.Fprintf(&b, "- **-** %s (%s), %s, %s\n", c.Name, c.Symbol, c.Type, formatPercent(c.Weight))
	}
	if len(d.Added) == 0 && len(d.Removed) == 0 {
		b.WriteString("- No changes\n")
	}
	fmt.Fprintf(&b, "\n**Minimum cost:** %s\n\n---\n\n", FormatMoney(minimumCost, currency))
	return b.String()
}
