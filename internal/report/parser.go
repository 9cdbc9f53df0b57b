package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/bobmcallan/growthfund/internal/models"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// nodeText concatenates the literal text under n.
func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteString("\n")
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// tableRows returns the body rows of a table as cell strings. The header
// row is returned separately.
func tableRows(t *extast.Table, src []byte) (header []string, rows [][]string) {
	for c := t.FirstChild(); c != nil; c = c.NextSibling() {
		var cells []string
		for cc := c.FirstChild(); cc != nil; cc = cc.NextSibling() {
			cells = append(cells, nodeText(cc, src))
		}
		switch c.(type) {
		case *extast.TableHeader:
			header = cells
		case *extast.TableRow:
			rows = append(rows, cells)
		}
	}
	return header, rows
}

// ParseUpdate reads an update document. At most topBase and topPotential
// ranked rows are kept; zero keeps all. Rows that do not parse are skipped.
func ParseUpdate(src []byte, topBase, topPotential int) (*UpdateDoc, error) {
	root := markdown.Parser().Parse(text.NewReader(src))
	doc := &UpdateDoc{}
	section := ""
	var found bool

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := nodeText(node, src)
			switch node.Level {
			case 1:
				if strings.HasPrefix(title, updateTitlePrefix) {
					doc.FundName = strings.TrimSpace(strings.TrimPrefix(title, updateTitlePrefix))
					found = true
				}
			case 2:
				section = title
			}
		case *ast.Paragraph:
			body := nodeText(node, src)
			if strings.HasPrefix(body, updatedPrefix) && doc.Date == "" {
				doc.Date = strings.TrimSpace(strings.TrimPrefix(body, updatedPrefix))
			}
		case *extast.Table:
			_, rows := tableRows(node, src)
			switch section {
			case HeadingBase:
				doc.Base = parseRanked(rows, topBase)
			case HeadingPotential:
				doc.Potential = parseRanked(rows, topPotential)
			case HeadingComposition:
				doc.Composition = parseComposition(rows)
			case HeadingFilterStats:
				doc.Stats = parseFilterStats(rows)
			}
		}
	}

	if !found {
		return nil, fmt.Errorf("not an update document: missing %q title", "# "+updateTitlePrefix)
	}
	return doc, nil
}

func parseRanked(rows [][]string, limit int) []RankedEntry {
	var out []RankedEntry
	for _, r := range rows {
		if len(r) < 4 {
			continue
		}
		rank, err := strconv.Atoi(r[0])
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(r[3], 64)
		if err != nil {
			continue
		}
		out = append(out, RankedEntry{Rank: rank, Name: r[1], Symbol: r[2], Score: score})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func parsePercent(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
	if err != nil {
		return 0, err
	}
	return v / 100, nil
}

func parseComposition(rows [][]string) []CompositionEntry {
	var out []CompositionEntry
	for _, r := range rows {
		if len(r) < 7 {
			continue
		}
		weight, err := parsePercent(r[3])
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(r[4], 64)
		if err != nil {
			continue
		}
		price, err := strconv.ParseFloat(r[5], 64)
		if err != nil {
			continue
		}
		shares, err := strconv.Atoi(r[6])
		if err != nil {
			continue
		}
		out = append(out, CompositionEntry{
			Name:   r[0],
			Symbol: r[1],
			Type:   models.PositionType(r[2]),
			Weight: weight,
			Score:  score,
			Price:  price,
			Shares: shares,
		})
	}
	return out
}

func parseFilterStats(rows [][]string) *FilterStats {
	s := &FilterStats{}
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		n, err := strconv.Atoi(r[1])
		if err != nil {
			continue
		}
		switch strings.ToLower(r[0]) {
		case "total":
			s.Total = n
		case "base eligible":
			s.BaseEligible = n
		case "potential eligible":
			s.PotentialEligible = n
		case "rejected":
			s.Rejected = n
		}
	}
	return s
}
