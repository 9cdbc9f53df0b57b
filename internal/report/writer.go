package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/storage/cachefs"
)

const (
	updateSuffix     = "_Update.md"
	comparisonSuffix = "_Comparison.md"
	changelogName    = "CHANGELOG.md"
)

// Writer places artifacts under <root>/<MARKET>/<Q>_<YEAR>/.
type Writer struct {
	root   string
	logger *common.Logger
}

// NewWriter creates a writer rooted at the output directory.
func NewWriter(root string, logger *common.Logger) *Writer {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Writer{root: root, logger: logger}
}

// Root returns the output directory.
func (w *Writer) Root() string {
	return w.root
}

// FundDir returns the directory holding one period's artifacts.
func (w *Writer) FundDir(market string, p common.Period) string {
	return filepath.Join(w.root, strings.ToUpper(market), p.String())
}

// FundPath returns the path of the <Fund>.md document.
func (w *Writer) FundPath(market string, p common.Period) string {
	return filepath.Join(w.FundDir(market, p), common.FundName(market, p)+".md")
}

// UpdatePath returns the path of the <Fund>_Update.md document.
func (w *Writer) UpdatePath(market string, p common.Period) string {
	return filepath.Join(w.FundDir(market, p), common.FundName(market, p)+updateSuffix)
}

// ComparisonPath returns the path of the <Fund>_Comparison.md document.
func (w *Writer) ComparisonPath(market string, p common.Period) string {
	return filepath.Join(w.FundDir(market, p), common.FundName(market, p)+comparisonSuffix)
}

// ChangelogPath returns the per-market changelog.
func (w *Writer) ChangelogPath(market string) string {
	return filepath.Join(w.root, strings.ToUpper(market), changelogName)
}

func (w *Writer) write(path, content string) error {
	if err := cachefs.WriteFileAtomic(filepath.Dir(path), filepath.Base(path), []byte(content)); err != nil {
		return err
	}
	w.logger.Info().Str("path", path).Msg("Artifact written")
	return nil
}

// Artifacts holds the documents of one run. Empty documents are skipped.
type Artifacts struct {
	Fund       string
	Update     string
	Comparison string
}

// Write stores a run's documents and returns the paths written.
func (w *Writer) Write(market string, p common.Period, a Artifacts) ([]string, error) {
	var written []string
	for _, doc := range []struct {
		path    string
		content string
	}{
		{w.FundPath(market, p), a.Fund},
		{w.UpdatePath(market, p), a.Update},
		{w.ComparisonPath(market, p), a.Comparison},
	} {
		if doc.content == "" {
			continue
		}
		if err := w.write(doc.path, doc.content); err != nil {
			return written, err
		}
		written = append(written, doc.path)
	}
	return written, nil
}

// AppendChangelog adds an entry to the market's changelog, creating it
// with a header when missing. Entries are kept oldest first.
func (w *Writer) AppendChangelog(market, entry string) (string, error) {
	path := w.ChangelogPath(market)
	content := changelogHeader
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		content = string(data)
	case !os.IsNotExist(err):
		return "", fmt.Errorf("failed to read changelog %s: %w", path, err)
	}
	if err := w.write(path, content+entry); err != nil {
		return "", err
	}
	return path, nil
}

// PriorUpdate locates an earlier period's update document.
type PriorUpdate struct {
	Period common.Period
	Path   string
}

func periodKey(p common.Period) int {
	return p.Year*4 + int(p.Quarter) - 1
}

// parsePeriodDir reads a Qn_YYYY directory name.
func parsePeriodDir(name string) (common.Period, bool) {
	q, y, ok := strings.Cut(name, "_")
	if !ok || len(q) != 2 || q[0] != 'Q' {
		return common.Period{}, false
	}
	quarter, err := common.ParseQuarter(q)
	if err != nil {
		return common.Period{}, false
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return common.Period{}, false
	}
	return common.Period{Quarter: quarter, Year: year}, true
}

// FindPrevious returns the latest update document for market from a period
// strictly before current. A missing market directory or no earlier update
// returns common.ErrNotFound.
func (w *Writer) FindPrevious(market string, current common.Period) (*PriorUpdate, error) {
	dir := filepath.Join(w.root, strings.ToUpper(market))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no artifacts for %s in %s: %w", market, w.root, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var periods []common.Period
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, ok := parsePeriodDir(e.Name())
		if ok && periodKey(p) < periodKey(current) {
			periods = append(periods, p)
		}
	}
	sort.Slice(periods, func(i, j int) bool { return periodKey(periods[i]) > periodKey(periods[j]) })

	for _, p := range periods {
		matches, err := filepath.Glob(filepath.Join(dir, p.String(), "*"+updateSuffix))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			w.logger.Debug().Str("period", p.String()).Msg("Period has no update document")
			continue
		}
		sort.Strings(matches)
		return &PriorUpdate{Period: p, Path: matches[0]}, nil
	}
	return nil, fmt.Errorf("no update document for %s before %s: %w", market, current, common.ErrNotFound)
}

// LoadUpdate reads and parses an update document.
func LoadUpdate(path string, topBase, topPotential int) (*UpdateDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, err := ParseUpdate(data, topBase, topPotential)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
