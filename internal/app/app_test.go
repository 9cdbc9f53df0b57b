package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/models"
	"github.com/bobmcallan/growthfund/internal/services/quarterly"
)

// writeTestConfig writes a config whose cache and output live in a temp dir.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := `environment = "test"
market = "SP500"

[storage]
cache_path = "` + filepath.ToSlash(filepath.Join(dir, "cache")) + `"
use_cache = true

[output]
path = "` + filepath.ToSlash(filepath.Join(dir, "Fund_Docs")) + `"

[logging]
level = "error"
` + extra
	path := filepath.Join(dir, "growthfund.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewApp_InitializesAllServices(t *testing.T) {
	a, err := NewApp(writeTestConfig(t, ""))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	defer a.Close()

	if a.Config == nil {
		t.Error("Config is nil")
	}
	if a.Logger == nil {
		t.Error("Logger is nil")
	}
	if a.Store == nil {
		t.Error("Store is nil")
	}
	if a.Router == nil {
		t.Error("Router is nil")
	}
	if a.Writer == nil {
		t.Error("Writer is nil")
	}
	if a.Builder == nil {
		t.Error("Builder is nil")
	}
	if a.Updater == nil {
		t.Error("Updater is nil")
	}
	if a.StartupTime.IsZero() {
		t.Error("StartupTime is zero")
	}
	if a.Config.Environment != "test" {
		t.Errorf("Environment = %q, want test", a.Config.Environment)
	}
	if _, err := os.Stat(a.Config.Storage.StocksPath()); err != nil {
		t.Errorf("stocks cache dir not created: %v", err)
	}
}

func TestNewApp_RejectsInvalidConfig(t *testing.T) {
	_, err := NewApp(writeTestConfig(t, "\n[fund]\nweights = [0.5, 0.5]\n"))
	if err == nil {
		t.Fatal("expected error for bad weights")
	}
	if !errors.Is(err, common.ErrConfiguration) {
		t.Errorf("error = %v, want ErrConfiguration", err)
	}
	if !strings.Contains(err.Error(), "fund.weights") {
		t.Errorf("error %q does not name the setting", err)
	}
}

func TestResolveConfigPath_PrefersExplicitThenEnv(t *testing.T) {
	t.Setenv("GROWTHFUND_CONFIG", "/etc/growthfund/env.toml")
	if got := ResolveConfigPath("custom.toml"); got != "custom.toml" {
		t.Errorf("explicit path = %q", got)
	}
	if got := ResolveConfigPath(""); got != "/etc/growthfund/env.toml" {
		t.Errorf("env path = %q", got)
	}
}

type fakeUpdater struct {
	mu   sync.Mutex
	reqs []quarterly.Request
	errs map[string]error
}

func (f *fakeUpdater) Update(ctx context.Context, req quarterly.Request) (*quarterly.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if err := f.errs[req.Market]; err != nil {
		return nil, err
	}
	return &quarterly.Result{
		Market: models.MarketSP500,
		Period: req.Period,
		Fund:   &models.Fund{Name: common.FundName(req.Market, req.Period)},
	}, nil
}

func TestScheduler_RunOnceUpdatesEachMarket(t *testing.T) {
	up := &fakeUpdater{errs: map[string]error{
		"SP500": errors.New("no earlier fund"),
	}}
	s, err := NewScheduler("0 6 2 1,4,7,10 *", []string{"SP500", "TASE125"}, up, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	s.now = func() time.Time { return time.Date(2025, 4, 2, 6, 0, 0, 0, time.UTC) }

	failed := s.RunOnce(context.Background())

	if len(up.reqs) != 2 {
		t.Fatalf("updates = %d, want 2", len(up.reqs))
	}
	for _, r := range up.reqs {
		if r.Period.String() != "Q2_2025" {
			t.Errorf("%s period = %s, want Q2_2025", r.Market, r.Period)
		}
		if r.DryRun {
			t.Errorf("%s scheduled run is a dry run", r.Market)
		}
	}
	if len(failed) != 1 || failed["SP500"] == nil {
		t.Errorf("failed = %v, want SP500 only", failed)
	}
}

func TestScheduler_RunOnceStopsOnCancelledContext(t *testing.T) {
	up := &fakeUpdater{}
	s, err := NewScheduler("@daily", []string{"SP500", "TASE125"}, up, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	failed := s.RunOnce(ctx)
	if len(up.reqs) != 0 {
		t.Errorf("updates = %d, want 0", len(up.reqs))
	}
	if len(failed) != 2 {
		t.Errorf("failed = %v, want both markets", failed)
	}
}

func TestNewScheduler_Validation(t *testing.T) {
	if _, err := NewScheduler("not a cron", []string{"SP500"}, &fakeUpdater{}, nil); !errors.Is(err, common.ErrConfiguration) {
		t.Errorf("bad spec error = %v, want ErrConfiguration", err)
	}
	if _, err := NewScheduler("0 6 2 1,4,7,10 *", nil, &fakeUpdater{}, nil); !errors.Is(err, common.ErrConfiguration) {
		t.Errorf("no markets error = %v, want ErrConfiguration", err)
	}
}

func TestScheduler_QuarterStartSchedule(t *testing.T) {
	s, err := NewScheduler("0 6 2 1,4,7,10 *", []string{"SP500"}, &fakeUpdater{}, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	from := time.Date(2025, 2, 10, 12, 0, 0, 0, time.Local)
	want := time.Date(2025, 4, 2, 6, 0, 0, 0, time.Local)
	if got := s.NextAfter(from); !got.Equal(want) {
		t.Errorf("next run = %v, want %v", got, want)
	}
	if got := s.NextAfter(want); !got.Equal(time.Date(2025, 7, 2, 6, 0, 0, 0, time.Local)) {
		t.Errorf("following run = %v", got)
	}
}

func TestApp_StartSchedulerAndClose(t *testing.T) {
	a, err := NewApp(writeTestConfig(t, ""))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := a.StartScheduler(ctx)
	if err != nil {
		t.Fatalf("StartScheduler failed: %v", err)
	}
	if next := s.Next(); !next.After(time.Now()) {
		t.Errorf("next run %v is not in the future", next)
	}

	a.Close()
	a.Close()
}
