package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/devicelab-dev/flowtest/pkg/core"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func suiteOf(outcomes map[string]bool, order ...string) *core.SuiteResult {
	suite := core.NewSuiteResult()
	for _, name := range order {
		res := core.ScenarioResult{
			Scenario: name,
			Passed:   outcomes[name],
			Duration: 1200,
			Steps:    []core.StepResult{{Index: 1, Status: core.StatusPassed}},
			Errors:   []core.StepError{},
		}
		if !res.Passed {
			res.Errors = append(res.Errors, core.StepError{Step: 1, Action: "click", Error: "element not found: #go"})
		}
		suite.Add("US-001", res)
	}
	return suite
}

func TestRecordAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	started := time.UnixMilli(1700000000000)

	video := "/videos/01HZZ"
	suite := suiteOf(map[string]bool{"Login": true, "Logout": false}, "Login", "Logout")
	suite.Scenarios[0].Video = &video

	run, err := store.Record(ctx, RunInfo{
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Source:     "prd.json",
		BaseURL:    "http://localhost:3000",
		Driver:     "chrome",
	}, suite)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(run.ID) != 26 {
		t.Errorf("run ID %q is not a ULID", run.ID)
	}
	if run.PassRate() != 50 {
		t.Errorf("PassRate = %v", run.PassRate())
	}

	got, err := store.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Source != "prd.json" || got.Driver != "chrome" || got.Total != 2 || got.Failed != 1 {
		t.Errorf("run = %+v", got)
	}
	if !got.StartedAt.Equal(started) || got.FinishedAt.Sub(got.StartedAt) != 3*time.Second {
		t.Errorf("timing = %v..%v", got.StartedAt, got.FinishedAt)
	}

	scenarios, err := store.Scenarios(ctx, run.ID)
	if err != nil {
		t.Fatalf("Scenarios: %v", err)
	}
	if len(scenarios) != 2 {
		t.Fatalf("expected 2 scenarios, got %d", len(scenarios))
	}
	if scenarios[0].Scenario != "Login" || !scenarios[0].Passed || scenarios[0].Video != video {
		t.Errorf("first scenario = %+v", scenarios[0])
	}
	if scenarios[1].Passed || scenarios[1].FirstError != "element not found: #go" || scenarios[1].Steps != 1 {
		t.Errorf("second scenario = %+v", scenarios[1])
	}
}

func TestGet_NotFound(t *testing.T) {
	store := openStore(t)
	if _, err := store.Get(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestRecentAndPrune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1700000000000)

	var ids []string
	for i := 0; i < 5; i++ {
		run, err := store.Record(ctx, RunInfo{StartedAt: base.Add(time.Duration(i) * time.Minute)},
			suiteOf(map[string]bool{"Login": i%2 == 0}, "Login"))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, run.ID)
	}

	recent, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 || recent[0].ID != ids[4] || recent[2].ID != ids[2] {
		t.Errorf("recent order wrong: %+v", recent)
	}

	removed, err := store.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	all, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 runs after prune, got %d", len(all))
	}

	// scenario rows cascade with their run
	orphans, err := store.Scenarios(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 0 {
		t.Errorf("expected pruned run's scenarios removed, got %d", len(orphans))
	}
}

func TestStats(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1700000000000)

	outcomes := []map[string]bool{
		{"Login": true, "Search": true, "Checkout": false},
		{"Login": true, "Search": false, "Checkout": false},
		{"Login": true, "Search": true, "Checkout": false},
	}
	for i, o := range outcomes {
		if _, err := store.Record(ctx, RunInfo{StartedAt: base.Add(time.Duration(i) * time.Minute)},
			suiteOf(o, "Login", "Search", "Checkout")); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := store.Stats(ctx, 0)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("expected 3 scenarios, got %d", len(stats))
	}

	tests := []struct {
		scenario string
		passed   int
		flaky    bool
	}{
		{"Checkout", 0, false},
		{"Search", 2, true},
		{"Login", 3, false},
	}
	for i, tt := range tests {
		st := stats[i]
		if st.Scenario != tt.scenario || st.Runs != 3 || st.Passed != tt.passed || st.Flaky() != tt.flaky {
			t.Errorf("stats[%d] = %+v, want %s passed=%d flaky=%t", i, st, tt.scenario, tt.passed, tt.flaky)
		}
	}
	if !stats[0].LastRun.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("LastRun = %v", stats[0].LastRun)
	}

	// only the newest run
	latest, err := store.Stats(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, st := range latest {
		if st.Runs != 1 {
			t.Errorf("%s runs = %d, want 1", st.Scenario, st.Runs)
		}
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Error("expected error for empty path")
	}
}
