package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/pcosync/internal/endpoint"
	"github.com/hitoshi/pcosync/internal/metrics"
	"github.com/hitoshi/pcosync/internal/model"
	"github.com/hitoshi/pcosync/internal/normalize"
	"github.com/hitoshi/pcosync/internal/schema"
	"github.com/hitoshi/pcosync/internal/security"
	"github.com/hitoshi/pcosync/internal/store"
)

type recordingRunLog struct {
	mu      sync.Mutex
	records []store.RunRecord
	err     error
}

func (l *recordingRunLog) InsertRunRecord(_ context.Context, rec store.RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return l.err
}

func (l *recordingRunLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// blockingFetcher は解放されるまでFetchAllをブロックする。
type blockingFetcher struct {
	release chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (f *blockingFetcher) FetchAll(_ context.Context, _ model.Credentials, _ endpoint.Definition, _ []endpoint.Filter) ([]model.RawItem, error) {
	f.once.Do(func() { close(f.entered) })
	<-f.release
	return nil, nil
}

func testRunner(t *testing.T, fetcher Fetcher, runLog RunLogger) *Runner {
	t.Helper()
	def, _ := endpoint.Lookup("funds")
	normalizer := normalize.NewNormalizer(security.NewFieldSanitizer(), schema.NullStringEmpty)
	collector := metrics.NewCollector(prometheus.NewRegistry())
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	engine := NewEngine(fetcher, newFakeStore(), normalizer, collector, logger, []endpoint.Definition{def}, 0)
	return NewRunner(context.Background(), engine, []model.Client{testClient()}, runLog, logger)
}

// 同期実行の結果がブックキーピングへ記録されることを検証
func TestRunSync_RecordsRun(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]model.RawItem{
		"funds": {fundItem("1", "General")},
	}}
	runLog := &recordingRunLog{}
	runner := testRunner(t, fetcher, runLog)

	report, err := runner.RunSync(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalInserted() != 1 {
		t.Errorf("TotalInserted = %d, want 1", report.TotalInserted())
	}
	if runLog.count() != 1 {
		t.Fatalf("records = %d, want 1", runLog.count())
	}
	rec := runLog.records[0]
	if rec.ID != report.RunID {
		t.Errorf("record ID = %q, want %q", rec.ID, report.RunID)
	}
	if rec.Inserted != 1 {
		t.Errorf("record Inserted = %d, want 1", rec.Inserted)
	}
}

// 実行中の再起動要求がErrRunInProgressで拒否されることを検証
func TestRunSync_RejectsConcurrentRun(t *testing.T) {
	fetcher := &blockingFetcher{
		release: make(chan struct{}),
		entered: make(chan struct{}),
	}
	runner := testRunner(t, fetcher, &recordingRunLog{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.RunSync(context.Background())
	}()

	<-fetcher.entered

	if _, err := runner.RunSync(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("err = %v, want ErrRunInProgress", err)
	}
	if err := runner.TriggerAsync(); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("TriggerAsync err = %v, want ErrRunInProgress", err)
	}

	close(fetcher.release)
	<-done

	// 完了後は再び起動できる
	if _, err := runner.RunSync(context.Background()); err != nil {
		t.Errorf("post-completion RunSync failed: %v", err)
	}
}

// 記録の失敗が同期実行の成否に影響しないことを検証
func TestRunSync_RecordFailureIsNonFatal(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]model.RawItem{}}
	runLog := &recordingRunLog{err: errors.New("sync_runs unavailable")}
	runner := testRunner(t, fetcher, runLog)

	if _, err := runner.RunSync(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// 前日UTC 0時の計算を検証
func TestYesterday(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 30, 45, 0, time.FixedZone("JST", 9*3600))
	got := Yesterday(now)
	want := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Yesterday = %v, want %v", got, want)
	}

	// 月初はUTC基準で前月末日になる
	firstOfMonth := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	if got := Yesterday(firstOfMonth); got.Day() != 29 || got.Month() != 2 {
		t.Errorf("Yesterday(月初) = %v, want 2024-02-29", got)
	}
}
