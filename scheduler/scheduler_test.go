package scheduler

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"daily-report-assistant/feishu"
	"daily-report-assistant/models"
	"daily-report-assistant/utils"
)

type fakeNotifier struct {
	mu      sync.Mutex
	connOK  bool
	calls   map[models.Period]int
	results map[models.Period]feishu.SubmitResult
	entered chan models.Period
	release chan struct{}
	sent    []sentReport
	sendErr error
}

type sentReport struct {
	chatID, text, format, label string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		connOK:  true,
		calls:   map[models.Period]int{},
		results: map[models.Period]feishu.SubmitResult{},
	}
}

func (f *fakeNotifier) TestConnection(ctx context.Context) feishu.ConnectionResult {
	if f.connOK {
		return feishu.ConnectionResult{Success: true, Message: "ok"}
	}
	return feishu.ConnectionResult{Message: "bad credentials"}
}

func (f *fakeNotifier) SubmitCadence(ctx context.Context, chatID string, period models.Period, generate feishu.GenerateFunc) (feishu.SubmitResult, bool) {
	f.mu.Lock()
	f.calls[period]++
	res, ok := f.results[period]
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- period
	}
	if f.release != nil {
		<-f.release
	}
	return res, ok
}

func (f *fakeNotifier) Deadline(period models.Period, now time.Time) feishu.DeadlineInfo {
	return feishu.DefaultSchedule.Deadline(period, now)
}

func (f *fakeNotifier) SendReport(ctx context.Context, chatID, text, format, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentReport{chatID: chatID, text: text, format: format, label: label})
	return f.sendErr
}

func (f *fakeNotifier) callCount(p models.Period) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[p]
}

func (f *fakeNotifier) set(p models.Period, success bool) {
	f.mu.Lock()
	f.results[p] = feishu.SubmitResult{Period: p, Label: p.Label(), Success: success}
	f.mu.Unlock()
}

type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               {}

func newTestStore(t *testing.T) *utils.ConfigStore {
	t.Helper()
	store := utils.NewConfigStore(filepath.Join(t.TempDir(), "work_logs.json"), utils.NewLoggerWriter(io.Discard))
	cfg := store.FeishuConfig()
	cfg.Enabled = true
	cfg.AppID = "cli_1"
	cfg.AppSecret = "secret"
	cfg.ChatID = "oc_1"
	cfg.AutoReportEnabled = true
	cfg.CheckInterval = 5
	if err := store.UpdateFeishuConfig(cfg); err != nil {
		t.Fatal(err)
	}
	return store
}

func noGenerate(ctx context.Context, p models.Period) (string, error) { return "", nil }

func newTestScheduler(store Store, n *fakeNotifier, clock utils.Clock, ticker Ticker) *Scheduler {
	opts := Options{
		Clock:       clock,
		Logger:      utils.NewLoggerWriter(io.Discard),
		StopTimeout: time.Second,
		NewNotifier: func(utils.FeishuConfig) (Notifier, error) { return n, nil },
	}
	if ticker != nil {
		opts.NewTicker = func(time.Duration) Ticker { return ticker }
	}
	return New(store, noGenerate, opts)
}

func TestStart_RequiresEnabledFeishu(t *testing.T) {
	store := newTestStore(t)
	cfg := store.FeishuConfig()
	cfg.Enabled = false
	store.UpdateFeishuConfig(cfg)

	s := newTestScheduler(store, newFakeNotifier(), nil, nil)
	if err := s.Start(context.Background()); !errors.Is(err, ErrFeishuDisabled) {
		t.Errorf("Expected ErrFeishuDisabled, got %v", err)
	}
	if s.Running() {
		t.Errorf("Scheduler must stay stopped")
	}
}

func TestStart_RequiresSuccessfulConnection(t *testing.T) {
	n := newFakeNotifier()
	n.connOK = false
	s := newTestScheduler(newTestStore(t), n, nil, nil)

	if err := s.Start(context.Background()); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Expected ErrConnectionFailed, got %v", err)
	}
	if s.Running() {
		t.Errorf("Scheduler must stay stopped")
	}
	if _, err := s.NextDeadlines(); err == nil {
		t.Errorf("NextDeadlines needs a connected notifier")
	}
}

func TestCheck_SuppressesSameDayDuplicates(t *testing.T) {
	store := newTestStore(t)
	n := newFakeNotifier()
	n.set(models.PeriodDaily, true)
	clock := utils.NewFixedClock(time.Date(2024, 6, 5, 17, 0, 0, 0, time.Local))
	s := newTestScheduler(store, n, clock, nil)
	ctx := context.Background()

	res := s.ForceCheck(ctx)
	if !res.Success || len(res.Results) != 1 {
		t.Fatalf("Unexpected first check %+v", res)
	}
	status := store.SubmitStatus()
	if status.LastDailySubmit != "2024-06-05" || status.LastSubmitDate != "2024-06-05" || status.SubmitCount != 1 {
		t.Errorf("Submit status not updated: %+v", status)
	}

	s.ForceCheck(ctx)
	if n.callCount(models.PeriodDaily) != 1 {
		t.Errorf("Daily cadence re-triggered on the same day")
	}
	if n.callCount(models.PeriodWeekly) != 2 {
		t.Errorf("Other cadences should still be checked, got %d", n.callCount(models.PeriodWeekly))
	}

	clock.Advance(24 * time.Hour)
	s.ForceCheck(ctx)
	if n.callCount(models.PeriodDaily) != 2 {
		t.Errorf("Daily cadence should run again the next day")
	}
}

func TestCheck_FailuresAreIsolated(t *testing.T) {
	store := newTestStore(t)
	n := newFakeNotifier()
	n.set(models.PeriodDaily, false)
	n.set(models.PeriodWeekly, true)
	s := newTestScheduler(store, n, utils.NewFixedClock(time.Date(2024, 6, 7, 20, 30, 0, 0, time.Local)), nil)

	var got []feishu.SubmitResult
	s.opts.OnResult = func(r feishu.SubmitResult) { got = append(got, r) }

	s.ForceCheck(context.Background())
	if len(got) != 2 || got[0].Success || !got[1].Success {
		t.Errorf("Unexpected results %+v", got)
	}
	status := store.SubmitStatus()
	if status.LastDailySubmit != "" || status.LastWeeklySubmit != "2024-06-07" {
		t.Errorf("Only the weekly cadence should be marked: %+v", status)
	}
}

func TestCheck_SkipsWhenAutoReportDisabled(t *testing.T) {
	store := newTestStore(t)
	cfg := store.FeishuConfig()
	cfg.AutoReportEnabled = false
	store.UpdateFeishuConfig(cfg)
	n := newFakeNotifier()
	s := newTestScheduler(store, n, nil, nil)

	res := s.ForceCheck(context.Background())
	if !res.Success || len(res.Results) != 0 || n.callCount(models.PeriodDaily) != 0 {
		t.Errorf("Nothing should be submitted: %+v", res)
	}
}

func TestWake_CheckIntervalIsReread(t *testing.T) {
	store := newTestStore(t)
	n := newFakeNotifier()
	clock := utils.NewFixedClock(time.Date(2024, 6, 5, 10, 0, 0, 0, time.Local))
	s := newTestScheduler(store, n, clock, nil)
	s.notifier = n
	ctx := context.Background()

	s.wake(ctx)
	if n.callCount(models.PeriodDaily) != 1 {
		t.Fatalf("First wake should check")
	}

	clock.Advance(time.Minute)
	s.wake(ctx)
	if n.callCount(models.PeriodDaily) != 1 {
		t.Errorf("Check ran before the 5 minute interval")
	}

	cfg := store.FeishuConfig()
	cfg.CheckInterval = 1
	store.UpdateFeishuConfig(cfg)
	s.wake(ctx)
	if n.callCount(models.PeriodDaily) != 2 {
		t.Errorf("New check interval should apply without restart")
	}
}

func TestLoop_StartWakeStop(t *testing.T) {
	store := newTestStore(t)
	n := newFakeNotifier()
	n.set(models.PeriodDaily, false)
	n.entered = make(chan models.Period, 16)
	clock := utils.NewFixedClock(time.Date(2024, 6, 5, 17, 0, 0, 0, time.Local))
	ticker := &fakeTicker{ch: make(chan time.Time)}
	s := newTestScheduler(store, n, clock, ticker)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}

	waitFor(t, n.entered, models.PeriodDaily)

	clock.Advance(5 * time.Minute)
	ticker.ch <- clock.Now()
	waitFor(t, n.entered, models.PeriodDaily)

	if err := s.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if s.Running() {
		t.Errorf("Scheduler should be stopped")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stopping twice should be a no-op, got %v", err)
	}
}

func TestStop_WaitsBoundedForInFlightCheck(t *testing.T) {
	store := newTestStore(t)
	n := newFakeNotifier()
	n.entered = make(chan models.Period, 16)
	n.release = make(chan struct{})
	s := newTestScheduler(store, n, utils.NewFixedClock(time.Date(2024, 6, 5, 17, 0, 0, 0, time.Local)), &fakeTicker{ch: make(chan time.Time)})
	s.opts.StopTimeout = 50 * time.Millisecond

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, n.entered, models.PeriodDaily)

	if err := s.Stop(); !errors.Is(err, ErrStopTimeout) {
		t.Errorf("Expected ErrStopTimeout while a check is in flight, got %v", err)
	}
	close(n.release)
}

func TestNextDeadlines(t *testing.T) {
	n := newFakeNotifier()
	s := newTestScheduler(newTestStore(t), n, utils.NewFixedClock(time.Date(2024, 6, 5, 17, 0, 0, 0, time.Local)), nil)
	s.ForceCheck(context.Background())

	deadlines, err := s.NextDeadlines()
	if err != nil {
		t.Fatal(err)
	}
	if len(deadlines) != 3 || !deadlines[models.PeriodDaily].ShouldSubmit || deadlines[models.PeriodWeekly].ShouldSubmit {
		t.Errorf("Unexpected deadlines %+v", deadlines)
	}
}

func TestTestSubmission(t *testing.T) {
	n := newFakeNotifier()
	store := newTestStore(t)
	clock := utils.NewFixedClock(time.Date(2024, 6, 5, 10, 15, 30, 0, time.Local))
	s := newTestScheduler(store, n, clock, nil)
	ctx := context.Background()

	res := s.TestSubmission(ctx, models.PeriodWeekly)
	if !res.Success || res.Label != "周报" || !res.SubmittedAt.Equal(clock.Now()) {
		t.Errorf("Unexpected result %+v", res)
	}
	if len(n.sent) != 1 {
		t.Fatalf("Expected one test card, got %d", len(n.sent))
	}
	sent := n.sent[0]
	if sent.chatID != "oc_1" || sent.format != feishu.FormatCard || sent.text != "这是一个周报测试报告，发送时间：2024-06-05 10:15:30" {
		t.Errorf("Unexpected test card %+v", sent)
	}

	n.sendErr = errors.New("bot is not in the chat")
	if res := s.TestSubmission(ctx, models.PeriodDaily); res.Success || !strings.Contains(res.Message, "bot is not in the chat") {
		t.Errorf("Expected a failed send, got %+v", res)
	}

	cfg := store.FeishuConfig()
	cfg.ChatID = ""
	store.UpdateFeishuConfig(cfg)
	if res := s.TestSubmission(ctx, models.PeriodDaily); res.Success || res.Message != "未配置飞书群聊ID" {
		t.Errorf("Expected a missing chat id, got %+v", res)
	}
}

func TestTestSubmission_ConnectionFailure(t *testing.T) {
	n := newFakeNotifier()
	n.connOK = false
	s := newTestScheduler(newTestStore(t), n, utils.NewFixedClock(time.Now()), nil)

	if res := s.TestSubmission(context.Background(), models.PeriodDaily); res.Success || len(n.sent) != 0 {
		t.Errorf("Nothing should be sent without a connection, got %+v", res)
	}
}

// waitFor drains ch until want is seen
func waitFor(t *testing.T, ch <-chan models.Period, want models.Period) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for %s", want)
		}
	}
}
