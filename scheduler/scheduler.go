package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"daily-report-assistant/feishu"
	"daily-report-assistant/models"
	"daily-report-assistant/utils"
)

var (
	// ErrAlreadyRunning is returned by Start on a running scheduler
	ErrAlreadyRunning = errors.New("scheduler is already running")
	// ErrFeishuDisabled means the Feishu integration is switched off
	ErrFeishuDisabled = errors.New("feishu integration is not enabled")
	// ErrConnectionFailed means the startup connectivity check failed
	ErrConnectionFailed = errors.New("feishu connection test failed")
	// ErrNoChatID means no target chat is configured
	ErrNoChatID = errors.New("feishu chat_id is not configured")
	// ErrStopTimeout means the loop did not exit within StopTimeout
	ErrStopTimeout = errors.New("scheduler loop did not stop in time")
)

const (
	DefaultPollInterval  = time.Minute
	DefaultCheckInterval = 5 * time.Minute
	DefaultStopTimeout   = 5 * time.Second
)

// Notifier is the chat platform surface the scheduler drives
type Notifier interface {
	TestConnection(ctx context.Context) feishu.ConnectionResult
	SubmitCadence(ctx context.Context, chatID string, period models.Period, generate feishu.GenerateFunc) (feishu.SubmitResult, bool)
	Deadline(period models.Period, now time.Time) feishu.DeadlineInfo
	SendReport(ctx context.Context, chatID, text, format, label string) error
}

// NotifierFactory builds a Notifier from the Feishu settings
type NotifierFactory func(cfg utils.FeishuConfig) (Notifier, error)

// Store is the configuration access the scheduler needs
type Store interface {
	SettingsStore
	FeishuConfig() utils.FeishuConfig
	MarkSubmitted(period models.Period, date string) error
	MarkAutoSaved(date string) error
}

// Ticker delivers wake-ups to the loop
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// Options configures a Scheduler
type Options struct {
	Clock        utils.Clock
	Logger       *utils.Logger
	PollInterval time.Duration
	StopTimeout  time.Duration
	NewNotifier  NotifierFactory
	NewTicker    func(d time.Duration) Ticker

	// OnReminder receives every reminder message that fires
	OnReminder func(message string)
	// AutoSave runs the local end-of-day save when the reminder settings say so
	AutoSave func(ctx context.Context) error
	// OnResult receives every automatic submission result
	OnResult func(result feishu.SubmitResult)
}

// Scheduler checks submission windows and posts reports automatically
type Scheduler struct {
	store    Store
	generate feishu.GenerateFunc
	reminder *Reminder
	opts     Options

	mu        sync.Mutex
	running   bool
	notifier  Notifier
	stop      chan struct{}
	done      chan struct{}
	lastCheck time.Time

	checkMu sync.Mutex
}

// New creates a stopped scheduler
func New(store Store, generate feishu.GenerateFunc, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = utils.SystemClock{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.NewTicker == nil {
		opts.NewTicker = newTimeTicker
	}
	if opts.NewNotifier == nil {
		logger := opts.Logger
		clock := opts.Clock
		opts.NewNotifier = func(cfg utils.FeishuConfig) (Notifier, error) {
			return feishu.NewClient(cfg, feishu.Options{Clock: clock, Logger: logger})
		}
	}
	return &Scheduler{
		store:    store,
		generate: generate,
		reminder: NewReminder(store),
		opts:     opts,
	}
}

// Reminder returns the reminder evaluator driven by the loop
func (s *Scheduler) Reminder() *Reminder {
	return s.reminder
}

func (s *Scheduler) initNotifier(ctx context.Context) (Notifier, error) {
	cfg := s.store.FeishuConfig()
	if !cfg.Enabled {
		return nil, ErrFeishuDisabled
	}
	n, err := s.opts.NewNotifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create feishu client: %w", err)
	}
	if res := n.TestConnection(ctx); !res.Success {
		return nil, fmt.Errorf("%w: %s", ErrConnectionFailed, res.Message)
	}
	return n, nil
}

// Start connects to Feishu and launches the loop
// On failure the scheduler stays stopped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	n, err := s.initNotifier(ctx)
	if err != nil {
		s.opts.Logger.Error("Failed to start scheduler: %v", err)
		return err
	}
	s.opts.Logger.Info("Feishu client initialized")
	s.notifier = n
	s.launch(ctx)
	return nil
}

// StartReminders launches the loop for reminders and the local auto save only
func (s *Scheduler) StartReminders(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.notifier = nil
	s.launch(ctx)
	return nil
}

// launch must be called with mu held
func (s *Scheduler) launch(ctx context.Context) {
	s.running = true
	s.lastCheck = time.Time{}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	ticker := s.opts.NewTicker(s.opts.PollInterval)
	stop, done := s.stop, s.done
	utils.SafeGo(s.opts.Logger, "scheduler loop", func() {
		s.loop(ctx, ticker, stop, done)
	})
}

func (s *Scheduler) loop(ctx context.Context, ticker Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()
	s.opts.Logger.Info("Auto-submit scheduler started")
	defer s.opts.Logger.Info("Auto-submit scheduler stopped")

	s.wake(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.wake(ctx)
		}
	}
}

// wake runs reminders and, when the check interval has elapsed, a cadence check
func (s *Scheduler) wake(ctx context.Context) {
	err := utils.CatchPanic(s.opts.Logger, "scheduler wake", func() error {
		now := s.opts.Clock.Now()
		s.remind(ctx, now)
		if s.shouldCheck(now) {
			if _, err := s.check(ctx); err != nil && !errors.Is(err, ErrFeishuDisabled) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.opts.Logger.Error("Scheduler check failed: %v", err)
	}
}

func (s *Scheduler) remind(ctx context.Context, now time.Time) {
	if s.opts.OnReminder != nil {
		for _, msg := range s.reminder.Due(now) {
			s.opts.OnReminder(msg)
		}
	}
	if s.opts.AutoSave != nil && s.reminder.AutoSubmitDue(now) {
		if err := s.opts.AutoSave(ctx); err != nil {
			s.opts.Logger.Error("Auto save failed: %v", err)
			return
		}
		if err := s.store.MarkAutoSaved(now.Format(models.DateLayout)); err != nil {
			s.opts.Logger.Error("Failed to update submit status: %v", err)
		}
	}
}

// CheckInterval returns the configured interval between cadence checks
func (s *Scheduler) CheckInterval() time.Duration {
	if m := s.store.FeishuConfig().CheckInterval; m > 0 {
		return time.Duration(m) * time.Minute
	}
	return DefaultCheckInterval
}

func (s *Scheduler) shouldCheck(now time.Time) bool {
	s.mu.Lock()
	last := s.lastCheck
	hasNotifier := s.notifier != nil
	s.mu.Unlock()
	if !hasNotifier {
		return false
	}
	return last.IsZero() || now.Sub(last) >= s.CheckInterval()
}

// check submits every cadence whose window is open and that was not yet submitted today
func (s *Scheduler) check(ctx context.Context) ([]feishu.SubmitResult, error) {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	s.mu.Lock()
	n := s.notifier
	s.mu.Unlock()
	if n == nil {
		return nil, ErrFeishuDisabled
	}

	cfg := s.store.FeishuConfig()
	if !cfg.AutoReportEnabled {
		return nil, nil
	}
	if cfg.ChatID == "" {
		return nil, ErrNoChatID
	}

	now := s.opts.Clock.Now()
	today := now.Format(models.DateLayout)
	status := s.store.SubmitStatus()

	var results []feishu.SubmitResult
	for _, period := range models.Cadences {
		if status.LastSubmit(period) == today {
			continue
		}
		res, ok := n.SubmitCadence(ctx, cfg.ChatID, period, s.generate)
		if !ok {
			continue
		}
		results = append(results, res)
		if res.Success {
			s.opts.Logger.Info("%s submitted automatically", res.Label)
			if err := s.store.MarkSubmitted(period, today); err != nil {
				s.opts.Logger.Error("Failed to update submit status: %v", err)
			}
		} else {
			s.opts.Logger.Error("%s automatic submission failed: %s", res.Label, res.Message)
		}
		if s.opts.OnResult != nil {
			s.opts.OnResult(res)
		}
	}

	s.mu.Lock()
	s.lastCheck = now
	s.mu.Unlock()
	return results, nil
}

// Stop signals the loop and waits up to StopTimeout for it to exit
// A check in progress finishes first.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		s.opts.Logger.Warn("Scheduler loop still busy after %v", s.opts.StopTimeout)
		return ErrStopTimeout
	}
}

// Running reports whether the loop is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CheckResult is the outcome of ForceCheck
type CheckResult struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Results []feishu.SubmitResult `json:"results"`
}

// ForceCheck runs one cadence check now, connecting first if needed
func (s *Scheduler) ForceCheck(ctx context.Context) CheckResult {
	if err := s.ensureNotifier(ctx); err != nil {
		return CheckResult{Message: "飞书客户端初始化失败: " + err.Error()}
	}

	results, err := s.check(ctx)
	if err != nil {
		return CheckResult{Message: "强制检查失败: " + err.Error()}
	}
	return CheckResult{
		Success: true,
		Results: results,
		Message: fmt.Sprintf("检查完成，处理了%d个汇报", len(results)),
	}
}

func (s *Scheduler) ensureNotifier(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifier != nil {
		return nil
	}
	n, err := s.initNotifier(ctx)
	if err != nil {
		return err
	}
	s.notifier = n
	return nil
}

// NextDeadlines returns the current window of every cadence
func (s *Scheduler) NextDeadlines() (map[models.Period]feishu.DeadlineInfo, error) {
	s.mu.Lock()
	n := s.notifier
	s.mu.Unlock()
	if n == nil {
		return nil, ErrFeishuDisabled
	}

	now := s.opts.Clock.Now()
	out := make(map[models.Period]feishu.DeadlineInfo, len(models.Cadences))
	for _, p := range models.Cadences {
		out[p] = n.Deadline(p, now)
	}
	return out, nil
}

// TestSubmission sends a timestamped test card for period to the configured chat
func (s *Scheduler) TestSubmission(ctx context.Context, period models.Period) feishu.SubmitResult {
	label := period.Label()
	result := feishu.SubmitResult{Period: period, Label: label}
	if err := s.ensureNotifier(ctx); err != nil {
		result.Message = "飞书客户端初始化失败: " + err.Error()
		return result
	}
	chatID := s.store.FeishuConfig().ChatID
	if chatID == "" {
		result.Message = "未配置飞书群聊ID"
		return result
	}

	s.mu.Lock()
	n := s.notifier
	s.mu.Unlock()

	now := s.opts.Clock.Now()
	content := fmt.Sprintf("这是一个%s测试报告，发送时间：%s", label, now.Format("2006-01-02 15:04:05"))
	if err := n.SendReport(ctx, chatID, content, feishu.FormatCard, label); err != nil {
		s.opts.Logger.Error("Test %s submission failed: %v", period, err)
		result.Message = fmt.Sprintf("%s测试发送失败: %v", label, err)
		return result
	}
	result.Success = true
	result.SubmittedAt = now
	result.Message = label + "测试发送成功"
	return result
}
