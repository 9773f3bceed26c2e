package automation

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"automation-engine/internal/common/lock"
	"automation-engine/internal/common/logger"
	"automation-engine/internal/models"
)

// ==========================
// Fakes
// ==========================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type memSettings struct {
	mu        sync.Mutex
	rows      map[models.WorkflowType]models.AutomationSetting
	listErr   error
	listCalls int
}

func newMemSettings() *memSettings {
	return &memSettings{rows: make(map[models.WorkflowType]models.AutomationSetting)}
}

func (m *memSettings) List(_ context.Context) ([]models.AutomationSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.AutomationSetting, 0, len(m.rows))
	for _, s := range m.rows {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowType < out[j].WorkflowType })
	return out, nil
}

func (m *memSettings) ListEnabled(ctx context.Context) ([]models.AutomationSetting, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()

	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.AutomationSetting
	for _, s := range all {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSettings) UpsertDefault(_ context.Context, s models.AutomationSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[s.WorkflowType]; !exists {
		m.rows[s.WorkflowType] = s
	}
	return nil
}

func (m *memSettings) Update(_ context.Context, wt models.WorkflowType, patch models.SettingsPatch) (*models.AutomationSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.rows[wt]
	if !ok {
		return nil, ErrNotFound
	}
	updated := patch.Apply(current)
	m.rows[wt] = updated
	return &updated, nil
}

func (m *memSettings) set(s models.AutomationSetting) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.WorkflowType] = s
}

func (m *memSettings) get(wt models.WorkflowType) models.AutomationSetting {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[wt]
}

// memSubjects applies the reference window and the recipient/opt-out filters
// the way a real store does. unfiltered returns every subject regardless.
type memSubjects struct {
	mu         sync.Mutex
	byType     map[models.WorkflowType][]models.Subject
	errs       map[models.WorkflowType]error
	calls      map[models.WorkflowType]int
	unfiltered bool
}

func newMemSubjects() *memSubjects {
	return &memSubjects{
		byType: make(map[models.WorkflowType][]models.Subject),
		errs:   make(map[models.WorkflowType]error),
		calls:  make(map[models.WorkflowType]int),
	}
}

func (m *memSubjects) add(wt models.WorkflowType, s models.Subject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byType[wt] = append(m.byType[wt], s)
}

func (m *memSubjects) FindCandidates(_ context.Context, wt models.WorkflowType, start, end time.Time) ([]models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[wt]++
	if err := m.errs[wt]; err != nil {
		return nil, err
	}
	window := Window{Start: start, End: end}
	var out []models.Subject
	for _, s := range m.byType[wt] {
		if m.unfiltered || (window.Contains(s.ReferenceAt) && !s.OptedOut && s.Recipient != "") {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSubjects) FindByID(_ context.Context, wt models.WorkflowType, id string) (*models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byType[wt] {
		if s.ID == id {
			found := s
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memSubjects) callCount(wt models.WorkflowType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[wt]
}

// memLedger enforces at most one sent record per (workflow type, subject).
type memLedger struct {
	mu         sync.Mutex
	records    []models.DispatchRecord
	hasSentErr error
	recordErr  error
	blindGuard bool
	lastFilter models.LogFilter
}

func (m *memLedger) HasSent(_ context.Context, wt models.WorkflowType, subjectID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasSentErr != nil {
		return false, m.hasSentErr
	}
	if m.blindGuard {
		return false, nil
	}
	return m.sentLocked(wt, subjectID), nil
}

func (m *memLedger) sentLocked(wt models.WorkflowType, subjectID string) bool {
	for _, r := range m.records {
		if r.WorkflowType == wt && r.SubjectID == subjectID && r.Status == models.StatusSent {
			return true
		}
	}
	return false
}

func (m *memLedger) Record(_ context.Context, record *models.DispatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	if record.Status == models.StatusSent && m.sentLocked(record.WorkflowType, record.SubjectID) {
		return ErrAlreadySent
	}
	m.records = append(m.records, *record)
	return nil
}

func (m *memLedger) List(_ context.Context, filter models.LogFilter) ([]models.DispatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	var out []models.DispatchRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if filter.WorkflowType != "" && r.WorkflowType != filter.WorkflowType {
			continue
		}
		if filter.SubjectID != "" && r.SubjectID != filter.SubjectID {
			continue
		}
		out = append(out, r)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memLedger) count(wt models.WorkflowType, subjectID string, status models.DispatchStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.WorkflowType == wt && r.SubjectID == subjectID && r.Status == status {
			n++
		}
	}
	return n
}

func (m *memLedger) all() []models.DispatchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DispatchRecord(nil), m.records...)
}

type sendCall struct {
	WorkflowType models.WorkflowType
	Recipient    string
	Vars         map[string]string
}

type MockNotifier struct {
	mu       sync.Mutex
	SendFunc func(ctx context.Context, wt models.WorkflowType, recipient string, vars map[string]string) error
	calls    []sendCall
}

func (m *MockNotifier) Send(ctx context.Context, wt models.WorkflowType, recipient string, vars map[string]string) error {
	m.mu.Lock()
	m.calls = append(m.calls, sendCall{WorkflowType: wt, Recipient: recipient, Vars: vars})
	fn := m.SendFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, wt, recipient, vars)
	}
	return nil
}

func (m *MockNotifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MockNotifier) lastCall() sendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

type MockSink struct {
	mu          sync.Mutex
	PublishFunc func(ctx context.Context, event models.DispatchEvent) error
	events      []models.DispatchEvent
}

func (m *MockSink) Publish(ctx context.Context, event models.DispatchEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	fn := m.PublishFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, event)
	}
	return nil
}

func (m *MockSink) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// ==========================
// Test Helper Functions
// ==========================

type harness struct {
	engine   *Engine
	cfg      *Config
	clock    *fakeClock
	settings *memSettings
	subjects *memSubjects
	ledger   *memLedger
	notifier *MockNotifier
	sink     *MockSink
	locker   Locker
}

func testConfig() *Config {
	return &Config{
		Interval:      15 * time.Minute,
		Workers:       4,
		NotifyTimeout: 200 * time.Millisecond,
		BusinessHours: BusinessHours{Location: time.UTC, OpenHour: 9, CloseHour: 17},
		BusinessName:  "Studio",
	}
}

func newHarness(t *testing.T, now time.Time, opts ...func(*harness)) *harness {
	t.Helper()
	h := &harness{
		cfg:      testConfig(),
		clock:    newFakeClock(now),
		settings: newMemSettings(),
		subjects: newMemSubjects(),
		ledger:   &memLedger{},
		notifier: &MockNotifier{},
		sink:     &MockSink{},
		locker:   lock.NewLocalLocker(),
	}
	for _, opt := range opts {
		opt(h)
	}

	engine, err := NewEngine(h.cfg, Dependencies{
		Settings: h.settings,
		Subjects: h.subjects,
		Ledger:   h.ledger,
		Notifier: h.notifier,
		Sink:     h.sink,
		Locker:   h.locker,
		Clock:    h.clock,
		Logger:   logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	h.engine = engine

	require.NoError(t, engine.SeedDefaults(context.Background()))
	return h
}

// only enables exactly the given workflow with the given offset and gate.
func (h *harness) only(wt models.WorkflowType, offset time.Duration, businessHoursOnly bool) {
	for _, s := range h.mustList() {
		s.Enabled = false
		h.settings.set(s)
	}
	h.settings.set(models.AutomationSetting{
		WorkflowType:      wt,
		Enabled:           true,
		TimingOffset:      offset,
		BusinessHoursOnly: businessHoursOnly,
	})
}

func (h *harness) mustList() []models.AutomationSetting {
	out, _ := h.settings.List(context.Background())
	return out
}

func (h *harness) tickAt(t *testing.T, now time.Time) *TickReport {
	t.Helper()
	h.clock.Set(now)
	report, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)
	return report
}

func appointment(id string, ref time.Time) models.Subject {
	return models.Subject{
		Kind:        models.SubjectAppointment,
		ID:          id,
		CustomerID:  "cust-" + id,
		Recipient:   id + "@example.com",
		ReferenceAt: ref,
		Attributes: map[string]string{
			AttrCustomerName: "Jane Doe",
			AttrServiceName:  "Deep Tissue Massage",
			AttrStaffName:    "Alex",
		},
	}
}
