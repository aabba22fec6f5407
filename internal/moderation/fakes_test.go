package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/moderation/internal/entity"
)

// memStores is an in-memory implementation of every entity store. It counts
// writes so tests can assert that no-ops really wrote nothing.
type memStores struct {
	mu       sync.Mutex
	topics   map[string]entity.Topic
	comments map[string]entity.Comment
	replies  map[string]entity.Reply
	profiles map[string]entity.UserProfile
	images   map[string]entity.Image
	bytes    map[string][]byte
	configs  map[string]entity.ValidationConfig

	writes  int
	deleted []string
	resized []string

	// afterRead, when set, runs after every entity read, outside the lock.
	afterRead func()
}

func newMemStores() *memStores {
	return &memStores{
		topics:   map[string]entity.Topic{},
		comments: map[string]entity.Comment{},
		replies:  map[string]entity.Reply{},
		profiles: map[string]entity.UserProfile{},
		images:   map[string]entity.Image{},
		bytes:    map[string][]byte{},
		configs:  map[string]entity.ValidationConfig{},
	}
}

func (m *memStores) stores() *Stores {
	return &Stores{Content: m, Users: m, Images: m, AppConfig: m}
}

func profileKey(app, user string) string { return app + "/" + user }

func (m *memStores) read() {
	if m.afterRead != nil {
		m.afterRead()
	}
}

func (m *memStores) ReadTopic(_ context.Context, handle string) (*entity.Topic, error) {
	defer m.read()
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.topics[handle]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memStores) UpdateTopic(_ context.Context, t *entity.Topic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.topics[t.Handle] = *t
	return nil
}

func (m *memStores) UpdateTopicStatus(_ context.Context, handle string, status entity.ReviewStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if t, ok := m.topics[handle]; ok {
		t.ReviewStatus = status
		m.topics[handle] = t
	}
	return nil
}

func (m *memStores) ReadComment(_ context.Context, handle string) (*entity.Comment, error) {
	defer m.read()
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[handle]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memStores) UpdateComment(_ context.Context, c *entity.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.comments[c.Handle] = *c
	return nil
}

func (m *memStores) UpdateCommentStatus(_ context.Context, handle string, status entity.ReviewStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if c, ok := m.comments[handle]; ok {
		c.ReviewStatus = status
		m.comments[handle] = c
	}
	return nil
}

func (m *memStores) ReadReply(_ context.Context, handle string) (*entity.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.replies[handle]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStores) UpdateReply(_ context.Context, r *entity.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.replies[r.Handle] = *r
	return nil
}

func (m *memStores) ReadUserProfile(_ context.Context, app, user string) (*entity.UserProfile, error) {
	defer m.read()
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[profileKey(app, user)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memStores) UpdateUserProfile(_ context.Context, p *entity.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.profiles[profileKey(p.AppHandle, p.UserHandle)] = *p
	return nil
}

func (m *memStores) UpdateUserProfileStatus(_ context.Context, app, user string, status entity.ReviewStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if p, ok := m.profiles[profileKey(app, user)]; ok {
		p.ReviewStatus = status
		m.profiles[profileKey(app, user)] = p
	}
	return nil
}

func (m *memStores) ReadImageMeta(_ context.Context, handle string) (*entity.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[handle]
	if !ok {
		return nil, nil
	}
	return &img, nil
}

func (m *memStores) UpdateImageMeta(_ context.Context, img *entity.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.images[img.Handle] = *img
	return nil
}

func (m *memStores) ReadImage(_ context.Context, handle string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bytes[handle]
	if !ok {
		return nil, fmt.Errorf("image %s: no bytes", handle)
	}
	return b, nil
}

func (m *memStores) ImageExists(_ context.Context, handle string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bytes[handle]
	return ok, nil
}

func (m *memStores) CreateResizedImage(_ context.Context, img *entity.Image, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[img.Handle] = *img
	m.bytes[img.Handle] = data
	m.resized = append(m.resized, img.Handle)
	return nil
}

func (m *memStores) DeleteImage(_ context.Context, _, _, handle string, _ entity.ImageKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	delete(m.bytes, handle)
	m.deleted = append(m.deleted, handle)
	return nil
}

func (m *memStores) ReadImageCDNURL(_ context.Context, handle string) (string, error) {
	return "https://cdn.example.com/" + handle, nil
}

func (m *memStores) ReadValidationConfig(_ context.Context, app string) (*entity.ValidationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[app]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (m *memStores) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// memTracker is an in-memory Tracker.
type memTracker struct {
	mu      sync.Mutex
	txs     map[string]entity.Transaction
	records map[string]entity.Record
}

func newMemTracker() *memTracker {
	return &memTracker{txs: map[string]entity.Transaction{}, records: map[string]entity.Record{}}
}

func (m *memTracker) CreateSubmission(_ context.Context, tx *entity.Transaction, rec *entity.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[tx.Handle]; ok {
		return errors.New("duplicate handle")
	}
	m.txs[tx.Handle] = *tx
	m.records[rec.Handle] = *rec
	return nil
}

func (m *memTracker) ReadTransaction(_ context.Context, handle string) (*entity.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[handle]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (m *memTracker) TransactionExists(_ context.Context, handle string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.txs[handle]
	return ok, nil
}

func (m *memTracker) RecordResponse(_ context.Context, handle string, payload []byte, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[handle]
	if !ok {
		return errors.New("no transaction")
	}
	tx.ResponsePayload = payload
	tx.RespondedAt = &at
	m.txs[handle] = tx
	return nil
}

func (m *memTracker) ReadRecord(_ context.Context, handle string) (*entity.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[handle]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memTracker) UpdateRecordStatus(_ context.Context, handle string, status entity.RecordStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[handle]
	if !ok {
		return errors.New("no record")
	}
	rec.Status = status
	m.records[handle] = rec
	return nil
}

func (m *memTracker) recordStatus(handle string) entity.RecordStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[handle].Status
}

// memReports is an in-memory ReportStore.
type memReports struct {
	mu      sync.Mutex
	entries map[string]entity.ReportEntry
	order   []string
}

func newMemReports() *memReports {
	return &memReports{entries: map[string]entity.ReportEntry{}}
}

func (m *memReports) CreateReport(_ context.Context, e *entity.ReportEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.order {
		prev := m.entries[h]
		if prev.Kind == e.Kind && prev.ContentType == e.ContentType &&
			prev.TargetHandle() == e.TargetHandle() && prev.ReporterHandle == e.ReporterHandle {
			e.ReporterHasPriorComplaint = true
		}
	}
	m.entries[e.ReportHandle] = *e
	m.order = append(m.order, e.ReportHandle)
	return nil
}

func (m *memReports) ReadReport(_ context.Context, handle string) (*entity.ReportEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[handle]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memReports) CountReports(_ context.Context, entry *entity.ReportEntry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Kind == entry.Kind && e.AppHandle == entry.AppHandle &&
			e.ContentType == entry.ContentType && e.TargetHandle() == entry.TargetHandle() {
			n++
		}
	}
	return n, nil
}

// memQueue records every job it is given.
type memQueue struct {
	mu       sync.Mutex
	content  []*ContentJob
	images   []*ImageJob
	users    []*UserJob
	reports  []*ReportJob
	failWith error
}

func (q *memQueue) EnqueueContentModeration(_ context.Context, job *ContentJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failWith != nil {
		return q.failWith
	}
	q.content = append(q.content, job)
	return nil
}

func (q *memQueue) EnqueueImageModeration(_ context.Context, job *ImageJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.images = append(q.images, job)
	return nil
}

func (q *memQueue) EnqueueUserModeration(_ context.Context, job *UserJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.users = append(q.users, job)
	return nil
}

func (q *memQueue) EnqueueReportReview(_ context.Context, job *ReportJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reports = append(q.reports, job)
	return nil
}

// stubVerdict is the response format understood by stubProvider.
type stubVerdict struct {
	Failed   bool   `json:"failed"`
	Severity string `json:"severity"`
}

func verdictJSON(severity entity.ReviewStatus) []byte {
	b, _ := json.Marshal(stubVerdict{Severity: string(severity)})
	return b
}

// stubProvider records submissions and parses stubVerdict responses.
type stubProvider struct {
	name     string
	mu       sync.Mutex
	subs     []Submission
	response []byte
	final    bool
	err      error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Submit(_ context.Context, sub *Submission) (*Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.subs = append(p.subs, *sub)
	req, _ := json.Marshal(sub)
	return &Receipt{
		JobID:    fmt.Sprintf("job-%d", len(p.subs)),
		Request:  req,
		Response: p.response,
		Final:    p.final,
	}, nil
}

func (p *stubProvider) ParseVerdict(raw []byte) (Verdict, error) {
	var v stubVerdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return Verdict{}, err
	}
	return Verdict{Failed: v.Failed, Severity: entity.ReviewStatus(v.Severity)}, nil
}

func (p *stubProvider) submissions() []Submission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Submission(nil), p.subs...)
}

// denyAll is a Throttle that rejects everything.
type denyAll struct{}

func (denyAll) Allow(context.Context, string, string) (bool, error) { return false, nil }

var testSigner, _ = NewCallbackSigner("test-secret")

// fixture bundles a Service with its fakes.
type fixture struct {
	mem       *memStores
	tracker   *memTracker
	reports   *memReports
	queue     *memQueue
	proactive *stubProvider
	reactive  *stubProvider
	svc       *Service
}

func newFixture() *fixture {
	f := &fixture{
		mem:       newMemStores(),
		tracker:   newMemTracker(),
		reports:   newMemReports(),
		queue:     &memQueue{},
		proactive: &stubProvider{name: "async"},
		reactive:  &stubProvider{name: "review", response: []byte(`{"accepted":true}`)},
	}
	f.svc = NewService(Config{CallbackBaseURL: "https://mod.example.com/"}, Deps{
		Stores:    f.mem.stores(),
		Tracker:   f.tracker,
		Reports:   f.reports,
		Queue:     f.queue,
		Callbacks: testSigner,
		Proactive: f.proactive,
		Reactive:  f.reactive,
		Logger:    zap.NewNop(),
	})
	n := 0
	f.svc.newHandle = func() string {
		n++
		return fmt.Sprintf("h%d", n)
	}
	return f
}

// seedTransaction stores a pending transaction and record as if a submission
// to provider had just succeeded.
func (f *fixture) seedTransaction(handle string, provider string, kind entity.ModerationKind, rec entity.Record) {
	rec.Handle = handle
	rec.AppHandle = "app"
	rec.Status = entity.RecordPending
	_ = f.tracker.CreateSubmission(context.Background(), &entity.Transaction{
		Handle:    handle,
		AppHandle: "app",
		Kind:      kind,
		Provider:  provider,
	}, &rec)
}
