package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/TaskPilot/internal/domain"
	"github.com/Strob0t/TaskPilot/internal/domain/pipeline"
	"github.com/Strob0t/TaskPilot/internal/domain/project"
	"github.com/Strob0t/TaskPilot/internal/domain/session"
	"github.com/Strob0t/TaskPilot/internal/domain/signal"
	"github.com/Strob0t/TaskPilot/internal/domain/task"
	"github.com/Strob0t/TaskPilot/internal/domain/worker"
	"github.com/Strob0t/TaskPilot/internal/domain/workerrepo"
	"github.com/Strob0t/TaskPilot/internal/port/database"
	"github.com/Strob0t/TaskPilot/internal/port/messagequeue"
	"github.com/Strob0t/TaskPilot/internal/port/repohost"
	"github.com/Strob0t/TaskPilot/internal/secrets"
)

// --- fake store ---

type fakeStore struct {
	mu sync.Mutex

	projects   map[string]*project.Project
	tasks      map[string]*task.Task
	sessions   map[string]*session.Session
	messages   map[string][]session.Message
	signals    map[string]*signal.Record
	executions map[string]*pipeline.Execution
	repos      map[string]*workerrepo.Repository // keyed by project id
	quota      map[string]int
	quotaUsed  map[string]int

	seq int

	failCreateTask   error
	failUpdateStatus error
}

var _ database.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects:   make(map[string]*project.Project),
		tasks:      make(map[string]*task.Task),
		sessions:   make(map[string]*session.Session),
		messages:   make(map[string][]session.Message),
		signals:    make(map[string]*signal.Record),
		executions: make(map[string]*pipeline.Execution),
		repos:      make(map[string]*workerrepo.Repository),
		quota:      make(map[string]int),
		quotaUsed:  make(map[string]int),
	}
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *fakeStore) ListEnabledProjects(_ context.Context) ([]project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []project.Project
	for _, p := range s.projects {
		if p.Enabled {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeStore) GetProject(_ context.Context, id string) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) CreateTask(_ context.Context, req task.CreateRequest) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateTask != nil {
		return nil, s.failCreateTask
	}
	t := &task.Task{
		ID:            s.nextID("task"),
		ProjectID:     req.ProjectID,
		Title:         req.Title,
		Description:   req.Description,
		Status:        task.StatusProcessing,
		IssueProvider: req.IssueProvider,
		IssueID:       req.IssueID,
		SpaceID:       req.SpaceID,
		CreatedAt:     time.Now(),
	}
	s.tasks[t.ID] = t
	cp := *t
	return &cp, nil
}

func (s *fakeStore) UpdateTaskStatus(_ context.Context, id string, status task.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdateStatus != nil {
		return s.failUpdateStatus
	}
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	t.Status = status
	return nil
}

func (s *fakeStore) GetSession(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) CreateSession(_ context.Context, req session.CreateRequest) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &session.Session{
		ID:         s.nextID("sess"),
		TaskID:     req.TaskID,
		RunnerType: req.RunnerType,
		CreatedAt:  time.Now(),
	}
	s.sessions[sess.ID] = sess
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) UpdateSessionWorkerType(_ context.Context, id string, wt worker.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	sess.ExecutedBy = wt
	return nil
}

func (s *fakeStore) AppendMessage(_ context.Context, sessionID, kind string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[sessionID]
	s.messages[sessionID] = append(msgs, session.Message{
		ID:        s.nextID("msg"),
		SessionID: sessionID,
		Seq:       len(msgs),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *fakeStore) ListMessages(_ context.Context, sessionID string) ([]session.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.Message(nil), s.messages[sessionID]...), nil
}

func signalMapKey(source, issueID string) string { return source + "/" + issueID }

func (s *fakeStore) GetSignal(_ context.Context, source, issueID string) (*signal.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.signals[signalMapKey(source, issueID)]
	if !ok {
		return nil, fmt.Errorf("signal %s/%s: %w", source, issueID, domain.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) IsSignaledSince(_ context.Context, source, issueID string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.signals[signalMapKey(source, issueID)]
	if !ok {
		return false, nil
	}
	return !rec.LastProcessedAt.Before(since), nil
}

func (s *fakeStore) TryAcquireLock(_ context.Context, source, issueID, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := signalMapKey(source, issueID)
	now := time.Now()

	rec, ok := s.signals[key]
	if !ok {
		s.signals[key] = &signal.Record{
			Source:        source,
			IssueID:       issueID,
			Status:        signal.StatusProcessing,
			LockedBy:      holder,
			LockExpiresAt: now.Add(ttl),
		}
		return true, nil
	}
	if rec.LockedBy != "" && rec.LockExpiresAt.After(now) {
		return false, nil
	}
	rec.Status = signal.StatusProcessing
	rec.LockedBy = holder
	rec.LockExpiresAt = now.Add(ttl)
	return true, nil
}

func (s *fakeStore) Signal(_ context.Context, source, issueID string, processedAt time.Time, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := signalMapKey(source, issueID)
	rec, ok := s.signals[key]
	if !ok {
		rec = &signal.Record{Source: source, IssueID: issueID}
		s.signals[key] = rec
	}
	rec.Status = signal.StatusCompleted
	rec.TaskID = taskID
	rec.LastProcessedAt = processedAt
	rec.LockedBy = ""
	rec.LockExpiresAt = time.Time{}
	return nil
}

func (s *fakeStore) ReleaseLock(_ context.Context, source, issueID, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.signals[signalMapKey(source, issueID)]
	if ok && rec.LockedBy == holder {
		rec.LockedBy = ""
		rec.LockExpiresAt = time.Time{}
	}
	return nil
}

func (s *fakeStore) CreatePipelineExecution(_ context.Context, sessionID, workerRepoID string) (*pipeline.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec := &pipeline.Execution{
		ID:           s.nextID("exec"),
		SessionID:    sessionID,
		WorkerRepoID: workerRepoID,
		Status:       pipeline.StatusPending,
		CreatedAt:    time.Now(),
	}
	s.executions[exec.ID] = exec
	cp := *exec
	return &cp, nil
}

func (s *fakeStore) UpdatePipelineExecution(_ context.Context, id, externalID string, status pipeline.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return fmt.Errorf("execution %s: %w", id, domain.ErrNotFound)
	}
	if !exec.Status.CanTransition(status) {
		return fmt.Errorf("execution %s: %s to %s: %w", id, exec.Status, status, domain.ErrConflict)
	}
	if externalID != "" {
		exec.ExternalID = externalID
	}
	exec.Status = status
	exec.StatusAt = time.Now()
	return nil
}

func (s *fakeStore) GetPipelineExecution(_ context.Context, id string) (*pipeline.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", id, domain.ErrNotFound)
	}
	cp := *exec
	return &cp, nil
}

func (s *fakeStore) GetWorkerRepositoryByProject(_ context.Context, projectID string) (*workerrepo.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos[projectID]
	if !ok {
		return nil, fmt.Errorf("worker repository for %s: %w", projectID, domain.ErrNotFound)
	}
	cp := *repo
	return &cp, nil
}

func (s *fakeStore) CreateWorkerRepository(_ context.Context, req workerrepo.CreateRequest) (*workerrepo.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo := &workerrepo.Repository{
		ID:             s.nextID("repo"),
		ProjectID:      req.ProjectID,
		HostURL:        req.HostURL,
		RemoteID:       req.RemoteID,
		RemotePath:     req.RemotePath,
		TokenSecretRef: req.TokenSecretRef,
		CurrentVersion: req.CurrentVersion,
		CreatedAt:      time.Now(),
	}
	s.repos[req.ProjectID] = repo
	cp := *repo
	return &cp, nil
}

func (s *fakeStore) UpdateWorkerRepositoryVersion(_ context.Context, id, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, repo := range s.repos {
		if repo.ID == id {
			repo.CurrentVersion = version
			return nil
		}
	}
	return fmt.Errorf("worker repository %s: %w", id, domain.ErrNotFound)
}

func (s *fakeStore) QuotaRemaining(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quota[userID] - s.quotaUsed[userID], nil
}

func (s *fakeStore) IncrementQuotaUsage(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotaUsed[userID]++
	return nil
}

// --- fake queue ---

type publishedMsg struct {
	Subject string
	Data    []byte
	Opts    messagequeue.PublishOptions
}

type fakeQueue struct {
	mu        sync.Mutex
	published []publishedMsg
	publishCb func(subject string)
	failWith  error
}

var _ messagequeue.Queue = (*fakeQueue)(nil)

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte, opts messagequeue.PublishOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failWith != nil {
		return q.failWith
	}
	if q.publishCb != nil {
		q.publishCb(subject)
	}
	q.published = append(q.published, publishedMsg{Subject: subject, Data: data, Opts: opts})
	return nil
}

func (q *fakeQueue) Consume(_ context.Context, _ string, _ messagequeue.Handler, _ messagequeue.ConsumeOptions) (func(), error) {
	return func() {}, nil
}

func (q *fakeQueue) Drain() error        { return nil }
func (q *fakeQueue) Close() error        { return nil }
func (q *fakeQueue) IsConnected() bool   { return true }

// --- fake message ---

type fakeMsg struct {
	subject  string
	data     []byte
	corrID   string
	replyTo  string
	attempts int

	acked  bool
	naked  bool
	termed bool
}

var _ messagequeue.Message = (*fakeMsg)(nil)

func (m *fakeMsg) Subject() string       { return m.subject }
func (m *fakeMsg) Data() []byte          { return m.data }
func (m *fakeMsg) CorrelationID() string { return m.corrID }
func (m *fakeMsg) ReplyTo() string       { return m.replyTo }
func (m *fakeMsg) Attempts() int         { return m.attempts }
func (m *fakeMsg) Ack() error            { m.acked = true; return nil }
func (m *fakeMsg) Nak() error            { m.naked = true; return nil }
func (m *fakeMsg) Term() error           { m.termed = true; return nil }

// --- fake repository host ---

type fakeHost struct {
	mu sync.Mutex

	remoteFiles map[string][]byte // path -> content
	projects    map[string]*repohost.RemoteProject

	commits         int
	uploads         int
	triggerCalls    int
	triggerErrs     []error // consumed per call; nil entry means success
	uploadFailures  map[string]int // path -> remaining failures
	variablesCalls  int
	variablesErr    error
	nextPipelineID  string
}

var _ repohost.Host = (*fakeHost)(nil)

func newFakeHost() *fakeHost {
	return &fakeHost{
		remoteFiles:    make(map[string][]byte),
		projects:       make(map[string]*repohost.RemoteProject),
		uploadFailures: make(map[string]int),
		nextPipelineID: "pipe-1",
	}
}

func (h *fakeHost) Name() string { return "fake" }

func (h *fakeHost) CurrentUser(_ context.Context) (*repohost.User, error) {
	return &repohost.User{ID: "1", Username: "bot"}, nil
}

func (h *fakeHost) FindProject(_ context.Context, path string) (*repohost.RemoteProject, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.projects[path]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", path, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (h *fakeHost) CreateProject(_ context.Context, namespace, name string) (*repohost.RemoteProject, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	path := name
	if namespace != "" {
		path = namespace + "/" + name
	}
	p := &repohost.RemoteProject{ID: fmt.Sprintf("r-%d", len(h.projects)+1), Path: path, DefaultBranch: "main"}
	h.projects[path] = p
	cp := *p
	return &cp, nil
}

func (h *fakeHost) FileExists(_ context.Context, _, _, path string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.remoteFiles[path]
	return ok, nil
}

func (h *fakeHost) CommitFiles(_ context.Context, _, _, _ string, files []repohost.File) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commits++
	for _, f := range files {
		h.remoteFiles[f.Path] = f.Content
	}
	return nil
}

func (h *fakeHost) UploadFile(_ context.Context, _, _, _ string, file repohost.File) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := h.uploadFailures[file.Path]; n > 0 {
		h.uploadFailures[file.Path] = n - 1
		return fmt.Errorf("upload %s: temporary failure", file.Path)
	}
	h.uploads++
	h.remoteFiles[file.Path] = file.Content
	return nil
}

func (h *fakeHost) TriggerPipeline(_ context.Context, _, _ string, _ map[string]string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.triggerCalls++
	if len(h.triggerErrs) > 0 {
		err := h.triggerErrs[0]
		h.triggerErrs = h.triggerErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return h.nextPipelineID, nil
}

func (h *fakeHost) EnablePipelineVariables(_ context.Context, _ string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.variablesCalls++
	return h.variablesErr
}

// statusErr mimics an adapter API error carrying an HTTP status.
type statusErr struct {
	code int
}

func (e *statusErr) Error() string   { return fmt.Sprintf("api error %d", e.code) }
func (e *statusErr) StatusCode() int { return e.code }

// --- misc fakes ---

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *fakeBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
}

func newTestVault(t interface{ Fatalf(string, ...any) }, values map[string]string) *secrets.Vault {
	v, err := secrets.NewVault(func() (map[string]string, error) { return values, nil })
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	return v
}
