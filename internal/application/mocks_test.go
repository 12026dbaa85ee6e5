package application_test

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

// --- Mock implementations of the driven ports ---

type mockRepoStore struct {
	repos map[string]model.RepoConfig
}

func newMockRepoStore(repos ...model.RepoConfig) *mockRepoStore {
	m := &mockRepoStore{repos: make(map[string]model.RepoConfig)}
	for _, r := range repos {
		m.repos[r.ID] = r
	}
	return m
}

func (m *mockRepoStore) Register(_ context.Context, cfg model.RepoConfig) (model.RepoConfig, error) {
	m.repos[cfg.ID] = cfg
	return cfg, nil
}

func (m *mockRepoStore) Get(_ context.Context, id string) (*model.RepoConfig, error) {
	r, ok := m.repos[id]
	if !ok {
		return nil, driven.ErrRepoNotFound
	}
	return &r, nil
}

func (m *mockRepoStore) List(_ context.Context) ([]model.RepoConfig, error) {
	out := make([]model.RepoConfig, 0, len(m.repos))
	for _, r := range m.repos {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepoStore) Patch(_ context.Context, id string, mode *model.RepoMode, secret *string) (*model.RepoConfig, error) {
	r, ok := m.repos[id]
	if !ok {
		return nil, driven.ErrRepoNotFound
	}
	if mode != nil {
		r.Mode = *mode
	}
	if secret != nil {
		r.WebhookSecret = *secret
	}
	m.repos[id] = r
	return &r, nil
}

func (m *mockRepoStore) SetMode(_ context.Context, id string, mode model.RepoMode) error {
	r, ok := m.repos[id]
	if !ok {
		return driven.ErrRepoNotFound
	}
	r.Mode = mode
	m.repos[id] = r
	return nil
}

type mockTaskStore struct {
	tasks       map[string]model.Task // keyed repoID/taskID
	statusCalls []string
	replaced    [][]model.Task
}

func newMockTaskStore(tasks ...model.Task) *mockTaskStore {
	m := &mockTaskStore{tasks: make(map[string]model.Task)}
	for _, t := range tasks {
		m.tasks[t.RepoID+"/"+t.ID] = t
	}
	return m
}

func (m *mockTaskStore) Upsert(_ context.Context, task model.Task) error {
	m.tasks[task.RepoID+"/"+task.ID] = task
	return nil
}

func (m *mockTaskStore) ReplaceAll(_ context.Context, repoID string, tasks []model.Task) error {
	for key := range m.tasks {
		if strings.HasPrefix(key, repoID+"/") {
			delete(m.tasks, key)
		}
	}
	for _, t := range tasks {
		m.tasks[repoID+"/"+t.ID] = t
	}
	m.replaced = append(m.replaced, tasks)
	return nil
}

func (m *mockTaskStore) Get(_ context.Context, repoID, taskID string) (*model.Task, error) {
	t, ok := m.tasks[repoID+"/"+taskID]
	if !ok {
		return nil, driven.ErrTaskNotFound
	}
	return &t, nil
}

func (m *mockTaskStore) ListByRepo(_ context.Context, repoID string) ([]model.Task, error) {
	var out []model.Task
	for key, t := range m.tasks {
		if strings.HasPrefix(key, repoID+"/") {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockTaskStore) SetStatus(_ context.Context, repoID, taskID string, to model.TaskStatus) error {
	key := repoID + "/" + taskID
	t, ok := m.tasks[key]
	if !ok {
		return driven.ErrTaskNotFound
	}
	if !model.CanTransition(t.Status, to) {
		return driven.ErrInvalidTransition
	}
	t.Status = to
	m.tasks[key] = t
	m.statusCalls = append(m.statusCalls, fmt.Sprintf("%s->%s", taskID, to))
	return nil
}

func (m *mockTaskStore) NextID(_ context.Context, repoID string) (string, error) {
	max := 0
	for key, t := range m.tasks {
		if !strings.HasPrefix(key, repoID+"/") {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(t.ID, "T-")); err == nil && n > max {
			max = n
		}
	}
	return model.FormatTaskID(max + 1), nil
}

type mockLeaseStore struct {
	mu       sync.Mutex
	busy     bool
	held     map[string]string
	acquires int
	releases int
	nextTok  int
}

func newMockLeaseStore() *mockLeaseStore {
	return &mockLeaseStore{held: make(map[string]string)}
}

func (m *mockLeaseStore) Acquire(_ context.Context, repoID string, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return "", driven.ErrLeaseBusy
	}
	if _, held := m.held[repoID]; held {
		return "", driven.ErrLeaseBusy
	}
	m.nextTok++
	tok := fmt.Sprintf("tok-%d", m.nextTok)
	m.held[repoID] = tok
	m.acquires++
	return tok, nil
}

func (m *mockLeaseStore) Release(_ context.Context, repoID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[repoID] == token {
		delete(m.held, repoID)
		m.releases++
	}
	return nil
}

func (m *mockLeaseStore) Get(_ context.Context, repoID string) (*model.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.held[repoID]
	if !ok {
		return nil, nil
	}
	return &model.Lease{RepoID: repoID, HolderToken: tok}, nil
}

type mockDeliveryStore struct {
	records map[string]model.DeliveryRecord
}

func newMockDeliveryStore() *mockDeliveryStore {
	return &mockDeliveryStore{records: make(map[string]model.DeliveryRecord)}
}

func (m *mockDeliveryStore) Get(_ context.Context, repoID, deliveryID string) (*model.DeliveryRecord, error) {
	rec, ok := m.records[repoID+"/"+deliveryID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *mockDeliveryStore) Record(_ context.Context, rec model.DeliveryRecord) (*model.DeliveryRecord, bool, error) {
	key := rec.RepoID + "/" + rec.DeliveryID
	if existing, ok := m.records[key]; ok {
		return &existing, false, nil
	}
	m.records[key] = rec
	return &rec, true, nil
}

type mockCursorStore struct {
	cursors map[string]model.PollCursor
	puts    int
}

func newMockCursorStore() *mockCursorStore {
	return &mockCursorStore{cursors: make(map[string]model.PollCursor)}
}

func (m *mockCursorStore) Get(_ context.Context, repoID string) (model.PollCursor, error) {
	c, ok := m.cursors[repoID]
	if !ok {
		return model.PollCursor{RepoID: repoID, RateRemaining: -1}, nil
	}
	return c, nil
}

func (m *mockCursorStore) Put(_ context.Context, cursor model.PollCursor) error {
	m.cursors[cursor.RepoID] = cursor
	m.puts++
	return nil
}

// --- Mock VCS collaborator ---

type putFileCall struct {
	Branch  string
	Path    string
	Content []byte
	Message string
	SHA     string
}

type openPRCall struct {
	Head, Base, Title, Body string
}

type commentCall struct {
	PRNumber int
	Body     string
}

type mockVCS struct {
	openPRs   []model.PullRequest
	closedPRs []model.PullRequest
	branches  []string
	taskFiles []driven.RemoteFile
	dirs      map[string][]string

	// Optional overrides for conditional listing behavior.
	listOpen   func(etag string) (driven.PullRequestList, error)
	listClosed func(etag string) (driven.PullRequestList, error)

	createdBranches []string
	putFiles        []putFileCall
	openedPRs       []openPRCall
	comments        []commentCall

	failOpenPR error
}

func (m *mockVCS) ListOpenPullRequests(_ context.Context, _ model.RepoConfig, etag string) (driven.PullRequestList, error) {
	if m.listOpen != nil {
		return m.listOpen(etag)
	}
	return driven.PullRequestList{PRs: m.openPRs, RateRemaining: -1}, nil
}

func (m *mockVCS) ListClosedPullRequests(_ context.Context, _ model.RepoConfig, etag string) (driven.PullRequestList, error) {
	if m.listClosed != nil {
		return m.listClosed(etag)
	}
	return driven.PullRequestList{PRs: m.closedPRs, RateRemaining: -1}, nil
}

func (m *mockVCS) ListTaskFiles(_ context.Context, _ model.RepoConfig) ([]driven.RemoteFile, error) {
	return m.taskFiles, nil
}

func (m *mockVCS) ListDir(_ context.Context, _ model.RepoConfig, dir string) ([]string, error) {
	return m.dirs[dir], nil
}

func (m *mockVCS) ListBranches(_ context.Context, _ model.RepoConfig) ([]string, error) {
	return m.branches, nil
}

func (m *mockVCS) CreateBranch(_ context.Context, _ model.RepoConfig, name string) error {
	m.createdBranches = append(m.createdBranches, name)
	m.branches = append(m.branches, name)
	return nil
}

func (m *mockVCS) PutFile(_ context.Context, _ model.RepoConfig, branch, path string, content []byte, message, sha string) error {
	m.putFiles = append(m.putFiles, putFileCall{Branch: branch, Path: path, Content: content, Message: message, SHA: sha})
	return nil
}

func (m *mockVCS) OpenPullRequest(_ context.Context, _ model.RepoConfig, head, base, title, body string) (string, error) {
	if m.failOpenPR != nil {
		return "", m.failOpenPR
	}
	m.openedPRs = append(m.openedPRs, openPRCall{Head: head, Base: base, Title: title, Body: body})
	return fmt.Sprintf("https://github.com/octo/widgets/pull/%d", 100+len(m.openedPRs)), nil
}

func (m *mockVCS) CreateComment(_ context.Context, _ model.RepoConfig, prNumber int, body string) (string, error) {
	m.comments = append(m.comments, commentCall{PRNumber: prNumber, Body: body})
	return fmt.Sprintf("https://github.com/octo/widgets/pull/%d#issuecomment-%d", prNumber, len(m.comments)), nil
}

// sideEffects counts every mutating collaborator call recorded by the mock.
func (m *mockVCS) sideEffects() int {
	return len(m.createdBranches) + len(m.putFiles) + len(m.openedPRs) + len(m.comments)
}
