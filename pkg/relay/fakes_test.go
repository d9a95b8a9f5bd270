package relay

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"magic-collection-be/internal/pkg/logger"
	"magic-collection-be/pkg/llm"

	"github.com/google/uuid"
)

// --- store ---

type memHistory struct {
	owner     uuid.UUID
	name      *string
	count     int
	updatedAt time.Time
}

type memExchange struct {
	historyId uuid.UUID
	ownerId   uuid.UUID
	prompt    string
	answer    string
}

type memStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]bool
	histories   map[uuid.UUID]*memHistory
	exchanges   []memExchange
	deleteCalls int

	failCreate error
	failAppend error
	failRename error
}

func newMemStore(users ...uuid.UUID) *memStore {
	s := &memStore{
		users:     map[uuid.UUID]bool{},
		histories: map[uuid.UUID]*memHistory{},
	}
	for _, u := range users {
		s.users[u] = true
	}
	return s
}

func (m *memStore) CreateHistory(ctx context.Context, ownerId uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return uuid.Nil, m.failCreate
	}
	if !m.users[ownerId] {
		return uuid.Nil, ErrPersistence
	}
	id := uuid.New()
	m.histories[id] = &memHistory{owner: ownerId, updatedAt: time.Now()}
	return id, nil
}

func (m *memStore) HistoryExists(ctx context.Context, historyId, ownerId uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.histories[historyId]
	return ok && h.owner == ownerId, nil
}

func (m *memStore) LoadContextExchanges(ctx context.Context, historyId, ownerId uuid.UUID) ([]ContextExchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ContextExchange
	for _, ex := range m.exchanges {
		if ex.historyId == historyId && ex.ownerId == ownerId {
			out = append(out, ContextExchange{Prompt: ex.prompt, Answer: ex.answer})
		}
	}
	return out, nil
}

func (m *memStore) AppendExchange(ctx context.Context, historyId, ownerId uuid.UUID, prompt, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend != nil {
		return m.failAppend
	}
	m.exchanges = append(m.exchanges, memExchange{historyId, ownerId, prompt, answer})
	return nil
}

func (m *memStore) IncrementMessageCount(ctx context.Context, historyId uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.histories[historyId]
	if !ok {
		return false, errors.New("no such history")
	}
	h.count++
	return h.count == 1, nil
}

func (m *memStore) RenameHistory(ctx context.Context, historyId uuid.UUID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRename != nil {
		return m.failRename
	}
	if h, ok := m.histories[historyId]; ok {
		h.name = &name
	}
	return nil
}

func (m *memStore) TouchHistory(ctx context.Context, historyId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histories[historyId]; ok {
		h.updatedAt = time.Now()
	}
	return nil
}

func (m *memStore) DeleteIfEmpty(ctx context.Context, historyId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if h, ok := m.histories[historyId]; ok && h.count == 0 {
		delete(m.histories, historyId)
	}
	return nil
}

func (m *memStore) history(id uuid.UUID) (memHistory, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.histories[id]
	if !ok {
		return memHistory{}, false
	}
	return *h, true
}

func (m *memStore) exchangesFor(id uuid.UUID) []memExchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []memExchange
	for _, ex := range m.exchanges {
		if ex.historyId == id {
			out = append(out, ex)
		}
	}
	return out
}

func (m *memStore) seedHistory(owner uuid.UUID, prompts ...string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	name := DeriveName(prompts[0])
	m.histories[id] = &memHistory{owner: owner, name: &name, count: len(prompts)}
	for _, p := range prompts {
		m.exchanges = append(m.exchanges, memExchange{id, owner, p, "answer to " + p})
	}
	return id
}

// --- upstream ---

type streamItem struct {
	data []byte
	err  error
}

type fakeStream struct {
	items      chan streamItem
	closed     chan struct{}
	closeOnce  sync.Once
	closeCalls atomic.Int32
}

// scripted returns a stream that yields the given lines and then EOF.
func scripted(lines ...string) *fakeStream {
	s := &fakeStream{items: make(chan streamItem, len(lines)), closed: make(chan struct{})}
	for _, l := range lines {
		s.items <- streamItem{data: []byte(l)}
	}
	close(s.items)
	return s
}

// live returns a stream fed by the test; it blocks until fed or closed.
func live() *fakeStream {
	return &fakeStream{items: make(chan streamItem), closed: make(chan struct{})}
}

func (f *fakeStream) Next() ([]byte, error) {
	select {
	case it, ok := <-f.items:
		if !ok {
			return nil, io.EOF
		}
		return it.data, it.err
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeStream) Close() error {
	f.closeCalls.Add(1)
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeStream) wasClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

type fakeModel struct {
	stream   llm.Stream
	err      error
	mu       sync.Mutex
	messages []llm.Message
	options  llm.Options
	opened   int
}

func (f *fakeModel) OpenStream(ctx context.Context, history []llm.Message, options ...llm.Option) (llm.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	f.messages = history
	for _, opt := range options {
		opt(&f.options)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

// --- dispatch ---

// inlineDispatcher runs bookkeeping synchronously so tests can assert right after Relay.
type inlineDispatcher struct {
	b              *Bookkeeper
	completedCalls atomic.Int32
	abandonedCalls atomic.Int32
}

func (d *inlineDispatcher) DispatchCompleted(ctx context.Context, evt ExchangeCompleted) error {
	d.completedCalls.Add(1)
	d.b.Complete(ctx, evt)
	return nil
}

func (d *inlineDispatcher) DispatchAbandoned(ctx context.Context, evt HistoryAbandoned) error {
	d.abandonedCalls.Add(1)
	d.b.Abandon(ctx, evt)
	return nil
}

// --- client ---

type fakeSink struct {
	mu        sync.Mutex
	writes    []string
	failAfter int // fail the write with this 1-based index; 0 never fails
	closed    chan struct{}
}

func (f *fakeSink) Write(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.writes)+1 >= f.failAfter {
		return errors.New("broken pipe")
	}
	f.writes = append(f.writes, text)
	return nil
}

func (f *fakeSink) Closed() <-chan struct{} {
	if f.closed == nil {
		return nil
	}
	return f.closed
}

func (f *fakeSink) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

type memRegistry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*StreamSession
}

func (r *memRegistry) Register(s *StreamSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions == nil {
		r.sessions = map[uuid.UUID]*StreamSession{}
	}
	r.sessions[s.Id] = s
}

func (r *memRegistry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *memRegistry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for id := range r.sessions {
		out = append(out, id.String())
	}
	sort.Strings(out)
	return out
}

type harness struct {
	store      *memStore
	model      *fakeModel
	dispatcher *inlineDispatcher
	registry   *memRegistry
	orch       *Orchestrator
	owner      uuid.UUID
}

func newHarness(stream llm.Stream) *harness {
	owner := uuid.New()
	store := newMemStore(owner)
	model := &fakeModel{stream: stream}
	log := logger.NewNopLogger()
	dispatcher := &inlineDispatcher{b: NewBookkeeper(store, nil, log)}
	registry := &memRegistry{}
	return &harness{
		store:      store,
		model:      model,
		dispatcher: dispatcher,
		registry:   registry,
		orch:       NewOrchestrator(store, model, dispatcher, registry, log, "You are a helpful assistant."),
		owner:      owner,
	}
}
