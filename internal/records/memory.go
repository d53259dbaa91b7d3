package records

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/submission"
)

// SentMessage is a message recorded by Memory.
type SentMessage struct {
	Recipient string
	Subject   string
	Body      string
}

// Memory is an in-process Client with etag concurrency. It backs tests and
// dry runs.
type Memory struct {
	mu        sync.Mutex
	order     []string
	items     map[string]submission.Bundle
	names     map[string]string
	templates map[string]Template
	self      string
	version   int
	messages  []SentMessage
	failures  map[string][]error
}

// NewMemory creates an empty store. self is returned by CurrentPrincipalID.
func NewMemory(self string) *Memory {
	return &Memory{
		items:     make(map[string]submission.Bundle),
		names:     make(map[string]string),
		templates: make(map[string]Template),
		failures:  make(map[string][]error),
		self:      self,
	}
}

// Add stores a bundle, assigning an etag if it has none.
func (m *Memory) Add(b submission.Bundle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b.Status = b.Status.Clone()
	if b.Status == nil {
		b.Status = &submission.Status{}
	}
	if b.Status.ID == "" {
		b.Status.ID = b.Submission.ID
	}
	if b.Status.Etag == "" {
		b.Status.Etag = m.nextEtag()
	}
	if _, ok := m.items[b.Submission.ID]; !ok {
		m.order = append(m.order, b.Submission.ID)
	}
	m.items[b.Submission.ID] = b
}

// SetName registers a display name for a principal.
func (m *Memory) SetName(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[id] = name
}

// SetTemplate registers a template reference.
func (m *Memory) SetTemplate(t Template) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.Ref] = t
}

// Modify changes a stored status as another actor would, bumping its etag.
func (m *Memory) Modify(id string, fn func(*submission.Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.items[id]
	if !ok {
		return
	}
	fn(b.Status)
	b.Status.Etag = m.nextEtag()
	m.items[id] = b
}

// Status returns a copy of the stored status.
func (m *Memory) Status(id string) *submission.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok {
		return nil
	}
	return b.Status.Clone()
}

// Messages returns the messages sent so far.
func (m *Memory) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.messages)
}

// FailNext queues errors returned by the next calls to op, one per call.
// op is the method name, e.g. "UpdateItem".
func (m *Memory) FailNext(op string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], errs...)
}

func (m *Memory) ListItems(_ context.Context, queueID string, state submission.State, offset, limit int) (Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ListItems"); err != nil {
		return Page{}, err
	}

	var matched []submission.Bundle
	for _, id := range m.order {
		b := m.items[id]
		if b.Submission.QueueID == queueID && b.Status.State == state {
			matched = append(matched, submission.Bundle{Submission: b.Submission, Status: b.Status.Clone()})
		}
	}

	page := Page{Total: len(matched)}
	if offset < len(matched) {
		page.Results = matched[offset:min(offset+limit, len(matched))]
	}
	return page, nil
}

func (m *Memory) GetItem(_ context.Context, id string) (*submission.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("GetItem"); err != nil {
		return nil, err
	}

	b, ok := m.items[id]
	if !ok {
		return nil, apperrors.FromStatus("records.get", 404, "submission "+id+" not found")
	}
	return b.Status.Clone(), nil
}

func (m *Memory) UpdateItem(_ context.Context, status *submission.Status) (*submission.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("UpdateItem"); err != nil {
		return nil, err
	}

	b, ok := m.items[status.ID]
	if !ok {
		return nil, apperrors.FromStatus("records.update", 404, "submission "+status.ID+" not found")
	}
	if b.Status.Etag != status.Etag {
		return nil, apperrors.FromStatus("records.update", 412, "etag mismatch")
	}
	b.Status = status.Clone()
	b.Status.Etag = m.nextEtag()
	m.items[status.ID] = b
	return b.Status.Clone(), nil
}

func (m *Memory) SendMessage(_ context.Context, recipient, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("SendMessage"); err != nil {
		return err
	}
	m.messages = append(m.messages, SentMessage{Recipient: recipient, Subject: subject, Body: body})
	return nil
}

func (m *Memory) PrincipalName(_ context.Context, id string, _ bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("PrincipalName"); err != nil {
		return "", err
	}
	if name, ok := m.names[id]; ok {
		return name, nil
	}
	return "", apperrors.FromStatus("records.profile", 404, "principal "+id+" not found")
}

func (m *Memory) CurrentPrincipalID(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CurrentPrincipalID"); err != nil {
		return "", err
	}
	return m.self, nil
}

func (m *Memory) ResolveTemplate(_ context.Context, ref string) (Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ResolveTemplate"); err != nil {
		return Template{}, err
	}
	t, ok := m.templates[ref]
	if !ok {
		return Template{}, apperrors.FromStatus("records.template", 404, "template "+ref+" not found")
	}
	return t, nil
}

func (m *Memory) injected(op string) error {
	queue := m.failures[op]
	if len(queue) == 0 {
		return nil
	}
	m.failures[op] = queue[1:]
	return queue[0]
}

func (m *Memory) nextEtag() string {
	m.version++
	return fmt.Sprintf("etag-%d", m.version)
}

var _ Client = (*Memory)(nil)
