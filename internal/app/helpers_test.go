package app

import (
	"context"
	"sync"
	"testing"

	"youtrack_notification_bot/internal/domain/channel"
	"youtrack_notification_bot/internal/domain/issue"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
)

// memStore keeps the flat key-value form in memory, so a Save/Load pair
// behaves like a persist and reload.
type memStore struct {
	mu      sync.Mutex
	entries []channel.Entry
	saves   int
	saveErr error
}

func newMemStore(entries ...channel.Entry) *memStore {
	return &memStore{entries: entries}
}

func (m *memStore) Load(context.Context) ([]*channel.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return channel.Unflatten(m.entries)
}

func (m *memStore) Save(ctx context.Context, channels []*channel.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	m.entries = channel.Flatten(channels)
	m.saves++
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		keys = append(keys, e.Key)
	}
	return keys
}

type fetchCall struct {
	Query   string
	IDsOnly bool
}

// fakeSource answers queries from a fixed table.
type fakeSource struct {
	mu      sync.Mutex
	results map[string][]issue.Issue
	err     error
	panicOn string
	calls   []fetchCall
}

func (f *fakeSource) FetchIssues(_ context.Context, query string, idsOnly bool) ([]issue.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{Query: query, IDsOnly: idsOnly})
	if f.panicOn != "" && f.panicOn == query {
		panic("boom")
	}
	if f.err != nil {
		return nil, &issue.QueryError{Query: query, Err: f.err}
	}
	return f.results[query], nil
}

type delivery struct {
	Channel string
	Message string
}

type fakeDeliverer struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (f *fakeDeliverer) Deliver(_ context.Context, channelName, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, delivery{Channel: channelName, Message: message})
	return nil
}

func nullLogger() *logrus.Entry {
	l, _ := logrustest.NewNullLogger()
	return logrus.NewEntry(l)
}

func mustLoadRegistry(t *testing.T, store channel.Store) *Registry {
	t.Helper()
	r, err := LoadRegistry(context.Background(), store)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	return r
}
