package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/kursadbilgin/stock-console/internal/completion"
	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/provider"
	"github.com/kursadbilgin/stock-console/internal/storage"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []string

	putFn  func(ctx context.Context, bucket, key string, data []byte) error
	listFn func(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error)
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Put(ctx context.Context, bucket, key string, data []byte, _ string) error {
	if m.putFn != nil {
		if err := m.putFn(ctx, bucket, key, data); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	m.puts = append(m.puts, key)
	return nil
}

func (m *memoryStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *memoryStore) List(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	if m.listFn != nil {
		return m.listFn(ctx, bucket, prefix)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []storage.ObjectInfo
	for full, data := range m.objects {
		key, ok := strings.CutPrefix(full, bucket+"/")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memoryStore) seed(bucket, key, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = []byte(body)
}

func (m *memoryStore) object(t *testing.T, bucket, key string) string {
	t.Helper()

	data, err := m.Get(context.Background(), bucket, key)
	if err != nil {
		t.Fatalf("object %s/%s: %v", bucket, key, err)
	}
	return string(data)
}

func (m *memoryStore) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.puts)
}

// fakeChannel keeps messages until they are deleted.
type fakeChannel struct {
	mu          sync.Mutex
	messages    []domain.NotificationMessage
	nextID      int
	deleteCalls int
}

func (f *fakeChannel) push(bodies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, body := range bodies {
		f.nextID++
		f.messages = append(f.messages, domain.NotificationMessage{
			ID:   fmt.Sprintf("msg-%d", f.nextID),
			Body: body,
		})
	}
}

func (f *fakeChannel) Receive(_ context.Context, max int, _ time.Duration) ([]domain.NotificationMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.messages)
	if n > max {
		n = max
	}
	out := make([]domain.NotificationMessage, n)
	copy(out, f.messages[:n])
	return out, nil
}

func (f *fakeChannel) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleteCalls++
	for i, msg := range f.messages {
		if msg.ID == id {
			f.messages = append(f.messages[:i], f.messages[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeChannel) Close() error { return nil }

func newTestProtocol(t *testing.T, channel *fakeChannel) *completion.Protocol {
	t.Helper()

	p, err := completion.NewProtocol(channel, completion.Options{
		ReceiveWait:  time.Millisecond,
		WaitPerUnit:  time.Microsecond,
		PollInterval: time.Millisecond,
		MaxWait:      200 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewProtocol() error = %v", err)
	}
	return p
}

type fakeTrigger struct {
	mu        sync.Mutex
	calls     int
	triggerFn func(ctx context.Context, req provider.JobRequest) (*provider.JobResponse, error)
}

func (f *fakeTrigger) Trigger(ctx context.Context, req provider.JobRequest) (*provider.JobResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.triggerFn != nil {
		return f.triggerFn(ctx, req)
	}
	return &provider.JobResponse{TriggerID: req.TriggerID}, nil
}

type fakeTableRepo struct {
	rowsFn     func(ctx context.Context, spec domain.TableSpec, filters map[string][]string, limit int) ([]domain.Row, error)
	distinctFn func(ctx context.Context, spec domain.TableSpec, column string) ([]string, error)
	appendFn   func(ctx context.Context, spec domain.TableSpec, row domain.Row) error
	updateFn   func(ctx context.Context, spec domain.TableSpec, row domain.Row) error
	deleteFn   func(ctx context.Context, spec domain.TableSpec, row domain.Row) error
}

func (f *fakeTableRepo) Rows(ctx context.Context, spec domain.TableSpec, filters map[string][]string, limit int) ([]domain.Row, error) {
	if f.rowsFn != nil {
		return f.rowsFn(ctx, spec, filters, limit)
	}
	return nil, nil
}

func (f *fakeTableRepo) DistinctValues(ctx context.Context, spec domain.TableSpec, column string) ([]string, error) {
	if f.distinctFn != nil {
		return f.distinctFn(ctx, spec, column)
	}
	return nil, nil
}

func (f *fakeTableRepo) Append(ctx context.Context, spec domain.TableSpec, row domain.Row) error {
	if f.appendFn != nil {
		return f.appendFn(ctx, spec, row)
	}
	return nil
}

func (f *fakeTableRepo) Update(ctx context.Context, spec domain.TableSpec, row domain.Row) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, spec, row)
	}
	return nil
}

func (f *fakeTableRepo) Delete(ctx context.Context, spec domain.TableSpec, row domain.Row) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, spec, row)
	}
	return nil
}

// londonTime builds a wall-clock time in the action log's zone.
func londonTime(t *testing.T, year int, month time.Month, day, hour, minute, sec int) time.Time {
	t.Helper()

	location, err := domain.OperatorLocation()
	if err != nil {
		t.Fatalf("OperatorLocation() error = %v", err)
	}
	return time.Date(year, month, day, hour, minute, sec, 0, location)
}

func newTestActionLogger(t *testing.T, store storage.ObjectStore, now time.Time) *ActionLogger {
	t.Helper()

	l, err := NewActionLogger(store, "project", nil)
	if err != nil {
		t.Fatalf("NewActionLogger() error = %v", err)
	}
	l.now = func() time.Time { return now }
	return l
}
