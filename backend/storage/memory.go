package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemoryBackend is an in-process Backend. Handles created with View share the
// same data; subscribers on one handle hear about writes made through the
// others, the way one browser tab hears about another. Notifications are
// delivered asynchronously, in write order, on one goroutine per subscription.
type MemoryBackend struct {
	shared *memoryShared
	id     int
}

type memoryShared struct {
	mu       sync.RWMutex
	items    map[string]string
	quota    int // bytes of key+value, 0 = unlimited
	used     int
	disabled bool
	nextID   int
	nextSub  int
	subs     map[int]memorySub
}

type memorySub struct {
	owner int
	d     *dispatcher
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*memoryShared)

// WithQuota limits the total size of stored keys and values in bytes.
func WithQuota(bytes int) MemoryOption {
	return func(s *memoryShared) {
		s.quota = bytes
	}
}

// NewMemoryBackend creates an empty store and returns its first handle.
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	shared := &memoryShared{
		items: make(map[string]string),
		subs:  make(map[int]memorySub),
	}
	for _, opt := range opts {
		opt(shared)
	}
	shared.nextID = 1
	return &MemoryBackend{shared: shared}
}

// View returns another handle over the same data.
func (m *MemoryBackend) View() *MemoryBackend {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	id := m.shared.nextID
	m.shared.nextID++
	return &MemoryBackend{shared: m.shared, id: id}
}

// SetDisabled makes every operation fail with ErrUnavailable.
func (m *MemoryBackend) SetDisabled(disabled bool) {
	m.shared.mu.Lock()
	m.shared.disabled = disabled
	m.shared.mu.Unlock()
}

func (m *MemoryBackend) GetItem(key string) (string, bool, error) {
	m.shared.mu.RLock()
	defer m.shared.mu.RUnlock()
	if m.shared.disabled {
		return "", false, ErrUnavailable
	}
	v, ok := m.shared.items[key]
	return v, ok, nil
}

func (m *MemoryBackend) SetItem(key, value string) error {
	m.shared.mu.Lock()
	if m.shared.disabled {
		m.shared.mu.Unlock()
		return ErrUnavailable
	}

	used := m.shared.used + len(key) + len(value)
	if old, ok := m.shared.items[key]; ok {
		used -= len(key) + len(old)
	}
	if m.shared.quota > 0 && used > m.shared.quota {
		m.shared.mu.Unlock()
		return ErrQuotaExceeded
	}

	m.shared.items[key] = value
	m.shared.used = used
	m.shared.publishLocked(m.id, Change{Key: key, NewValue: value})
	m.shared.mu.Unlock()
	return nil
}

func (m *MemoryBackend) RemoveItem(key string) error {
	m.shared.mu.Lock()
	if m.shared.disabled {
		m.shared.mu.Unlock()
		return ErrUnavailable
	}

	old, ok := m.shared.items[key]
	if !ok {
		m.shared.mu.Unlock()
		return nil
	}
	delete(m.shared.items, key)
	m.shared.used -= len(key) + len(old)
	m.shared.publishLocked(m.id, Change{Key: key, Removed: true})
	m.shared.mu.Unlock()
	return nil
}

// Subscribe implements Notifier. fn runs on a dedicated goroutine until cancel.
func (m *MemoryBackend) Subscribe(fn func(Change)) func() {
	d := newDispatcher(fn)

	m.shared.mu.Lock()
	id := m.shared.nextSub
	m.shared.nextSub++
	m.shared.subs[id] = memorySub{owner: m.id, d: d}
	m.shared.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.shared.mu.Lock()
			delete(m.shared.subs, id)
			m.shared.mu.Unlock()
			d.stop()
		})
	}
}

// Keys implements Lister. Keys are sorted.
func (m *MemoryBackend) Keys(prefix string) ([]string, error) {
	m.shared.mu.RLock()
	defer m.shared.mu.RUnlock()
	if m.shared.disabled {
		return nil, ErrUnavailable
	}
	keys := make([]string, 0, len(m.shared.items))
	for k := range m.shared.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// publishLocked queues c for subscribers not owned by handle id. Queuing under
// the lock keeps delivery order equal to write order.
func (s *memoryShared) publishLocked(id int, c Change) {
	for _, sub := range s.subs {
		if sub.owner != id {
			sub.d.push(c)
		}
	}
}

// dispatcher delivers queued changes to one subscriber in order.
type dispatcher struct {
	fn func(Change)

	mu      sync.Mutex
	pending []Change
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newDispatcher(fn func(Change)) *dispatcher {
	d := &dispatcher{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) push(c Change) {
	d.mu.Lock()
	d.pending = append(d.pending, c)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// stop ends delivery. Changes still queued are dropped.
func (d *dispatcher) stop() {
	d.once.Do(func() { close(d.done) })
}

func (d *dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}

		for {
			d.mu.Lock()
			batch := d.pending
			d.pending = nil
			d.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, c := range batch {
				select {
				case <-d.done:
					return
				default:
				}
				d.fn(c)
			}
		}
	}
}
