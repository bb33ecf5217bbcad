package application

import "sync"

// snapshotHub fans snapshots out to subscribers of a schedule. Delivery never
// blocks: a slow subscriber only ever sees the latest snapshot.
type snapshotHub struct {
	mu   sync.Mutex
	subs map[ScheduleKey]map[chan Snapshot]struct{}
}

func newSnapshotHub() *snapshotHub {
	return &snapshotHub{subs: make(map[ScheduleKey]map[chan Snapshot]struct{})}
}

func (h *snapshotHub) subscribe(key ScheduleKey) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	h.mu.Lock()
	set, ok := h.subs[key]
	if !ok {
		set = make(map[chan Snapshot]struct{})
		h.subs[key] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[key]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, key)
				}
			}
			close(ch)
		})
	}
}

func (h *snapshotHub) publish(key ScheduleKey, snapshot Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[key] {
		select {
		case ch <- snapshot:
		default:
			// Replace the undelivered snapshot.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

func (h *snapshotHub) keys() []ScheduleKey {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]ScheduleKey, 0, len(h.subs))
	for key := range h.subs {
		keys = append(keys, key)
	}
	return keys
}

// keyedMutex serialises work per schedule.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[ScheduleKey]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[ScheduleKey]*keyedLock)}
}

func (k *keyedMutex) lock(key ScheduleKey) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
