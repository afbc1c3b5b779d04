package lock

import (
	"context"
	"fmt"
	"sync"
)

// KeyedMutex serializes work per aggregate key ("course:<id>", "schedule:<id>").
// Waiters give up when their context ends.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex builds an empty lock table.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done. The returned func releases the key.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.slots[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.slots[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				k.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		k.release(key, e)
		return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
	}
}

func (k *KeyedMutex) release(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.slots, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

// CourseKey, ScheduleKey and YearKey name the aggregates the engine serializes on.
func CourseKey(courseID string) string { return "course:" + courseID }

func ScheduleKey(scheduleID string) string { return "schedule:" + scheduleID }

func YearKey(year int) string { return fmt.Sprintf("matrix:%d", year) }
