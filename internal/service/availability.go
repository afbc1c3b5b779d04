package service

import "sort"

// resourceAvailability tracks which (day, slot) cells a teacher, room or student already holds.
type resourceAvailability struct {
	MaxLoadPerDay int
	perDay        map[int]int
	assigned      map[int]map[int]bool
}

func newResourceAvailability() *resourceAvailability {
	return &resourceAvailability{
		perDay:   make(map[int]int),
		assigned: make(map[int]map[int]bool),
	}
}

func (r *resourceAvailability) CanTake(day, slot int) bool {
	if r.assigned[day] != nil && r.assigned[day][slot] {
		return false
	}
	if r.MaxLoadPerDay > 0 && r.perDay[day] >= r.MaxLoadPerDay {
		return false
	}
	return true
}

func (r *resourceAvailability) Reserve(day, slot int) {
	if r.assigned[day] == nil {
		r.assigned[day] = make(map[int]bool)
	}
	r.assigned[day][slot] = true
	r.perDay[day]++
}

// resourcePool hands out the first resource free on every requested day at a slot.
type resourcePool struct {
	order []string
	byID  map[string]*resourceAvailability
}

func newResourcePool(ids []string, maxPerDay int) *resourcePool {
	pool := &resourcePool{byID: make(map[string]*resourceAvailability, len(ids))}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := pool.byID[id]; ok {
			continue
		}
		avail := newResourceAvailability()
		avail.MaxLoadPerDay = maxPerDay
		pool.byID[id] = avail
		pool.order = append(pool.order, id)
	}
	sort.Strings(pool.order)
	return pool
}

func (p *resourcePool) Len() int { return len(p.order) }

// Free reports whether id can take slot on all days.
func (p *resourcePool) Free(id string, days []int, slot int) bool {
	avail, ok := p.byID[id]
	if !ok {
		return false
	}
	for _, day := range days {
		if !avail.CanTake(day, slot) {
			return false
		}
	}
	return true
}

// Pick returns the first free resource, preferring the listed ids in order.
func (p *resourcePool) Pick(days []int, slot int, preferred ...string) (string, bool) {
	for _, id := range preferred {
		if id != "" && p.Free(id, days, slot) {
			return id, true
		}
	}
	for _, id := range p.order {
		if p.Free(id, days, slot) {
			return id, true
		}
	}
	return "", false
}

// FreeAll reports whether every id can take slot on all days. Unknown ids are treated as free.
func (p *resourcePool) FreeAll(ids []string, days []int, slot int) bool {
	for _, id := range ids {
		if _, ok := p.byID[id]; ok && !p.Free(id, days, slot) {
			return false
		}
	}
	return true
}

func (p *resourcePool) Reserve(id string, days []int, slot int) {
	avail, ok := p.byID[id]
	if !ok {
		return
	}
	for _, day := range days {
		avail.Reserve(day, slot)
	}
}

