package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// memStore is an in-memory ItemStore and PersonDirectory.
type memStore struct {
	mu     sync.Mutex
	items  map[int64]model.Item
	events []model.ItemEvent
	people map[int64]model.Person
	nextID int64

	// beforeUpdate runs before a compare-and-swap, outside the lock, to
	// simulate a concurrent writer.
	beforeUpdate func(id int64)
	failUpdates  error
}

func newMemStore() *memStore {
	return &memStore{items: map[int64]model.Item{}, people: map[int64]model.Person{}}
}

func (m *memStore) CreateItem(_ context.Context, item *model.Item, actor string) (*model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	it := *item
	it.ID = m.nextID
	it.Version = 1
	it.CreatedAt = time.Now().UTC()
	it.UpdatedAt = it.CreatedAt
	m.items[it.ID] = it
	m.events = append(m.events, model.ItemEvent{ItemID: it.ID, ToStatus: it.Status(), Actor: actor, Note: "reported"})
	out := it
	return &out, nil
}

func (m *memStore) GetItem(_ context.Context, id int64) (*model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (m *memStore) FindItems(_ context.Context, f model.ItemFilter) ([]model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Item
	for id := int64(1); id <= m.nextID; id++ {
		it, ok := m.items[id]
		if !ok {
			continue
		}
		if f.Status != "" && it.Status() != f.Status {
			continue
		}
		if f.Category != "" && it.Category != f.Category {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (m *memStore) UpdateItem(_ context.Context, item *model.Item, expected int64, ev *model.ItemEvent) (*model.Item, error) {
	if m.beforeUpdate != nil {
		hook := m.beforeUpdate
		m.beforeUpdate = nil
		hook(item.ID)
	}
	if m.failUpdates != nil {
		return nil, m.failUpdates
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[item.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if cur.Version != expected {
		return nil, store.ErrVersionConflict
	}
	it := *item
	it.Version = cur.Version + 1
	it.Reporter, it.Finder, it.Claimant = nil, nil, nil
	m.items[it.ID] = it
	if ev != nil {
		e := *ev
		e.ItemID = it.ID
		m.events = append(m.events, e)
	}
	out := it
	return &out, nil
}

func (m *memStore) ListItemEvents(_ context.Context, id int64) ([]model.ItemEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ItemEvent
	for _, e := range m.events {
		if e.ItemID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) ResolvePerson(_ context.Context, in model.PersonInput) (*model.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if col, _ := in.NaturalKey(); col != "" {
		for _, p := range m.people {
			if (in.StudentID != "" && p.StudentID == in.StudentID) || (in.EmployeeID != "" && p.EmployeeID == in.EmployeeID) {
				return &p, nil
			}
		}
	}
	id := int64(len(m.people) + 1)
	p := model.Person{ID: id, Name: in.Name, Type: in.Type, StudentID: in.StudentID, EmployeeID: in.EmployeeID}
	m.people[id] = p
	return &p, nil
}

func (m *memStore) GetPerson(_ context.Context, id int64) (*model.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.people[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// put stores an item directly, bypassing the service.
func (m *memStore) put(it model.Item) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	it.ID = m.nextID
	if it.Version == 0 {
		it.Version = 1
	}
	m.items[it.ID] = it
	return it.ID
}

// bump changes an item in place as a concurrent writer would.
func (m *memStore) bump(id int64, change func(*model.Item)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.items[id]
	change(&it)
	it.Version++
	m.items[id] = it
}

var errStoreDown = errors.New("database is locked")
