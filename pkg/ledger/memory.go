package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/trigg3rX/labelmarket-backend/pkg/env"
	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
)

type dynamicEntry struct {
	name    DynamicFieldName
	fieldID string
}

// MemoryStore is an in-process Client used to build ledger snapshots in tests and demos.
type MemoryStore struct {
	mu       sync.RWMutex
	objects  map[string]*Object
	dynamic  map[string][]dynamicEntry
	failures map[string]error
	calls    map[string]int
	executed []SignedTransaction
	nextID   uint64

	// ExecuteHook decides the outcome of ExecuteTransaction. Nil means success.
	ExecuteHook func(tx SignedTransaction) (*Effects, error)
}

var _ Client = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string]*Object),
		dynamic:  make(map[string][]dynamicEntry),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// PutObject stores obj, replacing any object with the same id.
func (m *MemoryStore) PutObject(obj *Object) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[obj.ID] = obj
}

// DeleteObject removes an object but leaves any table entries pointing at it.
func (m *MemoryStore) DeleteObject(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, id)
}

// PutTableEntry attaches key -> valueID under the table object tableID, the way a
// Table<K, ID> stores its entries as dynamic fields.
func (m *MemoryStore) PutTableEntry(tableID string, name DynamicFieldName, valueID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	fieldID := fmt.Sprintf("0xdf%062x", m.nextID)
	m.objects[fieldID] = &Object{
		ID:    fieldID,
		Type:  "0x2::dynamic_field::Field",
		Owner: tableID,
		Fields: map[string]any{
			"name":  name.Value,
			"value": valueID,
		},
	}
	entries := m.dynamic[tableID]
	for i := range entries {
		if sameName(entries[i].name, name) {
			entries[i].fieldID = fieldID
			return
		}
	}
	m.dynamic[tableID] = append(entries, dynamicEntry{name: name, fieldID: fieldID})
}

// FailObject makes every read of id return err.
func (m *MemoryStore) FailObject(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id] = err
}

// Calls returns how many times a Client method has been invoked.
func (m *MemoryStore) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

func (m *MemoryStore) TotalReads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for method, n := range m.calls {
		if method != "ExecuteTransaction" {
			total += n
		}
	}
	return total
}

func (m *MemoryStore) Executed() []SignedTransaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SignedTransaction(nil), m.executed...)
}

func (m *MemoryStore) GetObject(ctx context.Context, id string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetObject"]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.lookupLocked(id)
}

func (m *MemoryStore) GetDynamicField(ctx context.Context, parentID string, name DynamicFieldName) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetDynamicField"]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, entry := range m.dynamic[parentID] {
		if sameName(entry.name, name) {
			return m.lookupLocked(entry.fieldID)
		}
	}
	return nil, fmt.Errorf("dynamic field %s under %s: %w", name, parentID, pkgErrors.ErrNotFound)
}

func (m *MemoryStore) ListDynamicFields(ctx context.Context, parentID string) ([]DynamicFieldInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ListDynamicFields"]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.failures[parentID]; ok {
		return nil, err
	}
	entries := m.dynamic[parentID]
	infos := make([]DynamicFieldInfo, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, DynamicFieldInfo{Name: entry.name, ObjectID: entry.fieldID, ObjectType: "0x2::dynamic_field::Field"})
	}
	return infos, nil
}

func (m *MemoryStore) ListOwnedObjects(ctx context.Context, owner, structType string) ([]*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ListOwnedObjects"]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var owned []*Object
	for _, obj := range m.objects {
		if env.NormalizeObjectID(obj.Owner) == env.NormalizeObjectID(owner) && (structType == "" || obj.Type == structType) {
			owned = append(owned, cloneObject(obj))
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].ID < owned[j].ID })
	return owned, nil
}

func (m *MemoryStore) ExecuteTransaction(ctx context.Context, tx SignedTransaction) (*Effects, error) {
	m.mu.Lock()
	m.calls["ExecuteTransaction"]++
	m.executed = append(m.executed, tx)
	hook := m.ExecuteHook
	digest := fmt.Sprintf("digest-%d", len(m.executed))
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hook != nil {
		return hook(tx)
	}
	return &Effects{Digest: digest, Status: StatusSuccess}, nil
}

func (m *MemoryStore) lookupLocked(id string) (*Object, error) {
	if err, ok := m.failures[id]; ok {
		return nil, err
	}
	obj, ok := m.objects[id]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", id, pkgErrors.ErrNotFound)
	}
	return cloneObject(obj), nil
}

func cloneObject(obj *Object) *Object {
	clone := *obj
	clone.Fields = make(map[string]any, len(obj.Fields))
	for k, v := range obj.Fields {
		clone.Fields[k] = v
	}
	return &clone
}

func sameName(a, b DynamicFieldName) bool {
	return a.Type == b.Type && fmt.Sprint(a.Value) == fmt.Sprint(b.Value)
}
