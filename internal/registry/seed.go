package registry

import (
	"fmt"
	"sync"

	"github.com/trigg3rX/labelmarket-backend/internal/decoder"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

// Seeder writes a registry snapshot into a ledger.MemoryStore, laid out exactly as the
// marketplace package lays out its tables. It backs the in-memory development ledger
// and tests.
type Seeder struct {
	mu        sync.Mutex
	store     *ledger.MemoryStore
	packageID string
	registry  decoder.Registry
	nextID    uint64
}

func NewSeeder(store *ledger.MemoryStore, packageID, registryID string) *Seeder {
	s := &Seeder{store: store, packageID: packageID}
	s.registry = decoder.Registry{
		ID:          registryID,
		Profiles:    decoder.Table{ID: s.newID()},
		Tasks:       decoder.Table{ID: s.newID()},
		Submissions: decoder.Table{ID: s.newID()},
		Reputation:  decoder.Table{ID: s.newID()},
	}
	s.flush()
	return s
}

func (s *Seeder) newID() string {
	s.nextID++
	return fmt.Sprintf("0x5eed%060x", s.nextID)
}

// NewObjectID allocates an id no other seeded object uses.
func (s *Seeder) NewObjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newID()
}

func (s *Seeder) flush() {
	s.store.PutObject(decoder.EncodeRegistry(s.packageID, &s.registry))
}

func (s *Seeder) ensureID(id *string) {
	if *id == "" {
		*id = s.newID()
	}
}

func (s *Seeder) AddProfile(p *types.Profile) *types.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureID(&p.ObjectID)
	s.store.PutObject(decoder.EncodeProfile(s.packageID, p))
	s.store.PutTableEntry(s.registry.Profiles.ID, addressKey(p.Owner), p.ObjectID)
	s.registry.Profiles.Size++
	s.flush()
	return p
}

// AddOwnedProfile stores a profile without registering it in the profiles table.
func (s *Seeder) AddOwnedProfile(p *types.Profile) *types.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureID(&p.ObjectID)
	s.store.PutObject(decoder.EncodeProfile(s.packageID, p))
	return p
}

func (s *Seeder) AddTask(t *types.Task) *types.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureID(&t.ObjectID)
	if t.TaskID == 0 {
		t.TaskID = s.registry.TaskCount + 1
	}
	if t.TaskID > s.registry.TaskCount {
		s.registry.TaskCount = t.TaskID
	}
	s.putTaskLocked(t)
	s.store.PutTableEntry(s.registry.Tasks.ID, u64Key(t.TaskID), t.ObjectID)
	s.registry.Tasks.Size++
	s.flush()
	return t
}

// UpdateTask overwrites a previously added task object in place.
func (s *Seeder) UpdateTask(t *types.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putTaskLocked(t)
}

func (s *Seeder) putTaskLocked(t *types.Task) {
	s.store.PutObject(decoder.EncodeTask(s.packageID, t))
}

func (s *Seeder) AddSubmission(sub *types.Submission) *types.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureID(&sub.ObjectID)
	if sub.SubmissionID == 0 {
		sub.SubmissionID = s.registry.Submissions.Size + 1
	}
	s.store.PutObject(decoder.EncodeSubmission(s.packageID, sub))
	s.store.PutTableEntry(s.registry.Submissions.ID, u64Key(sub.SubmissionID), sub.ObjectID)
	s.registry.Submissions.Size++
	s.flush()
	return sub
}

func (s *Seeder) UpdateSubmission(sub *types.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.PutObject(decoder.EncodeSubmission(s.packageID, sub))
}

func (s *Seeder) AddReputation(r *types.ReputationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	s.store.PutObject(decoder.EncodeReputation(s.packageID, id, r))
	s.store.PutTableEntry(s.registry.Reputation.ID, addressKey(r.User), id)
	s.registry.Reputation.Size++
	s.flush()
}

func (s *Seeder) AddStake(st *types.Stake) *types.Stake {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureID(&st.ObjectID)
	s.store.PutObject(decoder.EncodeStake(s.packageID, st))
	return st
}

// AddRawTaskEntry registers obj under taskID without validating its fields, for
// snapshots containing legacy or corrupt records.
func (s *Seeder) AddRawTaskEntry(taskID uint64, obj *ledger.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureID(&obj.ID)
	s.store.PutObject(obj)
	s.store.PutTableEntry(s.registry.Tasks.ID, u64Key(taskID), obj.ID)
	s.registry.Tasks.Size++
	s.flush()
}

func (s *Seeder) Registry() decoder.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry
}

func (s *Seeder) PackageID() string {
	return s.packageID
}
