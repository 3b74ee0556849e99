package payroll

import (
	"fmt"
	"sync"
	"time"
)

// StoredRuleSet is a rule set document as persisted: the raw JSONC text plus
// the metadata needed to look it up. Parsing and preparation happen when a
// registry loads the document, not here.
type StoredRuleSet struct {
	ID        string
	Country   string
	Year      int
	Document  []byte
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func storeKey(country string, year int) string {
	return fmt.Sprintf("%s/%d", country, year)
}

// RuleSetStore manages rule set persistence and retrieval.
type RuleSetStore interface {
	// Put inserts a new rule set document. Country+year must be unique
	// among active documents.
	Put(rs *StoredRuleSet) error

	// Get returns the active document for a country and year.
	Get(country string, year int) (*StoredRuleSet, error)

	// ListActive returns all active documents.
	ListActive() ([]*StoredRuleSet, error)

	// Update replaces an existing document.
	Update(rs *StoredRuleSet) error

	// Delete removes a document by id.
	Delete(id string) error
}

// InMemoryRuleSetStore implements RuleSetStore with a map. Thread-safe.
type InMemoryRuleSetStore struct {
	byID map[string]*StoredRuleSet
	mu   sync.RWMutex
}

// NewInMemoryRuleSetStore creates an empty in-memory store.
func NewInMemoryRuleSetStore() *InMemoryRuleSetStore {
	return &InMemoryRuleSetStore{byID: make(map[string]*StoredRuleSet)}
}

func (s *InMemoryRuleSetStore) Put(rs *StoredRuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[rs.ID]; exists {
		return fmt.Errorf("rule set with ID %s already exists", rs.ID)
	}
	for _, other := range s.byID {
		if other.Active && rs.Active && other.Country == rs.Country && other.Year == rs.Year {
			return fmt.Errorf("an active rule set for %s already exists", storeKey(rs.Country, rs.Year))
		}
	}

	now := time.Now()
	rs.CreatedAt = now
	rs.UpdatedAt = now
	s.byID[rs.ID] = rs
	return nil
}

func (s *InMemoryRuleSetStore) Get(country string, year int) (*StoredRuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rs := range s.byID {
		if rs.Active && rs.Country == country && rs.Year == year {
			return rs, nil
		}
	}
	return nil, fmt.Errorf("no active rule set for %s", storeKey(country, year))
}

func (s *InMemoryRuleSetStore) ListActive() ([]*StoredRuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*StoredRuleSet
	for _, rs := range s.byID {
		if rs.Active {
			active = append(active, rs)
		}
	}
	return active, nil
}

func (s *InMemoryRuleSetStore) Update(rs *StoredRuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.byID[rs.ID]
	if !exists {
		return fmt.Errorf("rule set with ID %s not found", rs.ID)
	}

	rs.CreatedAt = existing.CreatedAt
	rs.UpdatedAt = time.Now()
	s.byID[rs.ID] = rs
	return nil
}

func (s *InMemoryRuleSetStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[id]; !exists {
		return fmt.Errorf("rule set with ID %s not found", id)
	}

	delete(s.byID, id)
	return nil
}
