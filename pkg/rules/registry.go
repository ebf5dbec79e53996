package rules

import (
	"sort"
	"sync"

	"github.com/Ramsey-B/laurel/pkg/models"
)

// Registry caches active rule sets by document type so the pipeline never
// touches Postgres on the hot path. Reloaded on startup and after admin
// mutations.
type Registry struct {
	sets map[string]*models.RuleSet // document_type -> rule set
	mu   sync.RWMutex
}

// NewRegistry creates an empty rule set registry
func NewRegistry() *Registry {
	return &Registry{
		sets: make(map[string]*models.RuleSet),
	}
}

// Load replaces the registry contents. Only active rule sets are kept.
func (r *Registry) Load(sets []models.RuleSet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sets = make(map[string]*models.RuleSet, len(sets))
	for i := range sets {
		if !sets[i].IsActive {
			continue
		}
		set := sets[i]
		r.sets[set.DocumentType] = &set
	}
}

// Update upserts a single rule set. A deactivated set is removed.
func (r *Registry) Update(set *models.RuleSet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !set.IsActive {
		delete(r.sets, set.DocumentType)
		return
	}
	r.sets[set.DocumentType] = set
}

// Remove drops the rule set for a document type
func (r *Registry) Remove(documentType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sets, documentType)
}

// Get returns the active rule set for a document type
func (r *Registry) Get(documentType string) (*models.RuleSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.sets[documentType]
	return set, ok
}

// Types returns the registered document types, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.sets))
	for dt := range r.sets {
		types = append(types, dt)
	}
	sort.Strings(types)
	return types
}

// Count returns the number of registered rule sets
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets)
}
