package transaction

import "sync"

// Selectors is a static registration table mapping call sites to database
// names. Method keys take the form "Type.Method"; type keys are plain type
// names. Registrations on a parent type are inherited by every type that
// extends it, and a method registered on a parent applies to overrides.
type Selectors struct {
	mu      sync.RWMutex
	methods map[string]string
	types   map[string]string
	parents map[string][]string
}

// NewSelectors creates an empty table
func NewSelectors() *Selectors {
	return &Selectors{
		methods: make(map[string]string),
		types:   make(map[string]string),
		parents: make(map[string][]string),
	}
}

// Method selects database for calls to receiver.method
func (s *Selectors) Method(receiver, method, database string) *Selectors {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[receiver+"."+method] = database
	return s
}

// Type selects database for every call on receiver
func (s *Selectors) Type(receiver, database string) *Selectors {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[receiver] = database
	return s
}

// Extends declares that child inherits the registrations of parents
func (s *Selectors) Extends(child string, parents ...string) *Selectors {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parents[child] = append(s.parents[child], parents...)
	return s
}

// Lookup returns the database selected for call. The explicit per-call
// value wins, then method registrations, then type registrations, each
// searched from the receiver outward through its ancestors.
func (s *Selectors) Lookup(call *Call) (string, bool) {
	if call == nil {
		return "", false
	}
	if call.Database != "" {
		return call.Database, true
	}
	if s == nil || call.Receiver == "" {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage := s.lineage(call.Receiver)
	if call.Method != "" {
		for _, t := range lineage {
			if db, ok := s.methods[t+"."+call.Method]; ok {
				return db, true
			}
		}
	}
	for _, t := range lineage {
		if db, ok := s.types[t]; ok {
			return db, true
		}
	}
	return "", false
}

// lineage lists receiver and its ancestors breadth first, nearest first
func (s *Selectors) lineage(receiver string) []string {
	seen := map[string]bool{receiver: true}
	order := []string{receiver}
	for i := 0; i < len(order); i++ {
		for _, p := range s.parents[order[i]] {
			if !seen[p] {
				seen[p] = true
				order = append(order, p)
			}
		}
	}
	return order
}
