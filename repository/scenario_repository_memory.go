package repository

import "sync"

// ScenarioRepositoryMemory keeps the most recent scenarios in memory,
// dropping the oldest once the limit is reached.
type ScenarioRepositoryMemory struct {
	mu    sync.Mutex
	limit int
	data  []Scenario
}

// NewScenarioRepositoryMemory creates a history holding at most limit
// entries. A non-positive limit means unbounded.
func NewScenarioRepositoryMemory(limit int) *ScenarioRepositoryMemory {
	return &ScenarioRepositoryMemory{
		limit: limit,
		data:  []Scenario{},
	}
}

func (r *ScenarioRepositoryMemory) Save(scenario Scenario) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data = append(r.data, scenario)
	if r.limit > 0 && len(r.data) > r.limit {
		r.data = r.data[len(r.data)-r.limit:]
	}
	return nil
}

// List returns a copy, oldest first.
func (r *ScenarioRepositoryMemory) List() []Scenario {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Scenario, len(r.data))
	copy(out, r.data)
	return out
}
