package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/slavierouse/sound-your-scene/internal/job"
)

// Memory is an in-process store. Records are deep copied through JSON on the
// way in and out so callers never share mutable state with the store.
type Memory struct {
	mu      sync.RWMutex
	jobs    map[string][]byte
	results map[string][]byte
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		jobs:    make(map[string][]byte),
		results: make(map[string][]byte),
	}
}

func (m *Memory) Put(_ context.Context, j *job.SearchJob) error {
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = data
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*job.SearchJob, error) {
	m.mu.RLock()
	data, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var j job.SearchJob
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (m *Memory) SetResults(_ context.Context, jobID string, results []job.RankedResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[jobID] = data
	return nil
}

func (m *Memory) GetResults(_ context.Context, jobID string) ([]job.RankedResult, error) {
	m.mu.RLock()
	data, ok := m.results[jobID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var results []job.RankedResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, err
	}
	return results, nil
}
