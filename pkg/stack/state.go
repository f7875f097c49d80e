package stack

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// StateStore provides persistent storage for deployment references and ownership tracking.
type StateStore interface {
	// Save stores a deployment reference.
	Save(ctx context.Context, ref DeploymentRef) error

	// Get retrieves a deployment reference by ID.
	Get(ctx context.Context, id string) (*DeploymentRef, error)

	// List returns all stored deployment references matching the filter.
	List(ctx context.Context, filter ListFilter) ([]DeploymentRef, error)

	// Delete removes a deployment reference from the store.
	Delete(ctx context.Context, id string) error

	// Exists checks if a deployment reference exists.
	Exists(ctx context.Context, id string) (bool, error)

	// UpdateOwnership updates the ownership status of a deployment.
	UpdateOwnership(ctx context.Context, id string, owned bool) error
}

// StateStoreVersion is the current schema version for state storage.
const StateStoreVersion = 1

// StateData is the serializable state format.
type StateData struct {
	Version     int                      `json:"version"`
	Deployments map[string]DeploymentRef `json:"deployments"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// MemoryStateStore is an in-memory StateStore implementation for testing.
type MemoryStateStore struct {
	mu    sync.RWMutex
	state StateData
}

// NewMemoryStateStore creates a new in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		state: StateData{
			Version:     StateStoreVersion,
			Deployments: make(map[string]DeploymentRef),
			UpdatedAt:   time.Now(),
		},
	}
}

// Save implements StateStore.
func (s *MemoryStateStore) Save(ctx context.Context, ref DeploymentRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Deployments[ref.ID] = ref
	s.state.UpdatedAt = time.Now()
	return nil
}

// Get implements StateStore.
func (s *MemoryStateStore) Get(ctx context.Context, id string) (*DeploymentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, exists := s.state.Deployments[id]
	if !exists {
		return nil, ErrNotFound("deployment", id)
	}
	return &ref, nil
}

// List implements StateStore.
func (s *MemoryStateStore) List(ctx context.Context, filter ListFilter) ([]DeploymentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]DeploymentRef, 0, len(s.state.Deployments))
	for _, ref := range s.state.Deployments {
		refs = append(refs, ref)
	}
	return applyFilter(refs, filter), nil
}

// Delete implements StateStore.
func (s *MemoryStateStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state.Deployments[id]; !exists {
		// Idempotent: deleting non-existent is not an error
		return nil
	}

	delete(s.state.Deployments, id)
	s.state.UpdatedAt = time.Now()
	return nil
}

// Exists implements StateStore.
func (s *MemoryStateStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.state.Deployments[id]
	return exists, nil
}

// UpdateOwnership implements StateStore.
func (s *MemoryStateStore) UpdateOwnership(ctx context.Context, id string, owned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, exists := s.state.Deployments[id]
	if !exists {
		return ErrNotFound("deployment", id)
	}

	ref.Owned = owned
	s.state.Deployments[id] = ref
	s.state.UpdatedAt = time.Now()
	return nil
}

// FileStateStore is a file-based StateStore implementation.
type FileStateStore struct {
	mu       sync.RWMutex
	filePath string
	state    StateData
}

// NewFileStateStore creates a new file-based state store.
// If the file exists, it loads the existing state.
func NewFileStateStore(filePath string) (*FileStateStore, error) {
	s := &FileStateStore{
		filePath: filePath,
		state: StateData{
			Version:     StateStoreVersion,
			Deployments: make(map[string]DeploymentRef),
			UpdatedAt:   time.Now(),
		},
	}

	// Try to load existing state
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	return s, nil
}

// load reads state from file.
func (s *FileStateStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var state StateData
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("invalid state file format: %w", err)
	}

	if state.Version != StateStoreVersion {
		if err := s.migrate(&state); err != nil {
			return fmt.Errorf("state migration failed: %w", err)
		}
	}

	if state.Deployments == nil {
		state.Deployments = make(map[string]DeploymentRef)
	}

	s.state = state
	return nil
}

// migrate handles schema version upgrades. Only version 1 exists.
func (s *FileStateStore) migrate(state *StateData) error {
	if state.Version > StateStoreVersion {
		return fmt.Errorf("state version %d is newer than supported version %d", state.Version, StateStoreVersion)
	}
	state.Version = StateStoreVersion
	return nil
}

// save writes state to file atomically.
func (s *FileStateStore) save() error {
	s.state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Write atomically using temp file
	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}

	if err := os.Rename(tmpFile, s.filePath); err != nil {
		os.Remove(tmpFile) // Clean up temp file
		return fmt.Errorf("failed to rename state file: %w", err)
	}

	return nil
}

// Save implements StateStore.
func (s *FileStateStore) Save(ctx context.Context, ref DeploymentRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Deployments[ref.ID] = ref
	return s.save()
}

// Get implements StateStore.
func (s *FileStateStore) Get(ctx context.Context, id string) (*DeploymentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, exists := s.state.Deployments[id]
	if !exists {
		return nil, ErrNotFound("deployment", id)
	}
	return &ref, nil
}

// List implements StateStore.
func (s *FileStateStore) List(ctx context.Context, filter ListFilter) ([]DeploymentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]DeploymentRef, 0, len(s.state.Deployments))
	for _, ref := range s.state.Deployments {
		refs = append(refs, ref)
	}
	return applyFilter(refs, filter), nil
}

// Delete implements StateStore.
func (s *FileStateStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state.Deployments[id]; !exists {
		return nil // Idempotent
	}

	delete(s.state.Deployments, id)
	return s.save()
}

// Exists implements StateStore.
func (s *FileStateStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.state.Deployments[id]
	return exists, nil
}

// UpdateOwnership implements StateStore.
func (s *FileStateStore) UpdateOwnership(ctx context.Context, id string, owned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, exists := s.state.Deployments[id]
	if !exists {
		return ErrNotFound("deployment", id)
	}

	ref.Owned = owned
	s.state.Deployments[id] = ref
	return s.save()
}

// DefaultStateStorePath returns the default path for the state store file.
func DefaultStateStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".cognito-stack", "state.json")
}

// applyFilter filters refs and orders them by creation time before paging.
func applyFilter(refs []DeploymentRef, filter ListFilter) []DeploymentRef {
	out := refs[:0]
	for _, ref := range refs {
		if filter.StackName != "" && ref.StackName != filter.StackName {
			continue
		}
		if filter.Provider != "" && ref.Provider != filter.Provider {
			continue
		}
		out = append(out, ref)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out
}
