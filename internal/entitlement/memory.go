// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package entitlement

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	content map[string]Content
	grants  []Grant
	err     error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{content: make(map[string]Content)}
}

// PutCourse registers a course.
func (m *MemoryStore) PutCourse(id string, free bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[id] = Content{ID: id, CourseID: id, Free: free}
}

// PutVideo registers a video inside courseID whose assets live in a
// directory named after it. A video inherits the free flag of its course.
func (m *MemoryStore) PutVideo(id, courseID string, free bool) {
	m.PutVideoAt(id, courseID, id, free)
}

// PutVideoAt is PutVideo with an explicit asset directory.
func (m *MemoryStore) PutVideoAt(id, courseID, assetPrefix string, free bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if course, ok := m.content[courseID]; ok && course.Free {
		free = true
	}
	m.content[id] = Content{ID: id, CourseID: courseID, Free: free, AssetPrefix: assetPrefix}
}

// AddGrant appends a grant record.
func (m *MemoryStore) AddGrant(g Grant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants = append(m.grants, g)
}

// FailWith makes every subsequent call return err (nil restores normal operation).
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// LookupContent implements Store.
func (m *MemoryStore) LookupContent(_ context.Context, id string) (Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return Content{}, m.err
	}
	c, ok := m.content[id]
	if !ok {
		return Content{}, ErrNotFound
	}
	return c, nil
}

// LatestGrant implements Store.
func (m *MemoryStore) LatestGrant(_ context.Context, userID string, contentIDs ...string) (Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return Grant{}, m.err
	}
	var (
		best  Grant
		found bool
	)
	for _, g := range m.grants {
		if g.UserID != userID || !slices.Contains(contentIDs, g.ContentID) {
			continue
		}
		if !found || g.GrantedAt.After(best.GrantedAt) {
			best, found = g, true
		}
	}
	if !found {
		return Grant{}, ErrNotFound
	}
	return best, nil
}
