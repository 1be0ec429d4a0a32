package repo

import (
	"context"
	"sync"

	"github.com/deal-associate/server/internal/agent/model"
	errx "github.com/deal-associate/server/internal/core/error"
)

// MemoryDealRepository keeps sessions in process. States are cloned on the
// way in and out so callers never share memory with the store.
type MemoryDealRepository struct {
	mu       sync.RWMutex
	sessions map[string]*model.DealState
}

func NewMemoryDealRepository() *MemoryDealRepository {
	return &MemoryDealRepository{sessions: make(map[string]*model.DealState)}
}

func (r *MemoryDealRepository) Load(_ context.Context, sessionID string) (*model.DealState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, errx.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (r *MemoryDealRepository) Save(_ context.Context, state *model.DealState, _ []model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[state.SessionID] = state.Clone()
	return nil
}

func (r *MemoryDealRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

var _ model.DealRepository = (*MemoryDealRepository)(nil)
