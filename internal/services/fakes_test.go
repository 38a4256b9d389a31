package services

import (
	"context"
	"sync"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/models"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memCalls struct {
	mu   sync.Mutex
	recs []*models.CallRecord
}

func (m *memCalls) UpsertBySession(ctx context.Context, rec *models.CallRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.CallSessionID == rec.CallSessionID {
			id, created := r.ID, r.CreatedAt
			*r = *rec
			r.ID, r.CreatedAt = id, created
			rec.ID = id
			return false, nil
		}
	}
	cp := *rec
	cp.ID = primitive.NewObjectID()
	rec.ID = cp.ID
	m.recs = append(m.recs, &cp)
	return true, nil
}

func (m *memCalls) FindBySession(ctx context.Context, sessionID string) (*models.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.CallSessionID == sessionID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (m *memCalls) FindRecentInitiated(ctx context.Context, leadID, phone string, since time.Time) (*models.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.CallRecord
	for _, r := range m.recs {
		if r.Status != models.CallInitiated || r.CreatedAt.Before(since) {
			continue
		}
		if leadID != "" && r.LeadID != leadID {
			continue
		}
		if leadID == "" && r.PhoneNumber != phone {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) {
			best = r
		}
	}
	if best == nil {
		return nil, utils.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memCalls) UpdateByID(ctx context.Context, id primitive.ObjectID, rec *models.CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.ID == id {
			*r = *rec
			return nil
		}
	}
	return utils.ErrNotFound
}

func (m *memCalls) Insert(ctx context.Context, rec *models.CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = primitive.NewObjectID()
	cp := *rec
	m.recs = append(m.recs, &cp)
	return nil
}

func (m *memCalls) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

type memLeads struct {
	mu      sync.Mutex
	leads   map[primitive.ObjectID]*models.Lead
	touched int
}

func newMemLeads(ls ...models.Lead) *memLeads {
	m := &memLeads{leads: map[primitive.ObjectID]*models.Lead{}}
	for i := range ls {
		l := ls[i]
		m.leads[l.ID] = &l
	}
	return m
}

func (m *memLeads) FindByID(ctx context.Context, id string) (*models.Lead, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, utils.ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.leads[oid]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, utils.ErrNotFound
}

func (m *memLeads) FindByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	clean := utils.CleanPhone(phone)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leads {
		if utils.CleanPhone(l.Phone) == clean {
			cp := *l
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (m *memLeads) SetStatus(ctx context.Context, id primitive.ObjectID, status models.LeadStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return utils.ErrNotFound
	}
	l.Status, l.StatusReason = status, reason
	return nil
}

func (m *memLeads) TouchLastCall(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched++
	return nil
}

func (m *memLeads) status(id primitive.ObjectID) models.LeadStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leads[id].Status
}

type memDedupe struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDedupe) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}
