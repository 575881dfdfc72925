package billing

import (
	"context"
	"sync"
	"time"

	"github.com/ManuelReschke/CoachFox/app/models"
)

// MemoryStore is an in-process Store used by tests and the CLI dry runs.
// Records are copied on the way in and out.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.OrganizationBilling
	events  map[string]*models.BillingWebhookEvent
	nextID  uint

	// BeforeSave, when set, runs before every Save and may return an error
	// to simulate a failing or contended write.
	BeforeSave func(rec *models.OrganizationBilling) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*models.OrganizationBilling),
		events:  make(map[string]*models.BillingWebhookEvent),
	}
}

func (m *MemoryStore) Get(_ context.Context, organizationID string) (*models.OrganizationBilling, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[organizationID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) FindByExternalCustomerID(_ context.Context, customerID string) (*models.OrganizationBilling, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if customerID == "" {
		return nil, ErrNotFound
	}
	for _, rec := range m.records {
		if rec.ExternalCustomerID == customerID {
			return rec.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Create(_ context.Context, rec *models.OrganizationBilling) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.OrganizationID]; ok {
		return ErrConflict
	}
	if rec.Version == 0 {
		rec.Version = 1
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	m.nextID++
	rec.ID = m.nextID
	m.records[rec.OrganizationID] = rec.Clone()
	return nil
}

func (m *MemoryStore) Save(_ context.Context, rec *models.OrganizationBilling) error {
	if m.BeforeSave != nil {
		if err := m.BeforeSave(rec); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[rec.OrganizationID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != rec.Version {
		return ErrConflict
	}
	rec.Version++
	m.records[rec.OrganizationID] = rec.Clone()
	return nil
}

// Put stores rec as-is, bypassing version checks. Test setup helper.
func (m *MemoryStore) Put(rec *models.OrganizationBilling) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.Version == 0 {
		rec.Version = 1
	}
	m.records[rec.OrganizationID] = rec.Clone()
}

func (m *MemoryStore) RecordWebhookEvent(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := event.Provider + "/" + event.ProviderEventID
	if stored, ok := m.events[key]; ok {
		cp := *stored
		return false, &cp, nil
	}
	m.nextID++
	stored := *event
	stored.ID = m.nextID
	stored.CreatedAt = time.Now().UTC()
	m.events[key] = &stored
	cp := stored
	return true, &cp, nil
}

func (m *MemoryStore) MarkWebhookProcessed(_ context.Context, id uint, outcome, organizationID, processingError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, ev := range m.events {
		if ev.ID != id {
			continue
		}
		ev.ProcessedAt = &now
		ev.Outcome = outcome
		ev.ProcessingError = processingError
		ev.Attempts++
		if organizationID != "" {
			ev.OrganizationID = organizationID
		}
		return nil
	}
	return ErrNotFound
}

// WebhookEvent returns a copy of the logged event, for assertions.
func (m *MemoryStore) WebhookEvent(provider, eventID string) (*models.BillingWebhookEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[provider+"/"+eventID]
	if !ok {
		return nil, false
	}
	cp := *ev
	return &cp, true
}
