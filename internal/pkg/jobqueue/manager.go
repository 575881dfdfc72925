package jobqueue

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CoachFox/internal/pkg/mail"
)

// Manager owns the job queue and wires the billing job handlers.
type Manager struct {
	queue   *Queue
	mu      sync.Mutex
	running bool
}

// NewManager creates a queue on client and registers the billing handlers.
// A nil resyncer leaves resync jobs unhandled.
func NewManager(client *redis.Client, workers int, sender mail.Sender, resyncer Resyncer) *Manager {
	q := NewQueue(client, workers)
	if sender != nil {
		q.Register(JobTypeBillingNotification, BillingNotificationHandler(sender))
	}
	if resyncer != nil {
		q.Register(JobTypeBillingResync, BillingResyncHandler(resyncer))
	}
	return &Manager{queue: q}
}

// RegisterResyncer installs the resync handler. Used when the resyncer is
// built after the manager, as the billing service needs the manager's notifier.
func (m *Manager) RegisterResyncer(r Resyncer) {
	m.queue.Register(JobTypeBillingResync, BillingResyncHandler(r))
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Notifier returns a billing notifier that enqueues into this manager's queue.
func (m *Manager) Notifier() *BillingNotifier {
	return NewBillingNotifier(m.queue)
}

// EnqueueResync schedules a processor resync for organizationID.
func (m *Manager) EnqueueResync(ctx context.Context, organizationID, reason string) error {
	_, err := m.queue.EnqueueJob(ctx, JobTypeBillingResync, BillingResyncJobPayload{
		OrganizationID: organizationID,
		Reason:         reason,
	}.ToMap())
	return err
}

// Start starts the job queue workers
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue")
	m.queue.Start()
	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue workers
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	log.Info("[JobQueue Manager] Stopping job queue...")
	m.queue.Stop()
	m.running = false
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
