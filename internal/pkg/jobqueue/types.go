package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeBillingNotification JobType = "billing_notification"
	JobTypeBillingResync       JobType = "billing_resync"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// BillingNotificationJobPayload carries one lifecycle email.
type BillingNotificationJobPayload struct {
	Kind           string     `json:"kind"`
	OrganizationID string     `json:"organization_id"`
	Email          string     `json:"email"`
	Tier           string     `json:"tier"`
	PeriodEnd      *time.Time `json:"period_end,omitempty"`
}

// ToMap converts the payload to a map for storage
func (p BillingNotificationJobPayload) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"kind":            p.Kind,
		"organization_id": p.OrganizationID,
		"email":           p.Email,
		"tier":            p.Tier,
	}
	if p.PeriodEnd != nil {
		m["period_end"] = p.PeriodEnd.UTC().Format(time.RFC3339)
	}
	return m
}

func BillingNotificationJobPayloadFromMap(data map[string]interface{}) (*BillingNotificationJobPayload, error) {
	var payload BillingNotificationJobPayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// BillingResyncJobPayload asks for a processor resync of one organization.
type BillingResyncJobPayload struct {
	OrganizationID string `json:"organization_id"`
	Reason         string `json:"reason,omitempty"`
}

func (p BillingResyncJobPayload) ToMap() map[string]interface{} {
	m := map[string]interface{}{"organization_id": p.OrganizationID}
	if p.Reason != "" {
		m["reason"] = p.Reason
	}
	return m
}

func BillingResyncJobPayloadFromMap(data map[string]interface{}) (*BillingResyncJobPayload, error) {
	var payload BillingResyncJobPayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func decodePayload(data map[string]interface{}, out interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, out)
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
