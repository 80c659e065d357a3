package events

import "time"

// InvalidationEvent fans a confirmed mutation out to every gateway instance
// so each one drops the affected keys from its local cache.
type InvalidationEvent struct {
	Resource   string    `json:"resource"`
	RecordID   string    `json:"recordId"`
	EmployeeID string    `json:"employeeId"`
	CompanyID  string    `json:"companyId"`
	Day        string    `json:"day"` // KST calendar day
	OccurredAt time.Time `json:"occurredAt"`
}

// NotifyEvent is the JSON payload sent via SQS for the notification queue.
type NotifyEvent struct {
	JournalID  string    `json:"journalId"`
	EmployeeID string    `json:"employeeId"`
	RecordID   string    `json:"recordId"`
	Day        string    `json:"day"`
	ClockIn    time.Time `json:"clockIn"`
	OccurredAt time.Time `json:"occurredAt"`
}
