package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"attendance.gateway/internal/core"
	"attendance.gateway/internal/events"
	"attendance.gateway/internal/journal"
	"attendance.gateway/pkg/kst"
)

type NotifyProcessor struct {
	notifier core.Notifier
	journal  journal.Repository
}

// NewProcessor sets up a new processor for late-arrival notifications. It
// needs a notifier to send the notice and the journal to keep delivery
// idempotent across redeliveries.
func NewProcessor(notifier core.Notifier, j journal.Repository) *NotifyProcessor {
	return &NotifyProcessor{
		notifier: notifier,
		journal:  j,
	}
}

// Process is the main entry point for handling a message from the notify queue.
// It tries to send the notice and will tell the worker to retry if something goes wrong.
func (p *NotifyProcessor) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	var event events.NotifyEvent
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to unmarshal notify event")
		return false, 0, err // Do not retry on malformed message
	}

	entry, err := p.journal.Get(ctx, event.JournalID)
	if err != nil {
		// If we can't get the entry, retry after a short delay.
		return true, 10, fmt.Errorf("failed to get journal entry for notification: %w", err)
	}

	if entry.NotifyStatus == journal.StatusNotifyCompleted {
		log.Ctx(ctx).Info().Str("journal_id", event.JournalID).Msg("Notification already sent. Skipping.")
		return false, 0, nil
	}

	to := event.EmployeeID + "@company.example"
	err = p.notifier.SendLateArrivalNotice(ctx, to, event.Day, kst.TimeOfDay(event.ClockIn))
	if err != nil {
		newCount := entry.NotifyRetryCount + 1
		p.journal.UpdateNotifyStatus(ctx, event.JournalID, journal.StatusNotifyPending, newCount)

		delay := calculateBackoff(newCount)
		return true, delay, err
	}

	err = p.journal.UpdateNotifyStatus(ctx, event.JournalID, journal.StatusNotifyCompleted, 0)
	return false, 0, err
}

// calculateBackoff determines how long to wait before retrying a failed job.
// It increases the delay exponentially with each retry to avoid overwhelming a struggling service.
func calculateBackoff(retryCount int) int32 {
	backoff := int32(math.Pow(2, float64(retryCount)) * 10)
	if backoff > 3600 { // Cap at 1 hour
		return 3600
	}
	return backoff
}
