package invalidation

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"attendance.gateway/internal/events"
)

// Invalidator applies a remote invalidation to the local cache. Implemented
// by the core attendance service.
type Invalidator interface {
	ApplyInvalidation(ev events.InvalidationEvent)
}

// InvalidationProcessor handles invalidation events fanned out by other
// gateway instances: each confirmed mutation elsewhere drops the affected
// keys from this instance's cache.
type InvalidationProcessor struct {
	invalidator Invalidator
}

// NewProcessor creates a processor that applies invalidation events to the
// given cache.
func NewProcessor(inv Invalidator) *InvalidationProcessor {
	return &InvalidationProcessor{invalidator: inv}
}

// Process applies one invalidation event. Dropping cache entries is a local,
// infallible operation, so the only unrecoverable case is a malformed message.
func (p *InvalidationProcessor) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	var ev events.InvalidationEvent
	if err := json.Unmarshal([]byte(*msg.Body), &ev); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to unmarshal invalidation event")
		return false, 0, err // Do not retry on malformed message
	}

	p.invalidator.ApplyInvalidation(ev)

	log.Ctx(ctx).Debug().
		Str("resource", ev.Resource).
		Str("record_id", ev.RecordID).
		Str("day", ev.Day).
		Msg("Applied remote invalidation")
	return false, 0, nil
}
