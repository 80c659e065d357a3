package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"attendance.gateway/internal/cache"
	"attendance.gateway/internal/core/model"
	"attendance.gateway/internal/events"
	"attendance.gateway/internal/journal"
	"attendance.gateway/internal/upstream"
	"attendance.gateway/pkg/kst"
)

// ErrDayBucketMismatch rejects a clock-in edit that would silently move a
// record to a different KST calendar day. Re-bucketing is a distinct,
// validated operation (ReassignDay), never a side effect of an edit.
var ErrDayBucketMismatch = errors.New("clock-in does not fall on the record's calendar day")

// AttendanceService is the gateway's core: reads go through the cache store,
// writes go to the upstream HR API with optimistic patching and rollback, and
// confirmed mutations are journaled and fanned out as invalidation events.
type AttendanceService struct {
	store    *cache.Store
	hr       upstream.Client
	journal  journal.Repository
	producer events.Publisher
}

// NewAttendanceService wires up the cache store, the upstream HR API client,
// the mutation journal and the event producer.
func NewAttendanceService(store *cache.Store, hr upstream.Client, j journal.Repository, p events.Publisher) *AttendanceService {
	return &AttendanceService{
		store:    store,
		hr:       hr,
		journal:  j,
		producer: p,
	}
}

// ListAttendance serves one page of the attendance ledger for the filter.
func (s *AttendanceService) ListAttendance(ctx context.Context, f model.AttendanceFilter) (*model.Page[model.AttendanceRecord], error) {
	return serveCached(ctx, s.store, attendanceKey(f), func(ctx context.Context) (*model.Page[model.AttendanceRecord], error) {
		return s.hr.ListAttendance(ctx, f)
	})
}

// EmployeeHistory serves one page of a single employee's attendance ledger.
// It is the attendance list scoped to the employee, so it shares cache
// entries with equivalent ListAttendance filters.
func (s *AttendanceService) EmployeeHistory(ctx context.Context, employeeID string, f model.AttendanceFilter) (*model.Page[model.AttendanceRecord], error) {
	f.EmployeeID = employeeID
	return s.ListAttendance(ctx, f)
}

// GetRecord serves one attendance record by id.
func (s *AttendanceService) GetRecord(ctx context.Context, id string) (*model.AttendanceRecord, error) {
	return serveCached(ctx, s.store, recordKey(id), func(ctx context.Context) (*model.AttendanceRecord, error) {
		return s.hr.GetRecord(ctx, id)
	})
}

// ListEmployees serves one page of employees.
func (s *AttendanceService) ListEmployees(ctx context.Context, f model.ListFilter) (*model.Page[model.Employee], error) {
	return serveCached(ctx, s.store, employeesKey(f), func(ctx context.Context) (*model.Page[model.Employee], error) {
		return s.hr.ListEmployees(ctx, f)
	})
}

// ListCompanies serves one page of companies.
func (s *AttendanceService) ListCompanies(ctx context.Context, f model.ListFilter) (*model.Page[model.Company], error) {
	return serveCached(ctx, s.store, companiesKey(f), func(ctx context.Context) (*model.Page[model.Company], error) {
		return s.hr.ListCompanies(ctx, f)
	})
}

// GetCompany serves one company by id.
func (s *AttendanceService) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	return serveCached(ctx, s.store, companyKey(id), func(ctx context.Context) (*model.Company, error) {
		return s.hr.GetCompany(ctx, id)
	})
}

// DailySummary serves the aggregate view for a company and calendar day.
func (s *AttendanceService) DailySummary(ctx context.Context, companyID string, day string) (*model.DailySummary, error) {
	if _, err := kst.ParseDay(day); err != nil {
		return nil, err
	}
	return serveCached(ctx, s.store, summaryKey(companyID, day), func(ctx context.Context) (*model.DailySummary, error) {
		return s.hr.DailySummary(ctx, companyID, day)
	})
}

// UpdateRecord edits an attendance record optimistically: every cached view
// containing the record shows the edit immediately, the upstream confirms or
// rejects it, and a rejection restores every view to its pre-edit state.
func (s *AttendanceService) UpdateRecord(ctx context.Context, id string, u model.RecordUpdate) (*model.AttendanceRecord, error) {
	current, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	if u.ClockIn != nil && kst.CalendarDayOf(*u.ClockIn) != current.Date {
		return nil, fmt.Errorf("%w: record %s is bucketed under %s", ErrDayBucketMismatch, id, current.Date)
	}

	// Work hours are needed to re-derive the lateness flags on the
	// optimistic copy. Best effort: an unreachable company record leaves
	// the flags as they were.
	company, cerr := s.GetCompany(ctx, current.CompanyID)
	if cerr != nil {
		log.Ctx(ctx).Warn().Err(cerr).Str("company_id", current.CompanyID).Msg("Could not load work hours, keeping derived flags")
		company = nil
	}

	apply := func(rec model.AttendanceRecord) model.AttendanceRecord {
		if u.ClockIn != nil {
			t := *u.ClockIn
			rec.ClockIn = &t
		}
		if u.ClockOut != nil {
			t := *u.ClockOut
			rec.ClockOut = &t
		}
		if u.Status != nil {
			rec.Status = *u.Status
		}
		if u.WorkContent != nil {
			rec.WorkContent = *u.WorkContent
		}
		if u.Note != nil {
			rec.Note = *u.Note
		}
		return deriveFlags(rec, company)
	}

	res, err := s.store.Mutate(ctx, cache.Mutation{
		Key:     recordKey(id),
		Affects: affectsRecord(current),
		Patch:   patchRecord(id, apply),
		Call: func(ctx context.Context) (any, error) {
			return s.hr.UpdateRecord(ctx, id, u)
		},
		Reconcile:   reconcileRecord,
		Invalidates: invalidatesAggregates(current.CompanyID, current.Date),
	})
	if err != nil {
		s.journalOutcome(ctx, current, "update", journal.OutcomeRolledBack, err.Error())
		return nil, err
	}

	updated := res.(*model.AttendanceRecord)
	s.journalOutcome(ctx, updated, "update", journal.OutcomeApplied, "")
	s.publishInvalidation(ctx, updated)
	return updated, nil
}

// ReassignDay moves a record to a different KST calendar day. Cross-day moves
// change which list partitions hold the record, so instead of patching, both
// the old and new day's views are invalidated after the upstream confirms.
func (s *AttendanceService) ReassignDay(ctx context.Context, id, day string) (*model.AttendanceRecord, error) {
	if _, err := kst.ParseDay(day); err != nil {
		return nil, err
	}

	current, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	oldDay := current.Date

	updated, err := s.hr.ReassignDay(ctx, id, day)
	if err != nil {
		s.journalOutcome(ctx, current, "reassign-day", journal.OutcomeRolledBack, err.Error())
		return nil, err
	}

	s.invalidateDay(current.CompanyID, current.EmployeeID, oldDay)
	s.invalidateDay(updated.CompanyID, updated.EmployeeID, updated.Date)
	s.store.InvalidateKey(recordKey(id))

	s.journalOutcome(ctx, updated, "reassign-day", journal.OutcomeApplied, fmt.Sprintf("%s -> %s", oldDay, day))
	s.publishInvalidation(ctx, current)
	s.publishInvalidation(ctx, updated)
	return updated, nil
}

// ClockIn records a clock-in at the given KST wall-clock moment. The created
// record changes list totals, which cannot be patched in place, so the day's
// cached views are invalidated instead. A late arrival queues a notification.
func (s *AttendanceService) ClockIn(ctx context.Context, ev model.ClockEvent) (*model.AttendanceRecord, error) {
	instant, err := kst.ComposeInstant(ev.Day, ev.Clock)
	if err != nil {
		return nil, err
	}

	rec, err := s.hr.ClockIn(ctx, instant, ev.EmployeeID)
	if err != nil {
		return nil, err
	}

	s.invalidateDay(rec.CompanyID, rec.EmployeeID, rec.Date)
	entryID := s.journalOutcome(ctx, rec, "clock-in", journal.OutcomeApplied, "")
	s.publishInvalidation(ctx, rec)

	if rec.IsLate && rec.ClockIn != nil {
		notify := events.NotifyEvent{
			JournalID:  entryID,
			EmployeeID: rec.EmployeeID,
			RecordID:   rec.ID,
			Day:        rec.Date,
			ClockIn:    *rec.ClockIn,
			OccurredAt: time.Now().UTC(),
		}
		if err := s.producer.PublishNotify(ctx, notify); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("record_id", rec.ID).Msg("Failed to queue late-arrival notification")
		}
	}
	return rec, nil
}

// ClockOut records a clock-out at the given KST wall-clock moment.
func (s *AttendanceService) ClockOut(ctx context.Context, ev model.ClockEvent) (*model.AttendanceRecord, error) {
	instant, err := kst.ComposeInstant(ev.Day, ev.Clock)
	if err != nil {
		return nil, err
	}

	rec, err := s.hr.ClockOut(ctx, instant, ev.EmployeeID)
	if err != nil {
		return nil, err
	}

	s.invalidateDay(rec.CompanyID, rec.EmployeeID, rec.Date)
	s.journalOutcome(ctx, rec, "clock-out", journal.OutcomeApplied, "")
	s.publishInvalidation(ctx, rec)
	return rec, nil
}

// ApplyInvalidation drops this instance's cached views affected by a
// mutation another instance confirmed.
func (s *AttendanceService) ApplyInvalidation(ev events.InvalidationEvent) {
	s.invalidateDay(ev.CompanyID, ev.EmployeeID, ev.Day)
	if ev.RecordID != "" {
		s.store.InvalidateKey(recordKey(ev.RecordID))
	}
}

// invalidateDay marks stale every list or aggregate whose scope and range
// admit the given company/employee/day.
func (s *AttendanceService) invalidateDay(companyID, employeeID, day string) {
	s.store.Invalidate(func(k cache.Key) bool {
		switch k.Kind() {
		case KindAttendance:
			if v := k.Param("employeeId"); v != "" && v != employeeID {
				return false
			}
			if v := k.Param("companyId"); v != "" && v != companyID {
				return false
			}
			if v := k.Param("from"); v != "" && day < v {
				return false
			}
			if v := k.Param("to"); v != "" && day > v {
				return false
			}
			return true
		case KindSummary:
			return invalidatesAggregates(companyID, day)(k)
		}
		return false
	})
}

func (s *AttendanceService) publishInvalidation(ctx context.Context, rec *model.AttendanceRecord) {
	ev := events.InvalidationEvent{
		Resource:   KindAttendance,
		RecordID:   rec.ID,
		EmployeeID: rec.EmployeeID,
		CompanyID:  rec.CompanyID,
		Day:        rec.Date,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.producer.PublishInvalidation(ctx, ev); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("record_id", rec.ID).Msg("Failed to publish invalidation event")
	}
}

// journalOutcome writes the audit entry for a mutation. The journal is an
// audit trail, not a gate: a write failure is logged and does not fail the
// mutation it describes.
func (s *AttendanceService) journalOutcome(ctx context.Context, rec *model.AttendanceRecord, action string, outcome journal.Outcome, detail string) string {
	entry := &journal.Entry{
		ID:           uuid.New().String(),
		Resource:     KindAttendance,
		RecordID:     rec.ID,
		EmployeeID:   rec.EmployeeID,
		Action:       action,
		Outcome:      outcome,
		Detail:       detail,
		NotifyStatus: journal.StatusNotifyNone,
		CreatedAt:    time.Now().UTC(),
	}
	if action == "clock-in" && rec.IsLate {
		entry.NotifyStatus = journal.StatusNotifyPending
	}
	if err := s.journal.Insert(ctx, entry); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("record_id", rec.ID).Str("action", action).Msg("Failed to journal mutation")
	}
	return entry.ID
}

// reconcileRecord folds the upstream's authoritative record into a cached
// view, replacing the optimistic guess.
func reconcileRecord(cached, authoritative any) any {
	rec, ok := authoritative.(*model.AttendanceRecord)
	if !ok {
		return cached
	}
	return patchRecord(rec.ID, func(model.AttendanceRecord) model.AttendanceRecord { return *rec })(cached)
}

// deriveFlags recomputes IsLate/IsEarlyLeave from the company's work hours.
// HH:mm strings compare lexicographically.
func deriveFlags(rec model.AttendanceRecord, company *model.Company) model.AttendanceRecord {
	if company == nil {
		return rec
	}
	if rec.ClockIn != nil && company.WorkStart != "" {
		rec.IsLate = kst.TimeOfDay(*rec.ClockIn) > company.WorkStart
	}
	if rec.ClockOut != nil && company.WorkEnd != "" {
		rec.IsEarlyLeave = kst.TimeOfDay(*rec.ClockOut) < company.WorkEnd
	}
	return rec
}

// serveCached reads through the store. A refetch failure with a previous
// value logs and serves the last known data; with nothing cached the error
// surfaces to the caller.
func serveCached[T any](ctx context.Context, store *cache.Store, key cache.Key, fn func(ctx context.Context) (T, error)) (T, error) {
	v, ok, err := cache.Fetch(ctx, store, key, fn)
	if err != nil {
		if ok {
			log.Ctx(ctx).Warn().Err(err).Str("cache_key", key.String()).Msg("Refetch failed, serving last known value")
			return v, nil
		}
		var zero T
		return zero, err
	}
	return v, nil
}
