package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"attendance.gateway/internal/cache"
	"attendance.gateway/internal/core"
	"attendance.gateway/internal/core/model"
	"attendance.gateway/internal/upstream"
	"attendance.gateway/pkg/kst"
)

type AttendanceHandler struct {
	Service *core.AttendanceService
}

// ListAttendance serves GET /attendance.
func (h *AttendanceHandler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	f, err := attendanceFilterFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.Service.ListAttendance(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetRecord serves GET /attendance/{id}.
func (h *AttendanceHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.GetRecord(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdateRecord serves PUT /attendance/{id}.
func (h *AttendanceHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	var u model.RecordUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := h.Service.UpdateRecord(r.Context(), mux.Vars(r)["id"], u)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type reassignDayRequest struct {
	Date string `json:"date"`
}

// ReassignDay serves PUT /attendance/{id}/day.
func (h *AttendanceHandler) ReassignDay(w http.ResponseWriter, r *http.Request) {
	var req reassignDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Date == "" {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}

	rec, err := h.Service.ReassignDay(r.Context(), mux.Vars(r)["id"], req.Date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ClockIn serves POST /attendance/clock-in.
func (h *AttendanceHandler) ClockIn(w http.ResponseWriter, r *http.Request) {
	h.clock(w, r, h.Service.ClockIn)
}

// ClockOut serves POST /attendance/clock-out.
func (h *AttendanceHandler) ClockOut(w http.ResponseWriter, r *http.Request) {
	h.clock(w, r, h.Service.ClockOut)
}

func (h *AttendanceHandler) clock(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, ev model.ClockEvent) (*model.AttendanceRecord, error)) {
	var ev model.ClockEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if ev.EmployeeID == "" {
		http.Error(w, "employeeId is required", http.StatusBadRequest)
		return
	}

	rec, err := op(r.Context(), ev)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListEmployees serves GET /employees.
func (h *AttendanceHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	page, err := h.Service.ListEmployees(r.Context(), listFilterFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// EmployeeHistory serves GET /employees/{id}/attendance.
func (h *AttendanceHandler) EmployeeHistory(w http.ResponseWriter, r *http.Request) {
	f, err := attendanceFilterFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.Service.EmployeeHistory(r.Context(), mux.Vars(r)["id"], f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ListCompanies serves GET /companies.
func (h *AttendanceHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	page, err := h.Service.ListCompanies(r.Context(), listFilterFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetCompany serves GET /companies/{id}.
func (h *AttendanceHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	company, err := h.Service.GetCompany(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

// DailySummary serves GET /companies/{id}/summary.
func (h *AttendanceHandler) DailySummary(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")
	if day == "" {
		http.Error(w, "day is required", http.StatusBadRequest)
		return
	}

	summary, err := h.Service.DailySummary(r.Context(), mux.Vars(r)["id"], day)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func attendanceFilterFromQuery(r *http.Request) (model.AttendanceFilter, error) {
	q := r.URL.Query()
	f := model.AttendanceFilter{
		CompanyID:  q.Get("companyId"),
		EmployeeID: q.Get("employeeId"),
		Search:     q.Get("search"),
		Page:       intParam(q.Get("page")),
		Limit:      intParam(q.Get("limit")),
	}

	// Range bounds arrive as KST calendar days and are anchored to KST
	// midnight, so any later day-bucketing round-trips to the same day.
	if day := q.Get("from"); day != "" {
		t, err := boundInstant(day)
		if err != nil {
			return f, err
		}
		f.From = t
	}
	if day := q.Get("to"); day != "" {
		t, err := boundInstant(day)
		if err != nil {
			return f, err
		}
		f.To = t
	}
	return f, nil
}

func boundInstant(day string) (time.Time, error) {
	if _, err := kst.ParseDay(day); err != nil {
		return time.Time{}, err
	}
	return kst.ComposeInstant(day, "00:00")
}

func listFilterFromQuery(r *http.Request) model.ListFilter {
	q := r.URL.Query()
	return model.ListFilter{
		CompanyID: q.Get("companyId"),
		Search:    q.Get("search"),
		Page:      intParam(q.Get("page")),
		Limit:     intParam(q.Get("limit")),
	}
}

func intParam(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy onto HTTP statuses: malformed temporal
// input and day-bucket violations are caller errors, upstream rejections keep
// their status, exhausted transient failures become a 502.
func writeError(w http.ResponseWriter, err error) {
	var rolledBack *cache.RolledBackError
	if errors.As(err, &rolledBack) {
		// The optimistic patch was reverted; map the underlying cause.
		err = rolledBack.Unwrap()
	}

	var parseErr *kst.ParseError
	var reqErr *upstream.RequestError
	var transient *upstream.TransientError

	switch {
	case errors.As(err, &parseErr):
		writeJSON(w, http.StatusBadRequest, errorBody(parseErr.Error()))
	case errors.Is(err, core.ErrDayBucketMismatch):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	case errors.As(err, &reqErr):
		writeJSON(w, reqErr.Status, errorBody(reqErr.Message))
	case errors.As(err, &transient):
		writeJSON(w, http.StatusBadGateway, errorBody("upstream HR system is unavailable"))
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"message": msg}
}
