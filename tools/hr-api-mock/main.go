// A small in-memory stand-in for the HR API, used for local development and
// load testing. It serves the endpoints the gateway consumes with seeded data
// and the same {"message": ...} error shape as the real system.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"attendance.gateway/internal/core/model"
	"attendance.gateway/pkg/kst"
)

type mockServer struct {
	mu        sync.Mutex
	records   map[string]*model.AttendanceRecord
	employees []model.Employee
	companies []model.Company
	nextID    int
}

func newMockServer() *mockServer {
	s := &mockServer{
		records: make(map[string]*model.AttendanceRecord),
		companies: []model.Company{
			{ID: "comp-1", Name: "Hanbit Trading", WorkStart: "09:00", WorkEnd: "18:00"},
			{ID: "comp-2", Name: "Sejong Logistics", WorkStart: "08:30", WorkEnd: "17:30"},
		},
		nextID: 1,
	}

	for i := 0; i < 40; i++ {
		companyID := "comp-1"
		if i%3 == 0 {
			companyID = "comp-2"
		}
		s.employees = append(s.employees, model.Employee{
			ID:        fmt.Sprintf("emp-%d", i+1),
			CompanyID: companyID,
			Name:      fmt.Sprintf("Employee %d", i+1),
			Email:     fmt.Sprintf("employee%d@company.example", i+1),
			Position:  "Staff",
		})
	}

	// Seed a week of records per employee, every employee slightly late on
	// Mondays to give the summary endpoint something to count.
	for day := 0; day < 7; day++ {
		date := time.Now().AddDate(0, 0, -day)
		for _, emp := range s.employees {
			clockIn, _ := kst.ComposeInstant(kst.CalendarDayOf(date), "09:05")
			clockOut, _ := kst.ComposeInstant(kst.CalendarDayOf(date), "18:10")
			s.insert(&model.AttendanceRecord{
				EmployeeID: emp.ID,
				CompanyID:  emp.CompanyID,
				Date:       kst.CalendarDayOf(date),
				ClockIn:    &clockIn,
				ClockOut:   &clockOut,
				Status:     model.StatusCheckOut,
				IsLate:     date.Weekday() == time.Monday,
			})
		}
	}
	return s
}

func (s *mockServer) insert(rec *model.AttendanceRecord) *model.AttendanceRecord {
	rec.ID = fmt.Sprintf("att-%d", s.nextID)
	s.nextID++
	s.records[rec.ID] = rec
	return rec
}

func (s *mockServer) company(id string) *model.Company {
	for i := range s.companies {
		if s.companies[i].ID == id {
			return &s.companies[i]
		}
	}
	return nil
}

func (s *mockServer) employee(id string) *model.Employee {
	for i := range s.employees {
		if s.employees[i].ID == id {
			return &s.employees[i]
		}
	}
	return nil
}

func (s *mockServer) listAttendance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := r.URL.Query()
	var matched []model.AttendanceRecord
	for _, rec := range s.records {
		if v := q.Get("companyId"); v != "" && rec.CompanyID != v {
			continue
		}
		if v := q.Get("employeeId"); v != "" && rec.EmployeeID != v {
			continue
		}
		if v := q.Get("from"); v != "" && rec.Date < v {
			continue
		}
		if v := q.Get("to"); v != "" && rec.Date > v {
			continue
		}
		if v := q.Get("search"); v != "" && !strings.Contains(rec.WorkContent, v) && !strings.Contains(rec.Note, v) {
			continue
		}
		matched = append(matched, *rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Date != matched[j].Date {
			return matched[i].Date > matched[j].Date
		}
		return matched[i].ID < matched[j].ID
	})

	writeJSON(w, http.StatusOK, paginate(matched, q.Get("page"), q.Get("limit")))
}

func (s *mockServer) getRecord(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "attendance record not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *mockServer) updateRecord(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "attendance record not found")
		return
	}

	var u model.RecordUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if u.ClockIn != nil {
		if kst.CalendarDayOf(*u.ClockIn) != rec.Date {
			writeError(w, http.StatusUnprocessableEntity, "clock-in moves record out of its calendar day")
			return
		}
		rec.ClockIn = u.ClockIn
	}
	if u.ClockOut != nil {
		rec.ClockOut = u.ClockOut
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
	s.deriveFlags(rec)
	writeJSON(w, http.StatusOK, rec)
}

func (s *mockServer) reassignDay(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "attendance record not found")
		return
	}

	var body struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	day, err := kst.ParseDay(body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Reassignment shifts the clock instants so their wall-clock time is
	// preserved on the new day.
	if rec.ClockIn != nil {
		moved, _ := kst.ComposeInstant(day, kst.TimeOfDay(*rec.ClockIn))
		rec.ClockIn = &moved
	}
	if rec.ClockOut != nil {
		moved, _ := kst.ComposeInstant(day, kst.TimeOfDay(*rec.ClockOut))
		rec.ClockOut = &moved
	}
	rec.Date = day
	writeJSON(w, http.StatusOK, rec)
}

func (s *mockServer) clockIn(w http.ResponseWriter, r *http.Request) {
	s.clock(w, r, true)
}

func (s *mockServer) clockOut(w http.ResponseWriter, r *http.Request) {
	s.clock(w, r, false)
}

func (s *mockServer) clock(w http.ResponseWriter, r *http.Request, in bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var body struct {
		EmployeeID string    `json:"employeeId"`
		Timestamp  time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	emp := s.employee(body.EmployeeID)
	if emp == nil {
		writeError(w, http.StatusNotFound, "employee not found")
		return
	}

	day := kst.CalendarDayOf(body.Timestamp)
	var rec *model.AttendanceRecord
	for _, existing := range s.records {
		if existing.EmployeeID == body.EmployeeID && existing.Date == day {
			rec = existing
			break
		}
	}

	if in {
		if rec != nil && rec.ClockIn != nil {
			writeError(w, http.StatusConflict, "already clocked in")
			return
		}
		if rec == nil {
			rec = s.insert(&model.AttendanceRecord{
				EmployeeID: emp.ID,
				CompanyID:  emp.CompanyID,
				Date:       day,
			})
		}
		rec.ClockIn = &body.Timestamp
		rec.Status = model.StatusCheckIn
	} else {
		if rec == nil || rec.ClockIn == nil {
			writeError(w, http.StatusConflict, "no open clock-in for this day")
			return
		}
		rec.ClockOut = &body.Timestamp
		rec.Status = model.StatusCheckOut
	}
	s.deriveFlags(rec)
	writeJSON(w, http.StatusOK, rec)
}

func (s *mockServer) listEmployees(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := r.URL.Query()
	var matched []model.Employee
	for _, emp := range s.employees {
		if v := q.Get("companyId"); v != "" && emp.CompanyID != v {
			continue
		}
		if v := q.Get("search"); v != "" && !strings.Contains(emp.Name, v) {
			continue
		}
		matched = append(matched, emp)
	}
	writeJSON(w, http.StatusOK, paginate(matched, q.Get("page"), q.Get("limit")))
}

func (s *mockServer) listCompanies(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := r.URL.Query()
	var matched []model.Company
	for _, c := range s.companies {
		if v := q.Get("search"); v != "" && !strings.Contains(c.Name, v) {
			continue
		}
		matched = append(matched, c)
	}
	writeJSON(w, http.StatusOK, paginate(matched, q.Get("page"), q.Get("limit")))
}

func (s *mockServer) getCompany(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.company(mux.Vars(r)["id"])
	if c == nil {
		writeError(w, http.StatusNotFound, "company not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *mockServer) dailySummary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	companyID := mux.Vars(r)["id"]
	if s.company(companyID) == nil {
		writeError(w, http.StatusNotFound, "company not found")
		return
	}
	day, err := kst.ParseDay(r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary := model.DailySummary{CompanyID: companyID, Date: day}
	for _, emp := range s.employees {
		if emp.CompanyID == companyID {
			summary.TotalEmployees++
		}
	}
	for _, rec := range s.records {
		if rec.CompanyID != companyID || rec.Date != day {
			continue
		}
		switch rec.Status {
		case model.StatusCheckIn, model.StatusCheckOut:
			summary.Present++
			if rec.IsLate {
				summary.Late++
			}
		case model.StatusAbsent:
			summary.Absent++
		case model.StatusLeave:
			summary.OnLeave++
		}
	}
	summary.Absent = summary.TotalEmployees - summary.Present - summary.OnLeave
	writeJSON(w, http.StatusOK, summary)
}

func (s *mockServer) deriveFlags(rec *model.AttendanceRecord) {
	c := s.company(rec.CompanyID)
	if c == nil {
		return
	}
	rec.IsLate = rec.ClockIn != nil && kst.TimeOfDay(*rec.ClockIn) > c.WorkStart
	rec.IsEarlyLeave = rec.ClockOut != nil && kst.TimeOfDay(*rec.ClockOut) < c.WorkEnd
}

func paginate[T any](items []T, pageStr, limitStr string) model.Page[T] {
	page, _ := strconv.Atoi(pageStr)
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(limitStr)
	if limit < 1 {
		limit = 20
	}

	total := len(items)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return model.Page[T]{
		Data: items[start:end],
		Pagination: model.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func main() {
	s := newMockServer()

	r := mux.NewRouter().PathPrefix("/api").Subrouter()
	r.HandleFunc("/attendance", s.listAttendance).Methods(http.MethodGet)
	r.HandleFunc("/attendance/clock-in", s.clockIn).Methods(http.MethodPost)
	r.HandleFunc("/attendance/clock-out", s.clockOut).Methods(http.MethodPost)
	r.HandleFunc("/attendance/{id}", s.getRecord).Methods(http.MethodGet)
	r.HandleFunc("/attendance/{id}", s.updateRecord).Methods(http.MethodPut)
	r.HandleFunc("/attendance/{id}/day", s.reassignDay).Methods(http.MethodPut)
	r.HandleFunc("/employees", s.listEmployees).Methods(http.MethodGet)
	r.HandleFunc("/companies", s.listCompanies).Methods(http.MethodGet)
	r.HandleFunc("/companies/{id}", s.getCompany).Methods(http.MethodGet)
	r.HandleFunc("/companies/{id}/summary", s.dailySummary).Methods(http.MethodGet)

	log.Println("HR API mock server starting on port 8081...")
	log.Fatal(http.ListenAndServe(":8081", r))
}
