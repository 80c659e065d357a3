package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"attendance.gateway/internal/api/handler"
	"attendance.gateway/internal/core"
)

// NewRouter sets up the gorilla/mux router and defines all API routes.
func NewRouter(service *core.AttendanceService) *mux.Router {

	attendanceHandler := handler.AttendanceHandler{
		Service: service,
	}

	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/attendance", attendanceHandler.ListAttendance).Methods(http.MethodGet)
	api.HandleFunc("/attendance/clock-in", attendanceHandler.ClockIn).Methods(http.MethodPost)
	api.HandleFunc("/attendance/clock-out", attendanceHandler.ClockOut).Methods(http.MethodPost)
	api.HandleFunc("/attendance/{id}", attendanceHandler.GetRecord).Methods(http.MethodGet)
	api.HandleFunc("/attendance/{id}", attendanceHandler.UpdateRecord).Methods(http.MethodPut)
	api.HandleFunc("/attendance/{id}/day", attendanceHandler.ReassignDay).Methods(http.MethodPut)
	api.HandleFunc("/employees", attendanceHandler.ListEmployees).Methods(http.MethodGet)
	api.HandleFunc("/employees/{id}/attendance", attendanceHandler.EmployeeHistory).Methods(http.MethodGet)
	api.HandleFunc("/companies", attendanceHandler.ListCompanies).Methods(http.MethodGet)
	api.HandleFunc("/companies/{id}/summary", attendanceHandler.DailySummary).Methods(http.MethodGet)
	api.HandleFunc("/companies/{id}", attendanceHandler.GetCompany).Methods(http.MethodGet)
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Service is operational."))
	}).Methods(http.MethodGet)

	return r
}
