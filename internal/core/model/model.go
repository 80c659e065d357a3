package model

import (
	"time"
)

// AttendanceStatus is the lifecycle state of an attendance record.
type AttendanceStatus string

const (
	StatusCheckIn  AttendanceStatus = "checkin"
	StatusCheckOut AttendanceStatus = "checkout"
	StatusAbsent   AttendanceStatus = "absent"
	StatusLeave    AttendanceStatus = "leave"
)

// AttendanceRecord is one employee-day ledger entry. Date is the KST calendar
// day the record is bucketed under and is fixed at creation: when ClockIn is
// present, Date equals its KST calendar day, and an edit moving ClockIn to a
// different day is rejected unless done through the explicit day reassignment
// operation. ClockIn/ClockOut are absolute UTC instants and nullable
// independently.
type AttendanceRecord struct {
	ID           string           `json:"id"`
	EmployeeID   string           `json:"employeeId"`
	CompanyID    string           `json:"companyId"`
	Date         string           `json:"date"`
	ClockIn      *time.Time       `json:"clockIn,omitempty"`
	ClockOut     *time.Time       `json:"clockOut,omitempty"`
	Status       AttendanceStatus `json:"status"`
	IsLate       bool             `json:"isLate"`
	IsEarlyLeave bool             `json:"isEarlyLeave"`
	WorkContent  string           `json:"workContent,omitempty"`
	Note         string           `json:"note,omitempty"`
}

// Employee belongs to exactly one company.
type Employee struct {
	ID        string `json:"id"`
	CompanyID string `json:"companyId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Position  string `json:"position,omitempty"`
}

// Company carries the working hours its lateness flags derive from, as KST
// wall-clock times.
type Company struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	WorkStart string `json:"workStart"` // HH:mm
	WorkEnd   string `json:"workEnd"`   // HH:mm
}

// DailySummary is the aggregate view for one company and calendar day. It is
// never patched in place; mutations invalidate it and the next read refetches.
type DailySummary struct {
	CompanyID      string `json:"companyId"`
	Date           string `json:"date"`
	TotalEmployees int    `json:"totalEmployees"`
	Present        int    `json:"present"`
	Late           int    `json:"late"`
	Absent         int    `json:"absent"`
	OnLeave        int    `json:"onLeave"`
}

// Pagination is the server-side paging envelope every list endpoint returns.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Page is one server page of a list resource.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// AttendanceFilter selects a slice of the attendance ledger. Every field that
// affects the result set participates in cache key derivation.
type AttendanceFilter struct {
	CompanyID  string
	EmployeeID string
	From       time.Time // zero = unbounded
	To         time.Time // zero = unbounded
	Search     string
	Page       int
	Limit      int
}

// ListFilter selects a page of employees or companies.
type ListFilter struct {
	CompanyID string
	Search    string
	Page      int
	Limit     int
}

// RecordUpdate carries the editable fields of an attendance record; nil
// fields are left untouched by the upstream.
type RecordUpdate struct {
	ClockIn     *time.Time        `json:"clockIn,omitempty"`
	ClockOut    *time.Time        `json:"clockOut,omitempty"`
	Status      *AttendanceStatus `json:"status,omitempty"`
	WorkContent *string           `json:"workContent,omitempty"`
	Note        *string           `json:"note,omitempty"`
}

// ClockEvent is a clock-in or clock-out request for one employee at a KST
// wall-clock moment.
type ClockEvent struct {
	EmployeeID string `json:"employeeId"`
	Day        string `json:"day"`   // YYYY-MM-DD, KST
	Clock      string `json:"clock"` // HH:mm, KST
}
