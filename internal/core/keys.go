package core

import (
	"attendance.gateway/internal/cache"
	"attendance.gateway/internal/core/model"
)

// Resource kinds partition the cache key space. The invalidation events that
// fan out between gateway instances carry these same strings.
const (
	KindAttendance       = "attendance"
	KindAttendanceDetail = "attendance-detail"
	KindEmployees        = "employees"
	KindCompanies        = "companies"
	KindCompanyDetail    = "company-detail"
	KindSummary          = "summary"
)

func attendanceKey(f model.AttendanceFilter) cache.Key {
	p := cache.Params{
		"companyId":  f.CompanyID,
		"employeeId": f.EmployeeID,
		"search":     f.Search,
	}
	if !f.From.IsZero() {
		p.SetDay("from", f.From)
	}
	if !f.To.IsZero() {
		p.SetDay("to", f.To)
	}
	if f.Page > 0 {
		p.SetInt("page", f.Page)
	}
	if f.Limit > 0 {
		p.SetInt("limit", f.Limit)
	}
	return cache.NewKey(KindAttendance, p)
}

func recordKey(id string) cache.Key {
	return cache.NewKey(KindAttendanceDetail, cache.Params{"id": id})
}

func employeesKey(f model.ListFilter) cache.Key {
	return listKey(KindEmployees, f)
}

func companiesKey(f model.ListFilter) cache.Key {
	return listKey(KindCompanies, f)
}

func companyKey(id string) cache.Key {
	return cache.NewKey(KindCompanyDetail, cache.Params{"id": id})
}

func summaryKey(companyID, day string) cache.Key {
	return cache.NewKey(KindSummary, cache.Params{"companyId": companyID, "day": day})
}

func listKey(kind string, f model.ListFilter) cache.Key {
	p := cache.Params{
		"companyId": f.CompanyID,
		"search":    f.Search,
	}
	if f.Page > 0 {
		p.SetInt("page", f.Page)
	}
	if f.Limit > 0 {
		p.SetInt("limit", f.Limit)
	}
	return cache.NewKey(kind, p)
}

// affectsRecord selects every cached key whose result set could contain the
// record: its detail view plus any attendance list whose scope and date range
// admit it. Pages that do not actually hold the record get a no-op patch.
func affectsRecord(rec *model.AttendanceRecord) func(cache.Key) bool {
	return func(k cache.Key) bool {
		switch k.Kind() {
		case KindAttendanceDetail:
			return k.Param("id") == rec.ID
		case KindAttendance:
			if v := k.Param("employeeId"); v != "" && v != rec.EmployeeID {
				return false
			}
			if v := k.Param("companyId"); v != "" && v != rec.CompanyID {
				return false
			}
			// Calendar days compare lexicographically.
			if v := k.Param("from"); v != "" && rec.Date < v {
				return false
			}
			if v := k.Param("to"); v != "" && rec.Date > v {
				return false
			}
			return true
		}
		return false
	}
}

// invalidatesAggregates selects the aggregate keys a confirmed mutation makes
// stale. Aggregates are never patched in place; they refetch on next read.
func invalidatesAggregates(companyID, day string) func(cache.Key) bool {
	return func(k cache.Key) bool {
		if k.Kind() != KindSummary {
			return false
		}
		if v := k.Param("companyId"); v != "" && v != companyID {
			return false
		}
		if v := k.Param("day"); v != "" && v != day {
			return false
		}
		return true
	}
}

// patchRecord builds a copy-on-write patch that rewrites the record with the
// given id wherever it appears in a cached page or detail entry.
func patchRecord(id string, apply func(model.AttendanceRecord) model.AttendanceRecord) func(any) any {
	return func(cached any) any {
		switch v := cached.(type) {
		case *model.Page[model.AttendanceRecord]:
			return patchPage(v, id, apply)
		case *model.AttendanceRecord:
			if v.ID != id {
				return v
			}
			rec := apply(*v)
			return &rec
		}
		return cached
	}
}

func patchPage(p *model.Page[model.AttendanceRecord], id string, apply func(model.AttendanceRecord) model.AttendanceRecord) *model.Page[model.AttendanceRecord] {
	out := &model.Page[model.AttendanceRecord]{
		Data:       append([]model.AttendanceRecord(nil), p.Data...),
		Pagination: p.Pagination,
	}
	for i := range out.Data {
		if out.Data[i].ID == id {
			out.Data[i] = apply(out.Data[i])
		}
	}
	return out
}
