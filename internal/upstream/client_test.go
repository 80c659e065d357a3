package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance.gateway/internal/core/model"
)

func TestListAttendanceSerializesFilter(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/attendance", r.URL.Path)
		_ = json.NewEncoder(w).Encode(model.Page[model.AttendanceRecord]{
			Data:       []model.AttendanceRecord{{ID: "A1", Date: "2026-03-02"}},
			Pagination: model.Pagination{Page: 2, Limit: 10, Total: 11, TotalPages: 2},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 1)
	from := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC) // 2026-03-03 in KST
	page, err := c.ListAttendance(context.Background(), model.AttendanceFilter{
		CompanyID: "c1",
		From:      from,
		Page:      2,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "A1", page.Data[0].ID)

	// Date bounds cross the boundary as KST calendar days.
	assert.Contains(t, gotQuery, "from=2026-03-03")
	assert.Contains(t, gotQuery, "companyId=c1")
	assert.Contains(t, gotQuery, "page=2")
}

func TestClientErrorIsNeverRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "record not found"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5)
	_, err := c.GetRecord(context.Background(), "missing")

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotFound, reqErr.Status)
	assert.Equal(t, "record not found", reqErr.Message)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestServerErrorIsRetriedThenSurfaced(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 3)
	_, err := c.GetRecord(context.Background(), "A1")

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, http.StatusServiceUnavailable, transient.Status)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestServerErrorRecoversWithinRetryBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(model.AttendanceRecord{ID: "A1", Date: "2026-03-02"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 3)
	rec, err := c.GetRecord(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, "A1", rec.ID)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestUpdateRecordSendsOnlySetFields(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(model.AttendanceRecord{ID: "A1", WorkContent: "updated"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 1)
	content := "updated"
	rec, err := c.UpdateRecord(context.Background(), "A1", model.RecordUpdate{WorkContent: &content})
	require.NoError(t, err)
	assert.Equal(t, "updated", rec.WorkContent)

	assert.Equal(t, map[string]any{"workContent": "updated"}, gotBody)
}

func TestClockInSendsUTCTimestamp(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/attendance/clock-in", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(model.AttendanceRecord{ID: "A9"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 1)
	at := time.Date(2026, 3, 3, 9, 5, 0, 0, time.FixedZone("KST", 9*3600))
	_, err := c.ClockIn(context.Background(), at, "e7")
	require.NoError(t, err)

	assert.Equal(t, "e7", gotBody["employeeId"])
	assert.Equal(t, "2026-03-03T00:05:00Z", gotBody["timestamp"])
}
