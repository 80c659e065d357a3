package cache

import (
	"net/url"
	"strconv"
	"time"

	"attendance.gateway/pkg/kst"
)

// Key identifies one cached result set: a resource kind plus the canonical
// serialization of every filter parameter that affects the result. Two
// callers asking for the same data always derive the same Key, however they
// constructed their filters, so key equality (not identity) decides hits.
type Key struct {
	kind  string
	query string
}

// Params collects filter parameters before serialization. Empty values are
// dropped so an unset filter and an absent one derive the same key.
type Params map[string]string

// SetInt records a numeric parameter such as a page number or page size.
func (p Params) SetInt(name string, v int) {
	p[name] = strconv.Itoa(v)
}

// SetDay records a date-range bound as its KST calendar day, so equivalent
// bounds serialize identically no matter how the caller built the time value.
func (p Params) SetDay(name string, t time.Time) {
	p[name] = kst.CalendarDayOf(t)
}

// NewKey derives the cache key for a resource kind and filter parameters.
func NewKey(kind string, p Params) Key {
	v := url.Values{}
	for name, val := range p {
		if val != "" {
			v.Set(name, val)
		}
	}
	// url.Values.Encode sorts by parameter name, which is exactly the
	// deterministic serialization the key contract needs.
	return Key{kind: kind, query: v.Encode()}
}

// Kind returns the resource kind the key belongs to.
func (k Key) Kind() string { return k.kind }

// Param returns the named filter parameter, or "" when the key has none.
func (k Key) Param(name string) string {
	v, err := url.ParseQuery(k.query)
	if err != nil {
		return ""
	}
	return v.Get(name)
}

func (k Key) String() string {
	if k.query == "" {
		return k.kind
	}
	return k.kind + "?" + k.query
}
