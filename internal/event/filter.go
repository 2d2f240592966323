package event

// Filter combines any subset of the supported predicates for
// Store.GetEvents. A zero value matches every event with a Lamport
// stamp above 0.
type Filter struct {
	TenantID      string
	StoreID       string
	AggregateType AggregateType
	AggregateID   string

	FromLamport uint64 // exclusive; 0 admits every event stamped 1 or higher
	HasToLamport bool
	ToLamport    uint64 // inclusive

	HasFromTime bool
	FromTime    int64 // unix nanos
	HasToTime   bool
	ToTime      int64 // unix nanos
}

// FastPath reports whether the filter identifies a single aggregate
// directly, letting the store skip the full scan and hit the aggregate
// index instead.
func (f Filter) FastPath() bool {
	return f.TenantID != "" && f.StoreID != "" && f.AggregateID != "" &&
		f.FromLamport == 0 && !f.HasToLamport && !f.HasFromTime && !f.HasToTime
}

// Match reports whether e satisfies every predicate set on f.
func (f Filter) Match(e Event) bool {
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if f.StoreID != "" && e.StoreID != f.StoreID {
		return false
	}
	if f.AggregateType != "" && e.AggregateType != f.AggregateType {
		return false
	}
	if f.AggregateID != "" && e.AggregateID != f.AggregateID {
		return false
	}
	if e.Clock.Lamport <= f.FromLamport {
		return false
	}
	if f.HasToLamport && e.Clock.Lamport > f.ToLamport {
		return false
	}
	if f.HasFromTime && e.At.UnixNano() < f.FromTime {
		return false
	}
	if f.HasToTime && e.At.UnixNano() > f.ToTime {
		return false
	}
	return true
}
