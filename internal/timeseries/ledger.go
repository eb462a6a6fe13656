package timeseries

import (
	"slices"

	"github.com/supermechanical/rangelink/internal/errors"
)

// Ledger maps device uids to their stores. Stores are created lazily on the
// first sample for a uid.
//
// Ledger is not safe for concurrent use; callers serialize access (see
// reader.Reader). Stores and slices obtained from a ledger are invalidated by
// the next Add or Merge.
type Ledger struct {
	stores       map[string]*Store
	gapThreshold float64
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{stores: make(map[string]*Store)}
}

func (l *Ledger) storeForWrite(uid string) (*Store, error) {
	if st, ok := l.stores[uid]; ok {
		return st, nil
	}
	st, err := NewStore(uid)
	if err != nil {
		return nil, err
	}
	st.SetGapThreshold(l.gapThreshold)
	l.stores[uid] = st
	return st, nil
}

// Add merges samples into the store of uid and returns how many were new.
func (l *Ledger) Add(uid string, samples ...Sample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	st, err := l.storeForWrite(uid)
	if err != nil {
		return 0, err
	}
	return st.Merge(samples...), nil
}

// Merge folds every store of other into l. Stores for the same uid are
// combined in time order; exact duplicates are dropped.
func (l *Ledger) Merge(other *Ledger) error {
	if other == nil || other == l {
		return nil
	}
	for _, uid := range other.DeviceIDs() {
		if _, err := l.Add(uid, other.stores[uid].samples...); err != nil {
			return err
		}
	}
	return nil
}

// DeviceIDs returns the uids that hold at least one sample, sorted.
func (l *Ledger) DeviceIDs() []string {
	ids := make([]string, 0, len(l.stores))
	for uid, st := range l.stores {
		if st.Len() > 0 {
			ids = append(ids, uid)
		}
	}
	slices.Sort(ids)
	return ids
}

// Store returns the store for uid.
func (l *Ledger) Store(uid string) (*Store, bool) {
	st, ok := l.stores[uid]
	if !ok || st.Len() == 0 {
		return nil, false
	}
	return st, true
}

// Len returns the number of devices with data.
func (l *Ledger) Len() int {
	return len(l.DeviceIDs())
}

// TotalLen returns the number of samples across all devices.
func (l *Ledger) TotalLen() int {
	total := 0
	for _, st := range l.stores {
		total += st.Len()
	}
	return total
}

// Latest returns the most recent sample across devices and its uid.
// Equal times resolve to the lexically lowest uid.
func (l *Ledger) Latest() (Sample, string, bool) {
	return l.extreme(func(st *Store) (Sample, bool) { return st.Latest() },
		func(a, b float64) bool { return a > b })
}

// Earliest returns the oldest sample across devices and its uid.
// Equal times resolve to the lexically lowest uid.
func (l *Ledger) Earliest() (Sample, string, bool) {
	return l.extreme(func(st *Store) (Sample, bool) { return st.Earliest() },
		func(a, b float64) bool { return a < b })
}

func (l *Ledger) extreme(pick func(*Store) (Sample, bool), better func(a, b float64) bool) (Sample, string, bool) {
	var (
		best    Sample
		bestUID = IllegalUID
		found   bool
	)
	// DeviceIDs is sorted, so a strict comparison keeps the lowest uid on ties
	for _, uid := range l.DeviceIDs() {
		s, ok := pick(l.stores[uid])
		if !ok {
			continue
		}
		if !found || better(s.UnixTime, best.UnixTime) {
			best, bestUID, found = s, uid, true
		}
	}
	return best, bestUID, found
}

// EndOfLatestGap returns, across all devices, the most recent sample that
// follows a gap. ErrNoData means the ledger is empty, ErrNoGap means there is
// data without gaps. The uid is IllegalUID on error.
func (l *Ledger) EndOfLatestGap() (Sample, string, error) {
	var (
		best    Sample
		bestUID = IllegalUID
		found   bool
		hasData bool
	)
	for _, uid := range l.DeviceIDs() {
		hasData = true
		s, ok := l.stores[uid].EndOfLatestGap()
		if !ok {
			continue
		}
		if !found || s.UnixTime > best.UnixTime {
			best, bestUID, found = s, uid, true
		}
	}
	switch {
	case !hasData:
		return Sample{}, IllegalUID, ErrNoData
	case !found:
		return Sample{}, IllegalUID, ErrNoGap
	}
	return best, bestUID, nil
}

// SetGapThreshold applies the gap threshold to every current and future store.
func (l *Ledger) SetGapThreshold(seconds float64) {
	l.gapThreshold = seconds
	for _, st := range l.stores {
		st.SetGapThreshold(seconds)
	}
}

// Drop removes a device and reports whether it existed.
func (l *Ledger) Drop(uid string) bool {
	if _, ok := l.stores[uid]; !ok {
		return false
	}
	delete(l.stores, uid)
	return true
}

// Clone returns a deep copy that shares nothing with l.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		stores:       make(map[string]*Store, len(l.stores)),
		gapThreshold: l.gapThreshold,
	}
	for uid, st := range l.stores {
		c.stores[uid] = st.Clone()
	}
	return c
}

// Require returns the store for uid or a not-found error naming the device.
func (l *Ledger) Require(uid string) (*Store, error) {
	st, ok := l.Store(uid)
	if !ok {
		return nil, errors.Newf("no samples for device %q", uid).
			Component("timeseries").
			Category(errors.CategoryNotFound).
			Context("uid", uid).
			Build()
	}
	return st, nil
}
