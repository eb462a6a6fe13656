package timeseries

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/supermechanical/rangelink/internal/errors"
)

// Store is the ordered sample series of a single device. Samples are kept in
// non-decreasing UnixTime order at every observable point.
//
// Store is not safe for concurrent use. Slices returned by Samples and
// FindSamples alias internal storage and are valid until the next Merge.
type Store struct {
	uid          string
	samples      []Sample
	gapThreshold float64
	minInterval  float64
}

// NewStore creates a store for uid seeded with samples in any order.
func NewStore(uid string, samples ...Sample) (*Store, error) {
	if uid == "" || uid == IllegalUID {
		return nil, errors.Newf("invalid device uid %q", uid).
			Component("timeseries").
			Category(errors.CategoryValidation).
			Build()
	}
	s := &Store{uid: uid}
	s.Merge(samples...)
	return s, nil
}

// UID returns the device id this store belongs to.
func (s *Store) UID() string { return s.uid }

// Len returns the number of samples.
func (s *Store) Len() int { return len(s.samples) }

// SampleAt returns the sample at index i.
func (s *Store) SampleAt(i int) (Sample, bool) {
	if i < 0 || i >= len(s.samples) {
		return Sample{}, false
	}
	return s.samples[i], true
}

// Samples returns a read-only view of all samples in time order.
func (s *Store) Samples() []Sample {
	return s.samples[:len(s.samples):len(s.samples)]
}

// Earliest returns the first sample.
func (s *Store) Earliest() (Sample, bool) {
	return s.SampleAt(0)
}

// Latest returns the last sample.
func (s *Store) Latest() (Sample, bool) {
	return s.SampleAt(len(s.samples) - 1)
}

// Merge inserts samples keeping time order and returns how many were added.
// Samples with equal times keep arrival order, existing ones first. A sample
// identical in both time and value to one already stored is dropped, so
// merging the same data twice is a no-op.
func (s *Store) Merge(samples ...Sample) int {
	if len(samples) == 0 {
		return 0
	}

	incoming := samples
	if !slices.IsSortedFunc(incoming, lessByTime) {
		incoming = slices.Clone(samples)
		slices.SortStableFunc(incoming, lessByTime)
	}

	before := len(s.samples)

	// Appending after the newest sample is the common decode path
	if before == 0 || incoming[0].UnixTime > s.samples[before-1].UnixTime {
		s.samples = append(s.samples, incoming...)
		s.samples = dedupeRuns(s.samples, before)
	} else {
		merged := make([]Sample, 0, before+len(incoming))
		i, j := 0, 0
		for i < before && j < len(incoming) {
			if incoming[j].UnixTime < s.samples[i].UnixTime {
				merged = append(merged, incoming[j])
				j++
			} else {
				merged = append(merged, s.samples[i])
				i++
			}
		}
		merged = append(merged, s.samples[i:]...)
		merged = append(merged, incoming[j:]...)
		s.samples = dedupeRuns(merged, 0)
	}

	s.minInterval = smallestInterval(s.samples)
	return len(s.samples) - before
}

// MergeStore merges another store of the same device.
func (s *Store) MergeStore(other *Store) error {
	if other == nil {
		return nil
	}
	if other.uid != s.uid {
		return errors.Newf("cannot merge store %q into %q", other.uid, s.uid).
			Component("timeseries").
			Category(errors.CategoryValidation).
			Context("uid", s.uid).
			Build()
	}
	s.Merge(other.samples...)
	return nil
}

// dedupeRuns removes samples that repeat an earlier (time, value) pair within
// the same equal-time run. Runs starting before from are only used as context.
func dedupeRuns(samples []Sample, from int) []Sample {
	start := from
	// Step back to the start of the run that from belongs to
	for start > 0 && start < len(samples) && samples[start-1].UnixTime == samples[start].UnixTime {
		start--
	}

	out := samples[:start]
	runStart := start
	for k := start; k < len(samples); k++ {
		cur := samples[k]
		if len(out) > runStart && out[len(out)-1].UnixTime != cur.UnixTime {
			runStart = len(out)
		}
		if slices.Contains(out[runStart:], cur) {
			continue
		}
		out = append(out, cur)
	}
	return out
}

func smallestInterval(samples []Sample) float64 {
	var minDt float64
	for k := 1; k < len(samples); k++ {
		dt := samples[k].UnixTime - samples[k-1].UnixTime
		if dt > 0 && (minDt == 0 || dt < minDt) {
			minDt = dt
		}
	}
	return minDt
}

// firstAtOrAfter returns the index of the first sample with UnixTime >= t.
func (s *Store) firstAtOrAfter(t float64) int {
	return sort.Search(len(s.samples), func(i int) bool {
		return s.samples[i].UnixTime >= t
	})
}

// firstAfter returns the index of the first sample with UnixTime > t.
func (s *Store) firstAfter(t float64) int {
	return sort.Search(len(s.samples), func(i int) bool {
		return s.samples[i].UnixTime > t
	})
}

// ClosestIndex returns the index of the sample nearest to t, or IndexNotFound
// when the store is empty. Equidistant candidates resolve to the earlier index.
func (s *Store) ClosestIndex(t float64) int {
	n := len(s.samples)
	if n == 0 {
		return IndexNotFound
	}

	i := s.firstAtOrAfter(t)
	switch {
	case i == 0:
		return 0
	case i == n:
		return s.firstAtOrAfter(s.samples[n-1].UnixTime)
	}

	before := s.samples[i-1]
	if t-before.UnixTime <= s.samples[i].UnixTime-t {
		return s.firstAtOrAfter(before.UnixTime)
	}
	return i
}

// Closest returns the sample nearest to t.
func (s *Store) Closest(t float64) (Sample, bool) {
	return s.SampleAt(s.ClosestIndex(t))
}

// FindSamplesIndex locates the samples with t0 <= UnixTime <= t1 and returns
// the first index and the count.
func (s *Store) FindSamplesIndex(t0, t1 float64) (start, n int, err error) {
	if len(s.samples) == 0 {
		return IndexNotFound, 0, ErrStoreEmpty
	}
	if t0 > t1 {
		return IndexNotFound, 0, ErrNoSamplesInRange
	}
	start = s.firstAtOrAfter(t0)
	end := s.firstAfter(t1)
	if end <= start {
		return IndexNotFound, 0, ErrNoSamplesInRange
	}
	return start, end - start, nil
}

// FindSamples returns the samples with t0 <= UnixTime <= t1 as a view.
func (s *Store) FindSamples(t0, t1 float64) ([]Sample, error) {
	start, n, err := s.FindSamplesIndex(t0, t1)
	if err != nil {
		return nil, err
	}
	return s.samples[start : start+n : start+n], nil
}

// Interpolate estimates the temperature at t.
//
// Inside the series the value is linearly interpolated between the bracketing
// samples and interval is their time distance. An exact hit returns interval 0.
// Outside the series the nearest boundary value is returned with interval -1.
// An empty store returns 0 and -1.
func (s *Store) Interpolate(t float64) (value float32, interval float64) {
	n := len(s.samples)
	if n == 0 || math.IsNaN(t) {
		return 0, -1
	}

	first, last := s.samples[0], s.samples[n-1]
	switch {
	case t < first.UnixTime:
		return first.Temperature, -1
	case t > last.UnixTime:
		return last.Temperature, -1
	}

	i := s.firstAtOrAfter(t)
	if s.samples[i].UnixTime == t {
		return s.samples[i].Temperature, 0
	}

	lo, hi := s.samples[i-1], s.samples[i]
	interval = hi.UnixTime - lo.UnixTime
	frac := (t - lo.UnixTime) / interval
	value = lo.Temperature + float32(float64(hi.Temperature-lo.Temperature)*frac)
	return value, interval
}

// SetGapThreshold sets the interval in seconds above which two consecutive
// samples are considered separated by a gap. Zero or negative disables gaps.
func (s *Store) SetGapThreshold(seconds float64) {
	s.gapThreshold = seconds
}

// GapThreshold returns the current gap threshold in seconds.
func (s *Store) GapThreshold() float64 { return s.gapThreshold }

// EndOfLatestGapIndex returns the index of the first sample after the most
// recent gap, or IndexNotFound.
func (s *Store) EndOfLatestGapIndex() int {
	if s.gapThreshold <= 0 {
		return IndexNotFound
	}
	for i := len(s.samples) - 1; i > 0; i-- {
		if s.samples[i].UnixTime-s.samples[i-1].UnixTime > s.gapThreshold {
			return i
		}
	}
	return IndexNotFound
}

// EndOfLatestGap returns the first sample after the most recent gap.
func (s *Store) EndOfLatestGap() (Sample, bool) {
	return s.SampleAt(s.EndOfLatestGapIndex())
}

// SampleRateInHz is the highest observed sampling density, derived from the
// smallest positive interval between adjacent samples. Zero when unknown.
func (s *Store) SampleRateInHz() float64 {
	if s.minInterval <= 0 {
		return 0
	}
	return 1 / s.minInterval
}

// Clone returns a deep copy.
func (s *Store) Clone() *Store {
	return &Store{
		uid:          s.uid,
		samples:      slices.Clone(s.samples),
		gapThreshold: s.gapThreshold,
		minInterval:  s.minInterval,
	}
}

func (s *Store) String() string {
	return fmt.Sprintf("Store(%s, %d samples)", s.uid, len(s.samples))
}
