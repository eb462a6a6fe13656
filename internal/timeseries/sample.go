// Package timeseries holds decoded temperature samples per device and answers
// nearest-sample, range, interpolation and gap queries over them.
package timeseries

import (
	"github.com/supermechanical/rangelink/internal/errors"
)

// Sample is one decoded reading. Temperature is in the raw scale (Fahrenheit),
// UnixTime is seconds since the epoch with sub-second precision.
type Sample struct {
	Temperature float32 `json:"temperature" yaml:"temperature"`
	UnixTime    float64 `json:"unix_time" yaml:"unix_time"`
}

// IndexNotFound is returned by index queries that have no answer.
const IndexNotFound = -1

// IllegalUID is reported where a query has no device to name. Decoded device
// ids are lowercase hex so this value never collides with a real one.
const IllegalUID = "illegal-uid"

var (
	// ErrStoreEmpty is returned by queries against a store without samples.
	ErrStoreEmpty = errors.New(errors.NewStd("store has no samples")).
			Component("timeseries").
			Category(errors.CategoryNotFound).
			Build()

	// ErrNoSamplesInRange is returned when a non-empty store has nothing in the requested window.
	ErrNoSamplesInRange = errors.New(errors.NewStd("no samples in range")).
				Component("timeseries").
				Category(errors.CategoryNotFound).
				Build()

	// ErrNoData is returned by ledger queries when no device holds any sample.
	ErrNoData = errors.New(errors.NewStd("ledger has no samples")).
			Component("timeseries").
			Category(errors.CategoryNotFound).
			Build()

	// ErrNoGap is returned when data exists but no interval exceeds the gap threshold.
	ErrNoGap = errors.New(errors.NewStd("no gap in samples")).
			Component("timeseries").
			Category(errors.CategoryNotFound).
			Build()
)

func lessByTime(a, b Sample) int {
	switch {
	case a.UnixTime < b.UnixTime:
		return -1
	case a.UnixTime > b.UnixTime:
		return 1
	default:
		return 0
	}
}
