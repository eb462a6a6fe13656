package audiolink

// LinkRecorder receives decoder observations. metrics.LinkMetrics implements it.
type LinkRecorder interface {
	RecordFrame(status string)
	RecordSample(device string, unixTime float64)
	RecordBufferDrop(reason string)
	UpdateBufferFill(ratio float64)
	ObserveDecodeDuration(seconds float64)
}

// ToneRecorder receives power tone state changes.
type ToneRecorder interface {
	SetToneActive(active bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordFrame(string)            {}
func (nopRecorder) RecordSample(string, float64)  {}
func (nopRecorder) RecordBufferDrop(string)       {}
func (nopRecorder) UpdateBufferFill(float64)      {}
func (nopRecorder) ObserveDecodeDuration(float64) {}
func (nopRecorder) SetToneActive(bool)            {}
