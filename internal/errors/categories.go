package errors

// ErrorCategory groups errors for logging, metrics and reporting.
type ErrorCategory string

// Categories used across rangelink.
const (
	CategoryGeneric       ErrorCategory = "generic"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryState         ErrorCategory = "state"
	CategoryResource      ErrorCategory = "resource"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryCancellation  ErrorCategory = "cancellation"

	CategoryFileIO      ErrorCategory = "file-io"
	CategoryFileParsing ErrorCategory = "file-parsing"

	// host audio session and streams
	CategoryAudio       ErrorCategory = "audio-processing"
	CategoryAudioSource ErrorCategory = "audio-source"
	// demodulation and frame parsing
	CategoryProcessing ErrorCategory = "processing"

	CategoryNetwork        ErrorCategory = "network"
	CategoryMQTTConnection ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish    ErrorCategory = "mqtt-publish"
)

// Priorities, lowest first.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// categoryPriority is used when the builder did not set a priority.
var categoryPriority = map[ErrorCategory]string{
	CategoryValidation:     PriorityLow,
	CategoryNotFound:       PriorityLow,
	CategoryCancellation:   PriorityLow,
	CategoryMQTTPublish:    PriorityLow,
	CategoryMQTTConnection: PriorityMedium,
	CategoryNetwork:        PriorityMedium,
	CategoryTimeout:        PriorityMedium,
	CategoryAudioSource:    PriorityHigh,
	CategoryResource:       PriorityHigh,
	CategoryState:          PriorityHigh,
	CategoryConfiguration:  PriorityHigh,
}

func validPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}
