package submission

import (
	"slices"
)

// Annotation keys written by the hook.
const (
	KeyExecutionStarted        = "EXECUTION_STARTED"
	KeyTimeRemaining           = "TIME_REMAINING"
	KeyFailureReason           = "FAILURE_REASON"
	KeySubmissionFolder        = "SUBMISSION_FOLDER"
	KeyWorkflowLastUpdated     = "WORKFLOW_LAST_UPDATED"
	KeyStatusDescription       = "STATUS_DESCRIPTION"
	KeyLastLogUpload           = "LAST_LOG_UPLOAD"
	KeyLogFileNotificationSent = "LOG_FILE_NOTIFICATION_SENT"
	KeyProgress                = "PROGRESS"
	KeyWorkflowJobID           = "workflowJobId"
)

// Visibility settings.
const (
	Public  = false
	Private = true
)

// maxStringValue is the longest string annotation the record API stores.
const maxStringValue = 499

// Kind is the value type of an annotation.
type Kind string

// Kind constants
const (
	KindString Kind = "string"
	KindLong   Kind = "long"
	KindDouble Kind = "double"
)

// Annotation is a typed key/value fact on a status.
type Annotation struct {
	Key     string  `json:"key"`
	Kind    Kind    `json:"kind"`
	String  string  `json:"stringValue,omitempty"`
	Long    int64   `json:"longValue,omitempty"`
	Double  float64 `json:"doubleValue,omitempty"`
	Private bool    `json:"isPrivate"`
}

// StringAnnotation builds a string annotation, truncating long values.
func StringAnnotation(key, value string, private bool) Annotation {
	if r := []rune(value); len(r) > maxStringValue {
		value = string(r[:maxStringValue])
	}
	return Annotation{Key: key, Kind: KindString, String: value, Private: private}
}

// LongAnnotation builds an integer annotation.
func LongAnnotation(key string, value int64, private bool) Annotation {
	return Annotation{Key: key, Kind: KindLong, Long: value, Private: private}
}

// DoubleAnnotation builds a floating point annotation.
func DoubleAnnotation(key string, value float64, private bool) Annotation {
	return Annotation{Key: key, Kind: KindDouble, Double: value, Private: private}
}

// Annotations holds at most one annotation per key.
type Annotations []Annotation

// Clone returns a copy of a.
func (a Annotations) Clone() Annotations {
	return slices.Clone(a)
}

// Get returns the annotation for key.
func (a Annotations) Get(key string) (Annotation, bool) {
	i := slices.IndexFunc(a, func(x Annotation) bool { return x.Key == key })
	if i < 0 {
		return Annotation{}, false
	}
	return a[i], true
}

// String returns the string value for key.
func (a Annotations) String(key string) (string, bool) {
	x, ok := a.Get(key)
	if !ok || x.Kind != KindString {
		return "", false
	}
	return x.String, true
}

// Long returns the integer value for key.
func (a Annotations) Long(key string) (int64, bool) {
	x, ok := a.Get(key)
	if !ok || x.Kind != KindLong {
		return 0, false
	}
	return x.Long, true
}

// Double returns the floating point value for key.
func (a Annotations) Double(key string) (float64, bool) {
	x, ok := a.Get(key)
	if !ok || x.Kind != KindDouble {
		return 0, false
	}
	return x.Double, true
}

// Set replaces any annotation with the same key, whatever its kind.
func (a Annotations) Set(x Annotation) Annotations {
	a = a.Remove(x.Key)
	return append(a, x)
}

// Remove drops the annotation for key.
func (a Annotations) Remove(key string) Annotations {
	return slices.DeleteFunc(a, func(x Annotation) bool { return x.Key == key })
}
