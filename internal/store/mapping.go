package store

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a course mapping.
type Status string

const (
	// StatusPendingExport means the Target hierarchy exists and an export
	// has been (or is about to be) requested from Origin.
	StatusPendingExport Status = "pending_export"
	// StatusDelivered means the SCORM package reached the Target step. Terminal.
	StatusDelivered Status = "delivered"
	// StatusUploadFailed means a callback arrived but the upload to Target
	// failed. A redelivered callback retries from here.
	StatusUploadFailed Status = "upload_failed"
)

// CourseMapping correlates an Origin course with the Target step that was
// provisioned for it. It is the only durable state this service owns: the
// window between provisioning and Origin's callback can span hours, so the
// mapping has to survive restarts.
type CourseMapping struct {
	OriginCourseID string    `bson:"_id" json:"originCourseId"`
	TargetStepID   string    `bson:"target_step_id" json:"targetStepId"`
	Status         Status    `bson:"status" json:"status"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updatedAt"`
}

var (
	ErrNotFound          = errors.New("store: mapping not found")
	ErrAlreadyExists     = errors.New("store: mapping already exists")
	ErrInvalidTransition = errors.New("store: invalid status transition")
)

// ValidTransition reports whether a mapping may move between the two states.
// delivered is terminal; upload_failed may be retried or reset.
func ValidTransition(from, to Status) bool {
	switch from {
	case StatusPendingExport:
		return to == StatusDelivered || to == StatusUploadFailed
	case StatusUploadFailed:
		return to == StatusDelivered || to == StatusPendingExport || to == StatusUploadFailed
	default:
		return false
	}
}
