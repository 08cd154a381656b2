package appointment

import (
	"github.com/rs/zerolog"
)

// Stage is a step of the booking workflow. Stages only move forward; a
// failure leaves the last reached stage recorded as the failure point.
type Stage int

const (
	StageStarted Stage = iota
	StagePatientResolved
	StageAppointmentPersisted
	StageAuditRecorded
	StageEventsPublished
	StageCommitted
	StageFailed
)

var stageNames = [...]string{
	StageStarted:              "started",
	StagePatientResolved:      "patient_resolved",
	StageAppointmentPersisted: "appointment_persisted",
	StageAuditRecorded:        "audit_recorded",
	StageEventsPublished:      "events_published",
	StageCommitted:            "committed",
	StageFailed:               "failed",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

type workflow struct {
	stage         Stage
	userID        int64
	appointmentID int64
	logger        zerolog.Logger
}

func newWorkflow(logger zerolog.Logger, userID int64) *workflow {
	w := &workflow{stage: StageStarted, userID: userID, logger: logger}
	w.logger.Debug().Int64("user_id", userID).Str("stage", w.stage.String()).Msg("booking started")
	return w
}

func (w *workflow) advance(next Stage) {
	if next <= w.stage || w.stage == StageFailed {
		return
	}
	w.stage = next
	w.logger.Debug().
		Int64("user_id", w.userID).
		Int64("appointment_id", w.appointmentID).
		Str("stage", next.String()).
		Msg("booking advanced")
}

func (w *workflow) fail(err error) {
	failedAt := w.stage
	w.stage = StageFailed
	w.logger.Warn().
		Err(err).
		Int64("user_id", w.userID).
		Str("failed_at", failedAt.String()).
		Msg("booking failed")
}
