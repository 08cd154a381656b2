package model

import "time"

// AuditLog is write-once: rows are inserted by the audit recorder and never
// updated or deleted.
type AuditLog struct {
	ID         int64     `json:"id" db:"id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	Action     string    `json:"action" db:"action"`
	EntityType string    `json:"entity_type" db:"entity_type"`
	EntityID   int64     `json:"entity_id" db:"entity_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionRegister          = "REGISTER"
	AuditActionLogin             = "LOGIN"
	AuditActionSetupPatient      = "SETUP_PATIENT_PROFILE"
	AuditActionSetupDoctor       = "SETUP_DOCTOR_PROFILE"
	AuditActionCreateAppointment = "CREATE_APPOINTMENT"

	// Entity types
	AuditEntityUser        = "User"
	AuditEntityPatient     = "Patient"
	AuditEntityDoctor      = "Doctor"
	AuditEntityAppointment = "Appointment"
)

type AuditFilter struct {
	UserID     int64
	Action     string
	EntityType string
	Limit      int
	Offset     int
}
