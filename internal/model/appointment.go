package model

import "time"

type AppointmentStatus string

const (
	AppointmentStatusConfirmed AppointmentStatus = "CONFIRMED"
)

// Appointment carries a snapshot of the patient's cell taken at booking
// time; it is not updated when the patient profile changes.
type Appointment struct {
	ID          int64             `db:"id" json:"id"`
	PatientID   int64             `db:"patient_id" json:"patient_id"`
	DoctorID    int64             `db:"doctor_id" json:"doctor_id"`
	Status      AppointmentStatus `db:"status" json:"status"`
	CellID      string            `db:"cell_id" json:"cell_id"`
	ScheduledAt time.Time         `db:"scheduled_at" json:"scheduled_at"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
}

type CreateAppointmentRequest struct {
	DoctorID    int64     `json:"doctor_id" binding:"required,gt=0"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}
