package model

const EventAppointmentCreated = "appointment_created"

// AppointmentCreatedEvent is published after an appointment and its audit
// entry are written, inside the same unit of work.
type AppointmentCreatedEvent struct {
	AppointmentID int64  `json:"appointment_id"`
	PatientID     int64  `json:"patient_id"`
	SpatialCell   string `json:"spatial_cell"`
}
