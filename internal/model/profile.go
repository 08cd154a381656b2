package model

import "time"

// Patient is the geolocated profile of a patient user. CellID is derived
// from the coordinate once, at creation, under the system resolution.
type Patient struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	CellID    string    `json:"cell_id" db:"cell_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Doctor struct {
	ID             int64     `json:"id" db:"id"`
	UserID         int64     `json:"user_id" db:"user_id"`
	Specialization string    `json:"specialization" db:"specialization"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type SetupPatientRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

type SetupPatientResponse struct {
	PatientID int64  `json:"patient_id"`
	CellID    string `json:"cell_id"`
}

type SetupDoctorRequest struct {
	Specialization string `json:"specialization" binding:"required,max=50"`
}
