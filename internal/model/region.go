package model

import "time"

// RegionStat is the running appointment tally for one spatial cell,
// maintained by the region statistics event handler.
type RegionStat struct {
	CellID            string    `json:"cell_id" db:"cell_id"`
	AppointmentCount  int64     `json:"appointment_count" db:"appointment_count"`
	LastAppointmentID int64     `json:"last_appointment_id" db:"last_appointment_id"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// RegionCount is the authoritative appointment count for a cell.
type RegionCount struct {
	CellID string `json:"cell_id" db:"cell_id"`
	Count  int64  `json:"count" db:"count"`
}

type RegionAnalytics struct {
	CellID    string        `json:"cell_id"`
	Count     int64         `json:"count"`
	Ring      int           `json:"ring,omitempty"`
	Neighbors []RegionCount `json:"neighbors,omitempty"`
	Total     int64         `json:"total,omitempty"`
}
