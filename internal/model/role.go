package model

import (
	"database/sql/driver"
	"fmt"
)

// Role is the closed set of user roles. The zero value is not a valid role.
type Role uint8

const (
	RolePatient Role = iota + 1
	RoleDoctor
	RoleAdmin
)

var roleLabels = map[Role]string{
	RolePatient: "Patient",
	RoleDoctor:  "Doctor",
	RoleAdmin:   "Admin",
}

// Capability is a single permission checked by handlers and services.
type Capability uint16

const (
	CapSetupPatient Capability = 1 << iota
	CapSetupDoctor
	CapBookAppointment
	CapListOwnAppointments
	CapViewRegionAnalytics
	CapViewAuditLogs
	CapListDoctors
)

var roleCapabilities = map[Role]Capability{
	RolePatient: CapSetupPatient | CapBookAppointment | CapListOwnAppointments | CapListDoctors,
	RoleDoctor:  CapSetupDoctor | CapListOwnAppointments | CapListDoctors,
	RoleAdmin:   CapViewRegionAnalytics | CapViewAuditLogs | CapListDoctors,
}

// ParseRole converts a stored or requested label into a Role.
func ParseRole(s string) (Role, error) {
	for r, label := range roleLabels {
		if label == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	if label, ok := roleLabels[r]; ok {
		return label
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

// Can reports whether every capability in c is granted to the role.
func (r Role) Can(c Capability) bool {
	granted := roleCapabilities[r]
	return c != 0 && granted&c == c
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value stores the role label.
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return r.String(), nil
}

func (r *Role) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into Role", src)
	}
}
