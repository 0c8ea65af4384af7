package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	RoleDoctor  = "DOCTOR"
	RolePatient = "PATIENT"
	RoleAdmin   = "ADMIN"
)

// CallerIdentity is the authenticated user behind a request.
type CallerIdentity struct {
	UserID string
	Roles  []string
	Email  string
	Name   string
}

func (c CallerIdentity) Authenticated() bool {
	return strings.TrimSpace(c.UserID) != ""
}

func (c CallerIdentity) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type DoctorProfile struct {
	bun.BaseModel `bun:"table:doctors"`

	ID             uuid.UUID `bun:"id,pk,type:uuid"`
	UserID         string    `bun:"user_id,notnull"`
	FirstName      string    `bun:"first_name"`
	LastName       string    `bun:"last_name"`
	Specialization string    `bun:"specialization"`
	LicenseNumber  string    `bun:"license_number"`
	Email          string    `bun:"email"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func (d DoctorProfile) DisplayName() string {
	return displayName(d.FirstName, d.LastName, "Doctor")
}

type PatientProfile struct {
	bun.BaseModel `bun:"table:patients"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	UserID    string    `bun:"user_id,notnull"`
	FirstName string    `bun:"first_name"`
	LastName  string    `bun:"last_name"`
	Phone     string    `bun:"phone"`
	Email     string    `bun:"email"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func (p PatientProfile) DisplayName() string {
	return displayName(p.FirstName, p.LastName, "Patient")
}

func displayName(first, last, fallback string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name == "" {
		return fallback
	}
	return name
}
