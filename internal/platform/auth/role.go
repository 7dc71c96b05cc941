package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleDoctor  Role = "DOCTOR"
	RolePatient Role = "PATIENT"
	RoleStaff   Role = "STAFF"
)

// rolePrecedence decides which role wins when a token carries several.
var rolePrecedence = []Role{RoleAdmin, RoleStaff, RoleDoctor, RolePatient}

// ParseRole maps a claim value to a Role, ignoring case.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient, RoleStaff:
		return r, true
	}
	return "", false
}

// EffectiveRole picks the most privileged recognised role from claims.
func EffectiveRole(claims []string) Role {
	have := make(map[Role]bool, len(claims))
	for _, c := range claims {
		if r, ok := ParseRole(c); ok {
			have[r] = true
		}
	}
	for _, r := range rolePrecedence {
		if have[r] {
			return r
		}
	}
	return ""
}

// Actor is the authenticated caller with its directory profiles resolved.
type Actor struct {
	UserID    string
	Role      Role
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
}

func (a *Actor) IsAdmin() bool { return a != nil && a.Role == RoleAdmin }

// IsStaffOrAdmin reports whether the actor has clinic-wide visibility.
func (a *Actor) IsStaffOrAdmin() bool {
	return a != nil && (a.Role == RoleAdmin || a.Role == RoleStaff)
}

// IsClinical is true for administrators, staff and doctors with a profile.
func (a *Actor) IsClinical() bool {
	if a == nil {
		return false
	}
	switch a.Role {
	case RoleAdmin, RoleStaff:
		return true
	case RoleDoctor:
		return a.DoctorID != nil
	}
	return false
}

// IsDoctor reports whether the actor is the doctor with the given profile id.
func (a *Actor) IsDoctor(id uuid.UUID) bool {
	return a != nil && a.DoctorID != nil && *a.DoctorID == id
}

// IsPatient reports whether the actor is the patient with the given profile id.
func (a *Actor) IsPatient(id uuid.UUID) bool {
	return a != nil && a.PatientID != nil && *a.PatientID == id
}

func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, ActorKey, a)
}

func ActorFromContext(ctx context.Context) *Actor {
	a, _ := ctx.Value(ActorKey).(*Actor)
	return a
}

// ProfileResolver finds the doctor and patient profiles owned by a user.
type ProfileResolver interface {
	ResolveProfiles(ctx context.Context, userID string) (doctorID, patientID *uuid.UUID, err error)
}

// ResolveActor builds the Actor for the request. It must run after the tenant
// middleware so profile lookups hit the tenant schema.
func ResolveActor(resolver ProfileResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			actor := &Actor{UserID: userID, Role: EffectiveRole(RolesFromContext(ctx))}
			if resolver != nil {
				doctorID, patientID, err := resolver.ResolveProfiles(ctx, userID)
				if err != nil {
					return echo.NewHTTPError(http.StatusInternalServerError, "actor resolution failed").SetInternal(err)
				}
				actor.DoctorID = doctorID
				actor.PatientID = patientID
			}

			c.SetRequest(c.Request().WithContext(WithActor(ctx, actor)))
			c.Set("actor", actor)
			return next(c)
		}
	}
}
