// internal/app/detector.go
package app

import (
	"time"

	"celebration_job/internal/domain/account"
	"celebration_job/internal/domain/celebration"
)

// Occasion is an account that has at least one calendar event today.
type Occasion struct {
	Account         *account.Account
	IsBirthday      bool
	IsAnniversary   bool
	YearsOnPlatform int // set only when IsAnniversary
}

// EventTypes lists the events to celebrate, birthday first.
func (o Occasion) EventTypes() []celebration.EventType {
	types := make([]celebration.EventType, 0, 2)
	if o.IsBirthday {
		types = append(types, celebration.EventTypeBirthday)
	}
	if o.IsAnniversary {
		types = append(types, celebration.EventTypeAccountAnniversary)
	}
	return types
}

// PrimaryEvent is the event named in the single notification sent for the account.
func (o Occasion) PrimaryEvent() celebration.EventType {
	if o.IsBirthday {
		return celebration.EventTypeBirthday
	}
	return celebration.EventTypeAccountAnniversary
}

// Detector decides which accounts have an event on a given day.
// All calendar arithmetic happens in loc so the day boundary does not depend on the host.
type Detector struct {
	loc *time.Location
}

func NewDetector(loc *time.Location) *Detector {
	if loc == nil {
		loc = time.UTC
	}
	return &Detector{loc: loc}
}

func (d *Detector) Location() *time.Location {
	return d.loc
}

// DayStart returns local midnight of now's day in the detector's zone.
func (d *Detector) DayStart(now time.Time) time.Time {
	local := now.In(d.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, d.loc)
}

// Evaluate computes the event flags for a single account.
func (d *Detector) Evaluate(now time.Time, a *account.Account) Occasion {
	today := now.In(d.loc)
	occ := Occasion{Account: a}

	// DATE values carry no zone; compare their calendar fields as stored.
	if a.DateOfBirth.Valid {
		dob := a.DateOfBirth.Time
		occ.IsBirthday = dob.Month() == today.Month() && dob.Day() == today.Day()
	}

	created := a.CreatedAt.In(d.loc)
	if created.Month() == today.Month() && created.Day() == today.Day() && created.Year() < today.Year() {
		occ.IsAnniversary = true
		occ.YearsOnPlatform = today.Year() - created.Year()
	}
	return occ
}

// Detect returns the active accounts that qualify for at least one event today, in input order.
func (d *Detector) Detect(now time.Time, accounts []*account.Account) []Occasion {
	var out []Occasion
	for _, a := range accounts {
		if !a.IsActive {
			continue
		}
		occ := d.Evaluate(now, a)
		if occ.IsBirthday || occ.IsAnniversary {
			out = append(out, occ)
		}
	}
	return out
}
