package service

import (
	"github.com/iliyamo/course-enrollment/internal/config"
	"github.com/iliyamo/course-enrollment/internal/model"
)

// CompletionPolicy decides whether actor may complete e.  override is the
// caller's explicit request to skip the progress requirement.
type CompletionPolicy func(actor Actor, e *model.Enrollment, override bool) error

// RequireFullProgress is the default completion gate: progress must be
// 100, unless an admin asks for an override.
func RequireFullProgress(actor Actor, e *model.Enrollment, override bool) error {
	if override {
		if !actor.IsAdmin() {
			return ErrForbidden
		}
		return nil
	}
	if e.Progress < 100 {
		return ErrProgressIncomplete
	}
	return nil
}

// Policy holds the configurable engine rules.
type Policy struct {
	// RequireFutureDates rejects start and end dates that are not after now.
	RequireFutureDates bool
	// AllowLateEnrollment keeps a published course open after its start date.
	AllowLateEnrollment bool
	// FreeSeatOnCompletion releases the seat when an enrollment completes.
	FreeSeatOnCompletion bool
	// AutoActivate creates enrollments ACTIVE instead of PENDING.
	AutoActivate bool
	// MaxCapacity bounds a course's capacity.
	MaxCapacity int
	// OptimisticRetries bounds re-reads after a lost version race.
	OptimisticRetries int
	// Completion gates Complete; nil means RequireFullProgress.
	Completion CompletionPolicy
}

// DefaultPolicy returns the rules used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		RequireFutureDates: true,
		MaxCapacity:        1000,
		OptimisticRetries:  5,
		Completion:         RequireFullProgress,
	}
}

// PolicyFromConfig builds a Policy from the engine section of the config.
func PolicyFromConfig(c config.EngineConfig) Policy {
	p := DefaultPolicy()
	p.RequireFutureDates = c.RequireFutureDates
	p.AllowLateEnrollment = c.AllowLateEnrollment
	p.FreeSeatOnCompletion = c.FreeSeatOnCompletion
	p.AutoActivate = c.AutoActivate
	if c.MaxCapacity > 0 {
		p.MaxCapacity = c.MaxCapacity
	}
	if c.OptimisticRetries > 0 {
		p.OptimisticRetries = c.OptimisticRetries
	}
	return p
}

func (p Policy) normalized() Policy {
	if p.MaxCapacity <= 0 {
		p.MaxCapacity = 1000
	}
	if p.OptimisticRetries <= 0 {
		p.OptimisticRetries = 1
	}
	if p.Completion == nil {
		p.Completion = RequireFullProgress
	}
	return p
}

// seatHolder reports whether an enrollment in status s occupies a seat
// under this policy.
func (p Policy) seatHolder(s model.EnrollmentStatus) bool {
	return s.HoldsSeat() || (s == model.EnrollmentCompleted && !p.FreeSeatOnCompletion)
}
