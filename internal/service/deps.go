package service

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/course-enrollment/internal/queue"
	"github.com/iliyamo/course-enrollment/internal/repository"
)

// Deps bundles the collaborators shared by the services.  Clock, Policy
// fields, Events and Logger may be left zero.
type Deps struct {
	Tx          TxRunner
	Courses     CourseStore
	Enrollments EnrollmentStore
	Clock       Clock
	Policy      Policy
	Events      EventPublisher
	Logger      *log.Logger
}

func (d Deps) withDefaults(prefix string) Deps {
	if d.Clock == nil {
		d.Clock = SystemClock
	}
	d.Policy = d.Policy.normalized()
	if d.Logger == nil {
		d.Logger = log.New(prefix)
	}
	return d
}

// now returns the clock reading at the precision the stores keep.
func (d Deps) now() time.Time {
	return d.Clock.Now().UTC().Truncate(time.Millisecond)
}

// publish hands ev to the publisher in the background.  It runs after
// commit and never affects the outcome of the request.
func (d Deps) publish(ctx context.Context, ev queue.EnrollmentEvent) {
	if d.Events == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := d.Events.Publish(ctx, ev); err != nil {
			d.Logger.Warnf("publish %s failed: %v", ev.Type, err)
		}
	}()
}

// optimistic runs fn as a unit of work and runs it again, from a fresh
// read, whenever a conditional write lost a version race.
func (d Deps) optimistic(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := d.Tx.WithinTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrStaleVersion) {
			return storeErr(err)
		}
		if attempt >= d.Policy.OptimisticRetries {
			d.Logger.Warnf("optimistic update gave up after %d attempts", attempt)
			return ErrConcurrentModification
		}
	}
}
