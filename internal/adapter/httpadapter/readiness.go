package httpadapter

import (
	"context"
	"errors"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// Checks is ready only when every member is ready.
type Checks []sharedobs.ReadinessChecker

// CheckReadiness runs every check and joins the failures.
func (c Checks) CheckReadiness(ctx context.Context) error {
	var errs []error
	for _, check := range c {
		if err := check.CheckReadiness(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
