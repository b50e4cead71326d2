package audit

import (
	"errors"
	"fmt"

	"github.com/keyxmakerx/beacon/internal/apperror"
)

var (
	errCampaignRequired  = errors.New("campaign ID is required")
	errEntityRequired    = errors.New("entity ID is required")
	errUnknownEntityType = errors.New("unknown entity type")
	errDrawerClosed      = errors.New("drawer is not open")
	errNotInDrawer       = errors.New("not shown in the drawer")
)

func errUnknownSection(sectionID string) error {
	return fmt.Errorf("section %q %w", sectionID, errNotInDrawer)
}

func errUnknownRow(sectionID, field string) error {
	return fmt.Errorf("field %q of section %q %w", field, sectionID, errNotInDrawer)
}

// toAppError maps the package's input errors to client-facing AppErrors.
// Anything else is treated as an infrastructure failure.
func toAppError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, errCampaignRequired):
		return apperror.NewBadRequest(errCampaignRequired.Error())
	case errors.Is(err, errEntityRequired), errors.Is(err, errUnknownEntityType):
		return apperror.NewValidation(err.Error())
	case errors.Is(err, errNotInDrawer):
		return apperror.NewNotFound(err.Error())
	case errors.Is(err, errDrawerClosed):
		return apperror.NewConflict(errDrawerClosed.Error())
	default:
		return apperror.NewInternal(err)
	}
}
