package impl

import (
	"encoding/base64"
	"errors"
	"fmt"

	"chatcore/internal/domain"
	"chatcore/internal/store"
)

var errStoreNotConfigured = errors.New("store not configured")

func translateStoreErr(err error, what string) error {
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", domain.ErrNotFound, what)
	case errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%w: %s already exists", domain.ErrConflict, what)
	}
	return err
}

// decodeBase64Field checks that value is non-empty standard base64 and returns
// the decoded length.
func decodeBase64Field(value, field string) (int, error) {
	if value == "" {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrValidation, field)
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not valid base64", domain.ErrValidation, field)
	}
	return len(raw), nil
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{domain.ErrValidation}, args...)...)
}

func forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{domain.ErrForbidden}, args...)...)
}
