package router

import (
	"fmt"

	"github.com/cxcscmu/LLM-Interviewer/pkg/models"
	"github.com/pkg/errors"
)

var (
	ErrInvalidModel        = errors.New("invalid model")
	ErrFamilyNotConfigured = errors.New("model family not configured")
)

// InvalidModelError is returned when a model identifier is not in the
// catalog. No backend is contacted.
type InvalidModelError struct {
	Model string
}

func (e *InvalidModelError) Error() string {
	if e == nil {
		return ErrInvalidModel.Error()
	}
	return fmt.Sprintf("%s: %q", ErrInvalidModel, e.Model)
}

func (e *InvalidModelError) Is(target error) bool { return target == ErrInvalidModel }

// FamilyNotConfiguredError is returned when the model is known but its family
// has no credentials.
type FamilyNotConfiguredError struct {
	Model  string
	Family models.Family
}

func (e *FamilyNotConfiguredError) Error() string {
	if e == nil {
		return ErrFamilyNotConfigured.Error()
	}
	return fmt.Sprintf("%s: %s (model %q)", ErrFamilyNotConfigured, e.Family, e.Model)
}

func (e *FamilyNotConfiguredError) Is(target error) bool { return target == ErrFamilyNotConfigured }
