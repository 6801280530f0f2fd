package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"grievance/backend/internal/config"
)

var validate = newValidator()

// newValidator registers the field length limits as tag aliases.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterAlias("title_len", fmt.Sprintf("max=%d", config.MaxTitleLength))
	v.RegisterAlias("description_len", fmt.Sprintf("max=%d", config.MaxDescriptionLength))
	v.RegisterAlias("category_len", fmt.Sprintf("max=%d", config.MaxCategoryLength))
	v.RegisterAlias("identity_len", fmt.Sprintf("max=%d", config.MaxIdentityLength))
	return v
}

// ErrMissingFields is returned when title, description or category is blank.
var ErrMissingFields = errors.New("title, description, and category are required")

// SubmitRequest is the anonymous submission payload. Identity fields are
// independently optional.
type SubmitRequest struct {
	Title       string  `json:"title" validate:"required,title_len"`
	Description string  `json:"description" validate:"required,description_len"`
	Category    string  `json:"category" validate:"required,category_len"`
	Name        *string `json:"name,omitempty" validate:"omitempty,identity_len"`
	Email       *string `json:"email,omitempty" validate:"omitempty,identity_len"`
	Phone       *string `json:"phone,omitempty" validate:"omitempty,identity_len"`
}

// Normalize trims every field and turns blank identity fields into nil.
func (r *SubmitRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Category = strings.TrimSpace(r.Category)
	r.Name = trimOptional(r.Name)
	r.Email = trimOptional(r.Email)
	r.Phone = trimOptional(r.Phone)
}

// Validate reports the first problem with the request, phrased for the caller.
// Call Normalize first.
func (r *SubmitRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return ErrMissingFields
		}
	}
	fe := fieldErrs[0]
	return fmt.Errorf("%s must be at most %s characters", strings.ToLower(fe.Field()), fe.Param())
}

// HasIdentity reports whether any contact field was supplied.
func (r *SubmitRequest) HasIdentity() bool {
	return r.Name != nil || r.Email != nil || r.Phone != nil
}

// StatusUpdateRequest is the body of a status change.
type StatusUpdateRequest struct {
	Status string `json:"status"`
}

// MessageRequest is the body of a thread append.
type MessageRequest struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
