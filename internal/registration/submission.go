// Package registration forwards sign-ups for one event occurrence to the
// external registration API and refreshes cached counts afterwards.
package registration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	ReasonOperatorMandate = "Operator mandate"
	ReasonCompany         = "Company Requirement"
	ReasonOther           = "Other"
)

// Submission is the registration form for one occurrence.
type Submission struct {
	EventID      string `json:"eventId" validate:"required"`
	InstanceDate string `json:"instanceDate" validate:"required,datetime=2006-01-02"`

	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,max=40"`

	NumberOfPeople int    `json:"numberOfPeople" validate:"min=1,max=10"`
	CompanyName    string `json:"companyName,omitempty" validate:"max=200"`

	ReasonForTraining      string `json:"reasonForTraining" validate:"required,oneof='Operator mandate' 'Company Requirement' Other"`
	ReasonOtherExplanation string `json:"reasonOtherExplanation,omitempty" validate:"required_if=ReasonForTraining Other,max=1000"`
	Comments               string `json:"comments,omitempty" validate:"max=2000"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize trims free-text fields and defaults the party size to one.
func (s *Submission) Normalize() {
	for _, f := range []*string{
		&s.EventID, &s.InstanceDate, &s.FirstName, &s.LastName, &s.Email, &s.Phone,
		&s.CompanyName, &s.ReasonForTraining, &s.ReasonOtherExplanation, &s.Comments,
	} {
		*f = strings.TrimSpace(*f)
	}
	if s.NumberOfPeople == 0 {
		s.NumberOfPeople = 1
	}
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, fe := range e.Fields {
		parts = append(parts, fieldMessage(fe))
	}
	return "invalid registration: " + strings.Join(parts, ", ")
}

// Messages maps each failing field (by JSON name) to a readable message.
func (e *ValidationError) Messages() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, fe := range e.Fields {
		out[jsonName(fe.Field())] = fieldMessage(fe)
	}
	return out
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Validate checks the submission's shape. It does not look at the event.
func (s Submission) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return &ValidationError{Fields: ve}
	}
	return err
}

func fieldMessage(fe validator.FieldError) string {
	field := jsonName(fe.Field())
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("field %s is required", field)
	case "email":
		return fmt.Sprintf("field %s is not a valid email", field)
	case "datetime":
		return fmt.Sprintf("field %s must be YYYY-MM-DD", field)
	case "oneof":
		return fmt.Sprintf("field %s must be one of: %s", field, fe.Param())
	case "min", "max":
		return fmt.Sprintf("field %s is out of range (%s %s)", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("field %s is not valid", field)
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	switch field {
	case "EventID":
		return "eventId"
	}
	return strings.ToLower(field[:1]) + field[1:]
}
