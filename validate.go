package addressbook

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	minAge = 10
	maxAge = 100
)

// FieldError is a single failed constraint, keyed by the form/json field name.
type FieldError struct {
	Field   string
	Message string
}

// ValidationErrors lists every constraint a Contact failed.
type ValidationErrors []FieldError

func (ve ValidationErrors) Error() string {
	msgs := make([]string, len(ve))
	for i, fe := range ve {
		msgs[i] = fe.Message
	}
	return "invalid contact: " + strings.Join(msgs, "; ")
}

// For returns the first message recorded for field, or "".
func (ve ValidationErrors) For(field string) string {
	for _, fe := range ve {
		if fe.Field == field {
			return fe.Message
		}
	}
	return ""
}

// Validator checks Contacts against the field constraints. now decides
// what "past" and "age" mean, so tests can pin the clock.
type Validator struct {
	v   *validator.Validate
	now func() time.Time
}

// NewValidator returns a Validator using now as its clock; nil means time.Now.
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	val := &Validator{v: validator.New(), now: now}
	val.v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// Registration only fails for empty tags or nil funcs.
	_ = val.v.RegisterValidation("hexid", func(fl validator.FieldLevel) bool {
		return isHexID(fl.Field().String())
	})
	_ = val.v.RegisterValidation("singleline", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), "\r\n")
	})
	_ = val.v.RegisterValidation("past", func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(time.Time)
		if !ok {
			return false
		}
		return calendarDate(t).Before(calendarDate(val.now()))
	})
	val.v.RegisterStructValidation(val.validateAge, Contact{})
	return val
}

func (val *Validator) validateAge(sl validator.StructLevel) {
	c := sl.Current().Interface().(Contact)
	now := val.now()
	if c.DateOfBirth.IsZero() || !calendarDate(c.DateOfBirth).Before(calendarDate(now)) {
		return
	}
	age := c.AgeAt(now)
	switch {
	case age < minAge:
		sl.ReportError(age, "age", "Age", "agemin", fmt.Sprint(minAge))
	case age > maxAge:
		sl.ReportError(age, "age", "Age", "agemax", fmt.Sprint(maxAge))
	}
}

// Validate returns nil or a ValidationErrors describing every failure.
func (val *Validator) Validate(c *Contact) error {
	if c == nil {
		return ValidationErrors{{Field: "contact", Message: "Contact cannot be null"}}
	}
	err := val.v.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate contact: %w", err)
	}
	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: message(fe.Field(), fe.Tag())})
	}
	return out
}

var defaultValidator = NewValidator(nil)

// Validate checks c against the wall clock.
func (c *Contact) Validate() error {
	return defaultValidator.Validate(c)
}

func message(field, tag string) string {
	if tag == "singleline" {
		return fieldLabel(field) + " must not contain line breaks"
	}
	switch field {
	case "id":
		return "Invalid contact id"
	case "name":
		if tag == "required" {
			return "Name cannot be null"
		}
		return "Name must be between 3 and 64 characters"
	case "email":
		return "Invalid Email"
	case "phoneNumber":
		return "Phone number must be at least 7 digit."
	case "dateOfBirth":
		if tag == "required" {
			return "Date of Birth must be mandatory"
		}
		return "Date of birth must not be future"
	case "age":
		if tag == "agemin" {
			return fmt.Sprintf("Must be above %d years old", minAge)
		}
		return fmt.Sprintf("Must be below %d years old", maxAge)
	}
	return fmt.Sprintf("%s failed %s", fieldLabel(field), tag)
}

func fieldLabel(field string) string {
	switch field {
	case "phoneNumber":
		return "Phone number"
	case "dateOfBirth":
		return "Date of birth"
	}
	if field == "" {
		return field
	}
	return strings.ToUpper(field[:1]) + field[1:]
}
