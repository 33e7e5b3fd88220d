package addressbook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the on-disk and form layout for dates of birth.
const DateLayout = "2006-01-02"

// Contact is a single stored person. Age is derived from DateOfBirth on
// read and is never stored.
type Contact struct {
	ID          string    `json:"id" validate:"omitempty,hexid"`
	Name        string    `json:"name" validate:"required,min=3,max=64,singleline"`
	Email       string    `json:"email" validate:"required,email,singleline"`
	PhoneNumber string    `json:"phoneNumber" validate:"required,min=7,singleline"`
	DateOfBirth time.Time `json:"dateOfBirth" validate:"required,past"`
}

// NewContact returns a Contact with a freshly generated ID.
func NewContact(name, email, phone string, dob time.Time) *Contact {
	c := &Contact{
		ID:          GenerateID(IDLength),
		Name:        name,
		Email:       email,
		PhoneNumber: phone,
	}
	c.SetDateOfBirth(dob)
	return c
}

// SetDateOfBirth stores dob truncated to the calendar day. A zero value
// clears it, which makes Age report 0.
func (c *Contact) SetDateOfBirth(dob time.Time) {
	if dob.IsZero() {
		c.DateOfBirth = time.Time{}
		return
	}
	c.DateOfBirth = calendarDate(dob)
}

// Age returns the whole years between DateOfBirth and today.
func (c *Contact) Age() int {
	return c.AgeAt(time.Now())
}

// AgeAt returns the whole years between DateOfBirth and the day of now.
func (c *Contact) AgeAt(now time.Time) int {
	if c.DateOfBirth.IsZero() {
		return 0
	}
	return yearsBetween(c.DateOfBirth, calendarDate(now))
}

// BirthDate returns DateOfBirth in DateLayout, or "" when unset.
func (c *Contact) BirthDate() string {
	if c.DateOfBirth.IsZero() {
		return ""
	}
	return c.DateOfBirth.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD string into a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatContact returns a human-readable summary of a Contact.
func FormatContact(c *Contact) string {
	var b strings.Builder
	if c.Name != "" {
		b.WriteString(c.Name)
		b.WriteByte('\n')
		b.WriteString(strings.Repeat("-", len(c.Name)))
		b.WriteByte('\n')
	}
	if c.Email != "" {
		b.WriteString(fmt.Sprintf("  Email:     %s\n", c.Email))
	}
	if c.PhoneNumber != "" {
		b.WriteString(fmt.Sprintf("  Phone:     %s\n", c.PhoneNumber))
	}
	if !c.DateOfBirth.IsZero() {
		b.WriteString(fmt.Sprintf("  Birthday:  %s\n", c.DateOfBirth.Format("Jan 2, 2006")))
		b.WriteString(fmt.Sprintf("  Age:       %d\n", c.Age()))
	}
	if c.ID != "" {
		b.WriteString(fmt.Sprintf("  ID:        %s\n", c.ID))
	}
	return strings.TrimRight(b.String(), "\n")
}

type contactJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	DateOfBirth string `json:"dateOfBirth"`
	Age         int    `json:"age"`
}

func toJSON(c *Contact) contactJSON {
	return contactJSON{
		ID:          c.ID,
		Name:        c.Name,
		Email:       c.Email,
		PhoneNumber: c.PhoneNumber,
		DateOfBirth: c.BirthDate(),
		Age:         c.Age(),
	}
}

// FormatContactJSON returns c as indented JSON with the date as YYYY-MM-DD.
func FormatContactJSON(c *Contact) (string, error) {
	data, err := json.MarshalIndent(toJSON(c), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal contact: %w", err)
	}
	return string(data), nil
}

// FormatContactsJSON returns cs as an indented JSON array.
func FormatContactsJSON(cs []*Contact) (string, error) {
	out := make([]contactJSON, len(cs))
	for i, c := range cs {
		out[i] = toJSON(c)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal contacts: %w", err)
	}
	return string(data), nil
}

// calendarDate drops the clock and zone, keeping t's local calendar day.
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func yearsBetween(from, to time.Time) int {
	years := to.Year() - from.Year()
	if to.Month() < from.Month() || (to.Month() == from.Month() && to.Day() < from.Day()) {
		years--
	}
	return years
}
