package addressbook

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-vcard"
)

// Codec translates a Contact to and from the bytes of its file.
type Codec interface {
	Name() string
	Encode(c *Contact) ([]byte, error)
	// Decode rebuilds a Contact from data; id becomes the Contact's ID.
	Decode(id string, data []byte) (*Contact, error)
}

const (
	FormatLines = "lines"
	FormatVCard = "vcard"
)

// CodecFor returns the codec registered under name.
func CodecFor(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", FormatLines:
		return LineCodec{}, nil
	case FormatVCard, "vcf":
		return VCardCodec{}, nil
	}
	return nil, fmt.Errorf("unknown storage format %q (want %s or %s)", name, FormatLines, FormatVCard)
}

// LineCodec writes four newline-terminated lines: name, email, phone and
// date of birth as YYYY-MM-DD. Nothing is escaped, so values containing
// line breaks are refused.
type LineCodec struct{}

func (LineCodec) Name() string { return FormatLines }

func (LineCodec) Encode(c *Contact) ([]byte, error) {
	fields := []string{c.Name, c.Email, c.PhoneNumber, c.BirthDate()}
	var buf bytes.Buffer
	for _, f := range fields {
		if strings.ContainsAny(f, "\r\n") {
			return nil, fmt.Errorf("contact %s: field %q contains a line break: %w", c.ID, f, ErrMalformed)
		}
		buf.WriteString(f)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (LineCodec) Decode(id string, data []byte) (*Contact, error) {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		lines = append(lines, strings.TrimSuffix(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan contact %s: %w", id, err)
	}
	if len(lines) < 4 {
		return nil, fmt.Errorf("contact %s: expected 4 lines, got %d: %w", id, len(lines), ErrMalformed)
	}
	dob, err := ParseDate(lines[3])
	if err != nil {
		return nil, fmt.Errorf("contact %s: %v: %w", id, err, ErrMalformed)
	}
	c := &Contact{
		ID:          id,
		Name:        lines[0],
		Email:       lines[1],
		PhoneNumber: lines[2],
	}
	c.SetDateOfBirth(dob)
	return c, nil
}

// VCardCodec stores contacts as vCard 4.0, which escapes embedded
// separators and line breaks.
type VCardCodec struct{}

func (VCardCodec) Name() string { return FormatVCard }

func (VCardCodec) Encode(c *Contact) ([]byte, error) {
	return EncodeCard(ContactCard(c))
}

func (VCardCodec) Decode(id string, data []byte) (*Contact, error) {
	card, err := DecodeCard(data)
	if err != nil {
		return nil, fmt.Errorf("contact %s: %v: %w", id, err, ErrMalformed)
	}
	c := &Contact{
		ID:          id,
		Name:        card.Value(vcard.FieldFormattedName),
		Email:       PrimaryEmail(card),
		PhoneNumber: PrimaryPhone(card),
	}
	bday := card.Value(vcard.FieldBirthday)
	if bday == "" {
		return nil, fmt.Errorf("contact %s: missing BDAY: %w", id, ErrMalformed)
	}
	dob, err := parseCardDate(bday)
	if err != nil {
		return nil, fmt.Errorf("contact %s: %v: %w", id, err, ErrMalformed)
	}
	c.SetDateOfBirth(dob)
	return c, nil
}

// ContactCard converts c to a vcard.Card.
func ContactCard(c *Contact) vcard.Card {
	card := make(vcard.Card)
	card.SetValue(vcard.FieldVersion, "4.0")
	card.SetValue(vcard.FieldUID, c.ID)
	card.SetValue(vcard.FieldFormattedName, c.Name)
	if c.Email != "" {
		card.Add(vcard.FieldEmail, &vcard.Field{Value: c.Email})
	}
	if c.PhoneNumber != "" {
		card.Add(vcard.FieldTelephone, &vcard.Field{
			Value:  c.PhoneNumber,
			Params: vcard.Params{vcard.ParamType: []string{"cell"}},
		})
	}
	if !c.DateOfBirth.IsZero() {
		card.SetValue(vcard.FieldBirthday, c.DateOfBirth.Format("20060102"))
	}
	return card
}

// PrimaryPhone returns the first mobile/cell phone, or the first phone if none.
func PrimaryPhone(card vcard.Card) string {
	fields := card[vcard.FieldTelephone]
	if len(fields) == 0 {
		return ""
	}
	for _, f := range fields {
		t := strings.ToLower(f.Params.Get(vcard.ParamType))
		if t == "cell" || t == "mobile" {
			return f.Value
		}
	}
	return fields[0].Value
}

// PrimaryEmail returns the first email address.
func PrimaryEmail(card vcard.Card) string {
	fields := card[vcard.FieldEmail]
	if len(fields) == 0 {
		return ""
	}
	return fields[0].Value
}

// EncodeCard serializes a vcard.Card to VCF bytes.
func EncodeCard(card vcard.Card) ([]byte, error) {
	var buf bytes.Buffer
	if err := vcard.NewEncoder(&buf).Encode(card); err != nil {
		return nil, fmt.Errorf("failed to encode vcard: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeCards serializes several contacts into one VCF stream.
func EncodeCards(cs []*Contact) ([]byte, error) {
	var buf bytes.Buffer
	enc := vcard.NewEncoder(&buf)
	for _, c := range cs {
		if err := enc.Encode(ContactCard(c)); err != nil {
			return nil, fmt.Errorf("failed to encode vcard for %s: %w", c.ID, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeCard deserializes VCF bytes into a vcard.Card.
func DecodeCard(data []byte) (vcard.Card, error) {
	card, err := vcard.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode vcard: %w", err)
	}
	return card, nil
}

// isCard reports whether data looks like a vCard rather than a line record:
// its first line is exactly BEGIN:VCARD and an END:VCARD follows.
func isCard(data []byte) bool {
	data = bytes.TrimLeft(data, " \t\r\n\ufeff")
	first, rest, _ := bytes.Cut(data, []byte("\n"))
	if !strings.EqualFold(string(bytes.TrimRight(first, " \t\r")), "BEGIN:VCARD") {
		return false
	}
	return bytes.Contains(bytes.ToUpper(rest), []byte("END:VCARD"))
}

func parseCardDate(s string) (time.Time, error) {
	s = strings.ReplaceAll(s, "-", "")
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid BDAY %q", s)
	}
	return t, nil
}
