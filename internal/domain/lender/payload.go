package lender

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExternalID is the Flex lender id. Flex sends it as a string or a number.
type ExternalID string

func (e *ExternalID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = ExternalID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number")
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("id must be a string or number")
	}
	*e = ExternalID(n.String())
	return nil
}

// Ptr returns nil for an empty id.
func (e ExternalID) Ptr() *string {
	if e == "" {
		return nil
	}
	s := string(e)
	return &s
}

// Payload is one lender as sent by Flex.
type Payload struct {
	ExternalID ExternalID `json:"id,omitempty"`
	Name       string     `json:"name"`
	Fields
}

func (p Payload) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

// DecodePayload decodes raw strictly: keys outside the known schema are
// rejected instead of passed through.
func DecodePayload(raw []byte) (Payload, error) {
	var p Payload
	d := json.NewDecoder(bytes.NewReader(raw))
	d.DisallowUnknownFields()
	d.UseNumber()
	if err := d.Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	p.Name = strings.TrimSpace(p.Name)
	return p, nil
}
