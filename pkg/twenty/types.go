package twenty

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Person is a person record as returned by search endpoints. Older
// workspaces return a flat email and name; newer ones use composite fields.
type Person struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Emails    *Emails   `json:"emails,omitempty"`
	Name      *FullName `json:"name,omitempty"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

// PrimaryEmail returns the person's email from whichever field is set.
func (p Person) PrimaryEmail() string {
	if p.Emails != nil && p.Emails.PrimaryEmail != "" {
		return p.Emails.PrimaryEmail
	}
	return p.Email
}

// Company is a company record as returned by search endpoints.
type Company struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FullName is Twenty's composite name field.
type FullName struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// Emails is Twenty's composite emails field.
type Emails struct {
	PrimaryEmail string `json:"primaryEmail"`
}

// Phones is Twenty's composite phones field.
type Phones struct {
	PrimaryPhoneNumber string `json:"primaryPhoneNumber"`
}

// Links is Twenty's composite link field.
type Links struct {
	PrimaryLinkURL string `json:"primaryLinkUrl"`
}

// PersonInput is the body for person create and update calls. Nil and
// empty fields are omitted so an update never blanks existing data.
type PersonInput struct {
	Name         *FullName `json:"name,omitempty"`
	Emails       *Emails   `json:"emails,omitempty"`
	City         string    `json:"city,omitempty"`
	Phones       *Phones   `json:"phones,omitempty"`
	LinkedinLink *Links    `json:"linkedinLink,omitempty"`
	CompanyID    string    `json:"companyId,omitempty"`
	Company      string    `json:"company,omitempty"`
	Source       string    `json:"source,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
}

// decodeList accepts a bare array, {"items": [...]}, {"data": [...]} or
// {"data": {"<key>": [...]}}.
func decodeList(body []byte, key string, out any) error {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(body, out)
	}

	var envelope struct {
		Items json.RawMessage `json:"items"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return eris.Wrap(err, "unmarshal envelope")
	}
	if len(envelope.Items) > 0 {
		return json.Unmarshal(envelope.Items, out)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if strings.HasPrefix(strings.TrimSpace(string(envelope.Data)), "[") {
		return json.Unmarshal(envelope.Data, out)
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return eris.Wrap(err, "unmarshal data")
	}
	if raw, ok := data[key]; ok {
		return json.Unmarshal(raw, out)
	}
	return nil
}

// extractID reads the record id from "id", "data.id", or a single nested
// "data.<mutation>.id" object such as data.createPerson.id.
func extractID(body []byte) string {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return ""
	}
	if id := stringField(top, "id"); id != "" {
		return id
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(top["data"], &data); err != nil {
		return ""
	}
	if id := stringField(data, "id"); id != "" {
		return id
	}
	for _, raw := range data {
		var nested map[string]json.RawMessage
		if json.Unmarshal(raw, &nested) == nil {
			if id := stringField(nested, "id"); id != "" {
				return id
			}
		}
	}
	return ""
}

func stringField(m map[string]json.RawMessage, key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}
