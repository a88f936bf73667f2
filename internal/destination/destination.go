// Package destination performs idempotent create-or-update writes of
// normalized contacts against a CRM.
package destination

import (
	"context"
	"sort"
	"strings"

	"github.com/sells-group/contact-migrator/internal/model"
)

// Destination is a CRM that can find, create and update people by email.
type Destination interface {
	// Name identifies the destination in logs and breaker state.
	Name() string
	// FindByEmail returns the existing record for email, nil when no
	// lookup found one, or a *LookupError when every lookup failed.
	FindByEmail(ctx context.Context, email string) (*Existing, error)
	Create(ctx context.Context, p Payload) (string, error)
	Update(ctx context.Context, id string, p Payload) (string, error)
}

// Existing is a record already present in the destination.
type Existing struct {
	ID    string
	Email string
	Tags  []string
}

// Payload is the destination-neutral write body. Empty strings and a nil
// Tags slice mean "leave unchanged" and are never sent.
type Payload struct {
	Email     string
	FirstName string
	LastName  string
	Location  string
	Company   string
	Phone     string
	LinkedIn  string
	Source    string
	Tags      []string
}

// BuildPayload builds the write body for c. When existing is set the
// existing tags are merged with the incoming ones.
func BuildPayload(c model.Contact, existing *Existing) Payload {
	source := c.Source
	if source == "" {
		source = model.SourceSendGrid
	}

	var current []string
	if existing != nil {
		current = existing.Tags
	}

	return Payload{
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Location:  c.Location,
		Company:   c.Company,
		Phone:     c.Phone,
		LinkedIn:  c.LinkedIn,
		Source:    source,
		Tags:      MergeTags(current, c.Tags),
	}
}

// MergeTags returns the sorted union of both tag sets with blanks removed,
// or nil when the union is empty.
func MergeTags(existing, incoming []string) []string {
	set := make(map[string]struct{}, len(existing)+len(incoming))
	for _, list := range [][]string{existing, incoming} {
		for _, t := range list {
			if t = strings.TrimSpace(t); t != "" {
				set[t] = struct{}{}
			}
		}
	}
	if len(set) == 0 {
		return nil
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
