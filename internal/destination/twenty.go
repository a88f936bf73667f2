package destination

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/contact-migrator/internal/resilience"
	"github.com/sells-group/contact-migrator/pkg/twenty"
)

// TwentyOptions configures the Twenty destination.
type TwentyOptions struct {
	// LinkCompanies resolves the company name to a company record (creating
	// one when missing) and links the person to it instead of sending the
	// name as text.
	LinkCompanies bool
	// Retry wraps each lookup strategy. A zero MaxAttempts calls each
	// strategy once.
	Retry resilience.RetryConfig
}

// Twenty writes people to Twenty CRM.
type Twenty struct {
	client twenty.Client
	opts   TwentyOptions
	lookup *Lookup

	mu        sync.Mutex
	companies map[string]string
	resolving singleflight.Group
}

// NewTwenty creates a Twenty destination. Lookups try REST search first and
// GraphQL second.
func NewTwenty(client twenty.Client, opts TwentyOptions) *Twenty {
	t := &Twenty{
		client:    client,
		opts:      opts,
		companies: make(map[string]string),
	}
	t.lookup = NewLookup(
		Strategy{Name: "rest", Find: t.findREST},
		Strategy{Name: "graphql", Find: t.findGraphQL},
	)
	if opts.Retry.MaxAttempts > 0 {
		t.lookup.WithRetry(opts.Retry)
	}
	return t
}

// Name implements Destination.
func (t *Twenty) Name() string { return "twenty" }

// FindByEmail implements Destination.
func (t *Twenty) FindByEmail(ctx context.Context, email string) (*Existing, error) {
	return t.lookup.Find(ctx, email)
}

func (t *Twenty) findREST(ctx context.Context, email string) (*Existing, error) {
	people, err := t.client.SearchPeople(ctx, email)
	if err != nil {
		return nil, err
	}
	for _, p := range people {
		if strings.EqualFold(strings.TrimSpace(p.PrimaryEmail()), email) {
			return personToExisting(p), nil
		}
	}
	return nil, nil
}

func (t *Twenty) findGraphQL(ctx context.Context, email string) (*Existing, error) {
	p, err := t.client.FindPersonByEmail(ctx, email)
	if err != nil || p == nil {
		return nil, err
	}
	return personToExisting(*p), nil
}

func personToExisting(p twenty.Person) *Existing {
	return &Existing{ID: p.ID, Email: p.PrimaryEmail(), Tags: p.Tags}
}

// Create implements Destination.
func (t *Twenty) Create(ctx context.Context, p Payload) (string, error) {
	return t.client.CreatePerson(ctx, t.personInput(ctx, p))
}

// Update implements Destination.
func (t *Twenty) Update(ctx context.Context, id string, p Payload) (string, error) {
	return t.client.UpdatePerson(ctx, id, t.personInput(ctx, p))
}

func (t *Twenty) personInput(ctx context.Context, p Payload) twenty.PersonInput {
	in := twenty.PersonInput{
		City:   p.Location,
		Source: p.Source,
		Tags:   p.Tags,
	}
	if p.Email != "" {
		in.Emails = &twenty.Emails{PrimaryEmail: p.Email}
	}
	if p.FirstName != "" || p.LastName != "" {
		in.Name = &twenty.FullName{FirstName: p.FirstName, LastName: p.LastName}
	}
	if p.Phone != "" {
		in.Phones = &twenty.Phones{PrimaryPhoneNumber: p.Phone}
	}
	if p.LinkedIn != "" {
		in.LinkedinLink = &twenty.Links{PrimaryLinkURL: p.LinkedIn}
	}

	if p.Company != "" {
		if !t.opts.LinkCompanies {
			in.Company = p.Company
		} else if id := t.companyID(ctx, p.Company); id != "" {
			in.CompanyID = id
		} else {
			in.Company = p.Company
		}
	}
	return in
}

// companyID resolves a company name to an id, creating the company when
// search finds no exact match. Failures are logged and yield "". Concurrent
// calls for the same name share one resolution.
func (t *Twenty) companyID(ctx context.Context, name string) string {
	key := strings.ToLower(name)

	t.mu.Lock()
	id, ok := t.companies[key]
	t.mu.Unlock()
	if ok {
		return id
	}

	v, _, _ := t.resolving.Do(key, func() (any, error) {
		t.mu.Lock()
		id, ok := t.companies[key]
		t.mu.Unlock()
		if ok {
			return id, nil
		}

		id = t.resolveCompany(ctx, name)
		if id != "" {
			t.mu.Lock()
			t.companies[key] = id
			t.mu.Unlock()
		}
		return id, nil
	})
	return v.(string)
}

func (t *Twenty) resolveCompany(ctx context.Context, name string) string {
	log := zap.L().With(zap.String("company", name))
	companies, err := t.client.SearchCompanies(ctx, name)
	if err != nil {
		log.Warn("company search failed", zap.Error(err))
		return ""
	}
	for _, c := range companies {
		if strings.EqualFold(c.Name, name) {
			return c.ID
		}
	}

	id, err := t.client.CreateCompany(ctx, name)
	if err != nil {
		log.Warn("company create failed", zap.Error(err))
		return ""
	}
	return id
}
