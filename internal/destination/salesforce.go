package destination

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/contact-migrator/internal/resilience"
	sfpkg "github.com/sells-group/contact-migrator/pkg/salesforce"
)

// Optional Contact custom fields. They are written only when the org's
// Contact object has them.
const (
	sfTagsField     = "Tags__c"
	sfLinkedInField = "LinkedIn__c"
)

// DefaultLastName fills Contact.LastName, which Salesforce requires, when
// the source record has none.
const DefaultLastName = "Unknown"

// SalesforceOptions configures the Salesforce destination.
type SalesforceOptions struct {
	// LinkAccount sets AccountId from an Account whose name equals the
	// contact's company. Accounts are never created.
	LinkAccount bool
	// Retry wraps the SOQL lookup. A zero MaxAttempts queries once.
	Retry resilience.RetryConfig
}

// Salesforce writes contacts to Salesforce.
type Salesforce struct {
	client sfpkg.Client
	opts   SalesforceOptions
	lookup *Lookup

	describeOnce sync.Once
	hasTags      bool
	hasLinkedIn  bool

	mu        sync.Mutex
	accounts  map[string]string
	resolving singleflight.Group
}

// NewSalesforce creates a Salesforce destination.
func NewSalesforce(client sfpkg.Client, opts SalesforceOptions) *Salesforce {
	s := &Salesforce{
		client:   client,
		opts:     opts,
		accounts: make(map[string]string),
	}
	s.lookup = NewLookup(Strategy{Name: "soql", Find: s.findSOQL})
	if opts.Retry.MaxAttempts > 0 {
		s.lookup.WithRetry(opts.Retry)
	}
	return s
}

// Name implements Destination.
func (s *Salesforce) Name() string { return "salesforce" }

// describe checks once which optional custom fields exist.
func (s *Salesforce) describe(ctx context.Context) {
	s.describeOnce.Do(func() {
		desc, err := s.client.DescribeSObject(ctx, "Contact")
		if err != nil || desc == nil {
			zap.L().Warn("salesforce: describe Contact failed, custom fields disabled", zap.Error(err))
			return
		}
		s.hasTags = desc.HasField(sfTagsField)
		s.hasLinkedIn = desc.HasField(sfLinkedInField)
	})
}

// FindByEmail implements Destination.
func (s *Salesforce) FindByEmail(ctx context.Context, email string) (*Existing, error) {
	return s.lookup.Find(ctx, email)
}

func (s *Salesforce) findSOQL(ctx context.Context, email string) (*Existing, error) {
	s.describe(ctx)

	var extra []string
	if s.hasTags {
		extra = append(extra, sfTagsField)
	}
	c, err := sfpkg.FindContactByEmail(ctx, s.client, email, extra...)
	if err != nil || c == nil {
		return nil, err
	}
	return &Existing{ID: c.ID, Email: c.Email, Tags: splitSFTags(c.Tags)}, nil
}

// Create implements Destination.
func (s *Salesforce) Create(ctx context.Context, p Payload) (string, error) {
	fields := s.fields(ctx, p)
	if _, ok := fields["LastName"]; !ok {
		fields["LastName"] = DefaultLastName
	}
	return sfpkg.CreateContact(ctx, s.client, fields)
}

// Update implements Destination.
func (s *Salesforce) Update(ctx context.Context, id string, p Payload) (string, error) {
	if err := sfpkg.UpdateContact(ctx, s.client, id, s.fields(ctx, p)); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Salesforce) fields(ctx context.Context, p Payload) map[string]any {
	s.describe(ctx)

	fields := make(map[string]any)
	set := func(name, value string) {
		if value != "" {
			fields[name] = value
		}
	}
	set("Email", p.Email)
	set("FirstName", p.FirstName)
	set("LastName", p.LastName)
	set("MailingCity", p.Location)
	set("Phone", p.Phone)
	if s.hasLinkedIn {
		set(sfLinkedInField, p.LinkedIn)
	}
	if s.hasTags && len(p.Tags) > 0 {
		fields[sfTagsField] = strings.Join(p.Tags, ";")
	}
	if s.opts.LinkAccount && p.Company != "" {
		set("AccountId", s.accountID(ctx, p.Company))
	}
	return fields
}

func (s *Salesforce) accountID(ctx context.Context, name string) string {
	key := strings.ToLower(name)

	s.mu.Lock()
	id, ok := s.accounts[key]
	s.mu.Unlock()
	if ok {
		return id
	}

	v, _, _ := s.resolving.Do(key, func() (any, error) {
		s.mu.Lock()
		id, ok := s.accounts[key]
		s.mu.Unlock()
		if ok {
			return id, nil
		}

		acct, err := sfpkg.FindAccountByName(ctx, s.client, name)
		if err != nil {
			zap.L().Warn("salesforce: account lookup failed", zap.String("company", name), zap.Error(err))
			return "", nil
		}
		if acct != nil {
			id = acct.ID
		}
		s.mu.Lock()
		s.accounts[key] = id
		s.mu.Unlock()
		return id, nil
	})
	return v.(string)
}

// splitSFTags parses a multi-select picklist value.
func splitSFTags(v string) []string {
	var tags []string
	for _, t := range strings.Split(v, ";") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
