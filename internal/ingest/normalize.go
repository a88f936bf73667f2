// Package ingest turns exported contact files into normalized, deduplicated
// contact records.
package ingest

import (
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/sells-group/contact-migrator/internal/model"
)

// Row is one parsed export line keyed by header name.
type Row = map[string]string

var (
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	unsafeRe   = regexp.MustCompile(`[^\w\s@.-]`)
	tagSplitRe = regexp.MustCompile(`[|,;]+`)
)

// Header variants, in priority order. The first non-empty value wins.
var (
	emailKeys     = []string{"email", "Email", "EMAIL", "email_address", "Email Address"}
	fullNameKeys  = []string{"name", "full_name", "Name", "Full Name"}
	firstNameKeys = []string{"first_name", "firstName", "FirstName", "First Name"}
	lastNameKeys  = []string{"last_name", "lastName", "LastName", "Last Name"}
	locationKeys  = []string{"city", "City", "location", "Location"}
	companyKeys   = []string{"company", "Company", "organization", "Organization"}
	phoneKeys     = []string{"phone", "Phone", "phone_number", "Phone Number"}
	linkedInKeys  = []string{"linkedin", "LinkedIn", "linkedin_url", "LinkedIn URL"}
	tagKeys       = []string{"tags", "lists", "segments", "Tags", "Lists", "Segments"}
)

// Normalize maps a raw row to a contact. It returns false when the row has
// no usable email; such rows are dropped, never treated as errors.
func Normalize(row Row) (model.Contact, bool) {
	email := strings.ToLower(pick(row, emailKeys))
	if email == "" || !ValidEmail(email) {
		return model.Contact{}, false
	}

	first, last := pick(row, firstNameKeys), pick(row, lastNameKeys)
	if full := pick(row, fullNameKeys); full != "" {
		first, last = splitName(full)
	}

	return model.Contact{
		Email:     email,
		FirstName: Sanitize(first),
		LastName:  Sanitize(last),
		Location:  Sanitize(pick(row, locationKeys)),
		Company:   Sanitize(pick(row, companyKeys)),
		Phone:     Sanitize(pick(row, phoneKeys)),
		LinkedIn:  pick(row, linkedInKeys),
		Tags:      SplitTags(pick(row, tagKeys)),
		Source:    model.SourceSendGrid,
	}, true
}

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

// Sanitize strips characters outside word characters, whitespace, '@', '.'
// and '-', then trims.
func Sanitize(s string) string {
	return strings.TrimSpace(unsafeRe.ReplaceAllString(s, ""))
}

// SplitTags splits on any run of '|', ',' or ';' and drops empty entries.
func SplitTags(s string) []string {
	var tags []string
	for _, t := range tagSplitRe.Split(s, -1) {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Dedupe keeps the first record for each email, preserving order.
func Dedupe(contacts []model.Contact) []model.Contact {
	seen := make(map[string]struct{}, len(contacts))
	out := make([]model.Contact, 0, len(contacts))
	for _, c := range contacts {
		if _, dup := seen[c.Email]; dup {
			continue
		}
		seen[c.Email] = struct{}{}
		out = append(out, c)
	}
	return out
}

// NormalizeResult reports what NormalizeAll kept and dropped.
type NormalizeResult struct {
	Contacts   []model.Contact
	Invalid    int
	Duplicates int
}

// Dropped is the total number of rows that did not become contacts.
func (r NormalizeResult) Dropped() int {
	return r.Invalid + r.Duplicates
}

// NormalizeAll normalizes every row and removes duplicate emails.
func NormalizeAll(rows []Row) NormalizeResult {
	log := zap.L().With(zap.String("component", "ingest"))

	contacts := make([]model.Contact, 0, len(rows))
	var invalid int
	for _, row := range rows {
		c, ok := Normalize(row)
		if !ok {
			invalid++
			if raw := pick(row, emailKeys); raw != "" {
				log.Warn("invalid email format", zap.String("email", raw))
			}
			continue
		}
		contacts = append(contacts, c)
	}

	unique := Dedupe(contacts)
	return NormalizeResult{
		Contacts:   unique,
		Invalid:    invalid,
		Duplicates: len(contacts) - len(unique),
	}
}

func pick(row Row, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(row[k]); v != "" {
			return v
		}
	}
	return ""
}

func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	i := strings.IndexFunc(full, unicode.IsSpace)
	if i < 0 {
		return full, ""
	}
	return full[:i], strings.TrimSpace(full[i:])
}
