package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Contact represents a Salesforce Contact record.
type Contact struct {
	ID          string `json:"Id" salesforce:"Id"`
	Email       string `json:"Email" salesforce:"Email"`
	FirstName   string `json:"FirstName" salesforce:"FirstName"`
	LastName    string `json:"LastName" salesforce:"LastName"`
	MailingCity string `json:"MailingCity" salesforce:"MailingCity"`
	Phone       string `json:"Phone" salesforce:"Phone"`
	AccountID   string `json:"AccountId" salesforce:"AccountId"`
	Description string `json:"Description" salesforce:"Description"`
	LinkedIn    string `json:"LinkedIn__c,omitempty" salesforce:"LinkedIn__c"`
	Tags        string `json:"Tags__c,omitempty" salesforce:"Tags__c"`
}

// Account represents the subset of a Salesforce Account used for linkage.
type Account struct {
	ID   string `json:"Id" salesforce:"Id"`
	Name string `json:"Name" salesforce:"Name"`
}

// contactFields are the SOQL fields selected for Contact queries.
var contactFields = []string{
	"Id", "Email", "FirstName", "LastName", "MailingCity", "Phone", "AccountId", "Description",
}

// FindContactByEmail queries Salesforce for a Contact with the given email.
// extraFields adds optional custom fields (such as Tags__c) to the select
// list; callers should only pass fields the org actually has.
// Returns nil if no contact is found.
func FindContactByEmail(ctx context.Context, c Client, email string, extraFields ...string) (*Contact, error) {
	fields := append(append([]string{}, contactFields...), extraFields...)
	soql := fmt.Sprintf(
		"SELECT %s FROM Contact WHERE Email = '%s' ORDER BY CreatedDate LIMIT 1",
		strings.Join(fields, ", "),
		escapeSoql(email),
	)

	var contacts []Contact
	if err := c.Query(ctx, soql, &contacts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find contact by email %s", email))
	}
	if len(contacts) == 0 {
		return nil, nil
	}
	return &contacts[0], nil
}

// FindAccountByName queries Salesforce for an Account with the given name.
// Returns nil if no account is found.
func FindAccountByName(ctx context.Context, c Client, name string) (*Account, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Name FROM Account WHERE Name = '%s' LIMIT 1",
		escapeSoql(name),
	)

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find account by name %s", name))
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// escapeSoql escapes backslashes and single quotes in SOQL string literals.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
