// Package domains declares the exported CRM collections as export specs:
// which endpoint is the primary collection, which lookups it needs and how
// every output column is resolved.
package domains

import (
	"context"
	"net/url"
	"strings"

	"github.com/hussain-magshield/magshield-data-pipeline/internal/export"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/lookup"
	"github.com/hussain-magshield/magshield-data-pipeline/pkg/types"
)

// Domain names.
const (
	Quote        = "quote"
	Organisation = "organisation"
	Task         = "task"
	Opportunity  = "opportunity"
	Equipment    = "equipment"
	Invoice      = "invoice"
	Users        = "users"
)

// lookupWorkers bounds concurrent lookup builds within one export.
const lookupWorkers = 10

// Exporters returns every join domain in a fixed order.
func Exporters() []export.Exporter {
	return []export.Exporter{
		NewQuote(),
		NewOrganisation(),
		NewTask(),
		NewOpportunity(),
		NewEquipment(),
		NewInvoice(),
		NewUsers(),
	}
}

func notBrief() url.Values {
	return url.Values{"brief": {"false"}}
}

// personName joins first and last name.
func personName(r types.Record) string {
	return strings.TrimSpace(r.Text("FIRST_NAME") + " " + r.Text("LAST_NAME"))
}

// userDisplay renders a user as "ID;First Last".
func userDisplay(r types.Record) string {
	return r.ID("USER_ID") + ";" + personName(r)
}

// ownerName returns the name part of a "ID;First Last" user display.
func ownerName(display string) string {
	_, name, ok := strings.Cut(display, ";")
	if !ok {
		return ""
	}
	return name
}

// ownerSite renders a "ID;First Last" user display as "First Last||ID||User".
func ownerSite(display string) string {
	if display == "" {
		return ""
	}
	parts := strings.Split(display, ";")
	if len(parts) != 2 {
		return display
	}
	return parts[1] + "||" + parts[0] + "||User"
}

func orgName(r types.Record) string { return r.Text("ORGANISATION_NAME") }

func usersTable(ctx context.Context, src lookup.Source) *lookup.Table[string] {
	return lookup.Full(ctx, src, "Users", "USER_ID", nil, userDisplay)
}

func orgsTable(ctx context.Context, src lookup.Source) *lookup.Table[string] {
	return lookup.Full(ctx, src, "Organisations", "ORGANISATION_ID", nil, orgName)
}

// ids collects the distinct values of a top-level field.
func ids(records []types.Record, field string) []string {
	return lookup.Collect(records, func(r types.Record) []string {
		return []string{r.ID(field)}
	})
}
