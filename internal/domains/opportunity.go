package domains

import (
	"context"
	"strings"

	"github.com/hussain-magshield/magshield-data-pipeline/internal/export"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/lookup"
	"github.com/hussain-magshield/magshield-data-pipeline/pkg/types"
)

type product struct {
	Family string
	SKU    string
}

// invoiceRef is an invoice as seen from an opportunity product.
type invoiceRef struct {
	Number        string
	PurchaseOrder string
	Organisations [3]string
}

// billedTo reports whether the invoice names orgID as invoiced, site or
// channel organisation.
func (i invoiceRef) billedTo(orgID string) bool {
	if orgID == "" {
		return false
	}
	for _, id := range i.Organisations {
		if id == orgID {
			return true
		}
	}
	return false
}

type opportunityLookups struct {
	organisations *lookup.Table[string]
	users         *lookup.Table[string]
	pricebooks    *lookup.Table[string]
	products      *lookup.Table[product]
	stateReasons  *lookup.Table[string]
	stages        *lookup.Table[string]
	links         *lookup.Table[[]types.Link]
	lineProducts  *lookup.Table[[]string]
	invoicesBySKU *lookup.Table[[]invoiceRef]
}

type oppRow = export.RowContext[opportunityLookups]

const (
	colProductFamily = "Product Family"
	colProductID     = "Product ID"
	colInvoiceNumber = "Invoice Number"
	colPurchaseOrder = "Purchase Order"
)

// NewOpportunity exports opportunities with one row per product and
// matched invoice.
func NewOpportunity() *export.Spec[opportunityLookups] {
	return &export.Spec[opportunityLookups]{
		Domain:   Opportunity,
		File:     "Opportunities BPR.xlsx",
		Endpoint: "Opportunities",
		Params:   notBrief(),
		Prepare:  prepareOpportunity,
		Expand:   expandOpportunity,
		Columns: []export.Column[opportunityLookups]{
			export.Computed("Opportunity ID", func(rc oppRow) any {
				return rc.Record.ID("OPPORTUNITY_ID")
			}),
			export.Field[opportunityLookups]("Opportunity Name", "OPPORTUNITY_NAME"),
			export.Computed("Entity Owning Equipment", func(rc oppRow) any {
				return rc.Lookups.organisations.Value(rc.Fields.ID("Entity_Owning_Equipment__c"))
			}),
			export.Computed("Site Name", siteName),
			export.Computed("Channel Partner", func(rc oppRow) any {
				return rc.Lookups.organisations.Value(rc.Fields.ID("Channel_Owner__c"))
			}),
			export.Field[opportunityLookups]("Date Created", "DATE_CREATED_UTC"),
			export.Field[opportunityLookups]("Date Closed (Forecast)", "FORECAST_CLOSE_DATE"),
			export.Field[opportunityLookups]("Date Closed (Actual)", "ACTUAL_CLOSE_DATE"),
			export.Field[opportunityLookups]("Opportunity Value", "OPPORTUNITY_VALUE"),
			export.Field[opportunityLookups]("Bid Currency", "BID_CURRENCY"),
			export.Field[opportunityLookups]("Opportunity State", "OPPORTUNITY_STATE"),
			export.Computed("Current Pipeline Stage", func(rc oppRow) any {
				return rc.Lookups.stages.Value(rc.Record["STAGE_ID"])
			}),
			export.Field[opportunityLookups]("Expected Revenue", "OPPORTUNITY_VALUE"),
			export.Field[opportunityLookups]("Date of Last Activity", "LAST_ACTIVITY_DATE_UTC"),
			export.Field[opportunityLookups]("Date of Next Activity", "NEXT_ACTIVITY_DATE_UTC"),
			export.Field[opportunityLookups]("Probability", "PROBABILITY"),
			export.Computed("State Reason", func(rc oppRow) any {
				return rc.Lookups.stateReasons.Value(rc.Record["STATE_REASON_ID"])
			}),
			export.Computed("Won", func(rc oppRow) any {
				if rc.Record.Text("OPPORTUNITY_STATE") == "WON" {
					return "TRUE"
				}
				return "FALSE"
			}),
			export.Computed("Trial?", func(rc oppRow) any {
				trial := rc.Fields.Get("Trial__c")
				if trial.IsAbsent() {
					return "FALSE"
				}
				return strings.ToUpper(trial.Text())
			}),
			export.Custom[opportunityLookups]("Opportunity Product Quantity", "Quantity__c"),
			export.Computed("Pricebook Name", func(rc oppRow) any {
				return rc.Lookups.pricebooks.Value(rc.Record["PRICEBOOK_ID"])
			}),
			export.Computed("Opportunity Owner", func(rc oppRow) any {
				return rc.Lookups.users.Value(rc.Record["OWNER_USER_ID"])
			}),
			export.Sub[opportunityLookups](colProductFamily),
			export.Custom[opportunityLookups]("Archived Field - Product Type ", "Product_Type__c"),
			export.Sub[opportunityLookups](colProductID),
			export.Computed("Organization Name", func(rc oppRow) any {
				return rc.Lookups.organisations.Value(rc.Record["ORGANISATION_ID"])
			}),
			export.Computed("Owner Name", func(rc oppRow) any {
				return ownerName(rc.Lookups.users.Value(rc.Record["OWNER_USER_ID"]))
			}),
			export.Custom[opportunityLookups]("Channel Type", "Channel_Type__c"),
			export.Custom[opportunityLookups]("GAP Strategy", "GAP_Strategy__c"),
			export.Custom[opportunityLookups]("GAP Current State", "Current_State__c"),
			export.Sub[opportunityLookups](colInvoiceNumber),
			export.Sub[opportunityLookups](colPurchaseOrder),
		},
	}
}

// siteName joins the names of the opportunity's linked organisations,
// other than its own, with " and ".
func siteName(rc oppRow) any {
	l := rc.Lookups
	mainOrg := rc.Record.ID("ORGANISATION_ID")
	links := l.links.Value(rc.Record.ID("OPPORTUNITY_ID"))

	var names []string
	for _, id := range types.LinkedIDs(links, types.ObjectOrganisation, mainOrg) {
		if name := l.organisations.Value(id); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, " and ")
}

// expandOpportunity emits one row per product. A product carries one row
// per invoice billed for its SKU to the opportunity's organisation; an
// (invoice, PO) pair already emitted for the opportunity is not repeated.
// A product with no invoice billed to the organisation, or an opportunity
// without products, falls back to the opportunity's own invoice and PO
// fields. A product whose billed invoices were all emitted already keeps
// one row with the invoice columns blank.
func expandOpportunity(rc oppRow) []export.Row {
	l := rc.Lookups
	fallbackInvoice := rc.Fields.Get("Invoice_Number__c")
	fallbackPO := rc.Fields.Get("Purchase_Order__c")

	row := func(pid, family string, invoice, po any) export.Row {
		return export.Row{
			colProductID:     pid,
			colProductFamily: family,
			colInvoiceNumber: invoice,
			colPurchaseOrder: po,
		}
	}

	productIDs := l.lineProducts.Value(rc.Record.ID("OPPORTUNITY_ID"))
	if len(productIDs) == 0 {
		return []export.Row{row("", "", fallbackInvoice, fallbackPO)}
	}

	orgID := rc.Record.ID("ORGANISATION_ID")
	seen := make(map[[2]string]bool)
	var rows []export.Row
	for _, pid := range productIDs {
		p := l.products.Value(pid)
		billed, matched := false, false
		if p.SKU != "" {
			for _, inv := range l.invoicesBySKU.Value(p.SKU) {
				if !inv.billedTo(orgID) {
					continue
				}
				billed = true
				key := [2]string{inv.Number, inv.PurchaseOrder}
				if seen[key] {
					continue
				}
				seen[key] = true
				matched = true
				rows = append(rows, row(pid, p.Family, inv.Number, inv.PurchaseOrder))
			}
		}
		switch {
		case !billed:
			rows = append(rows, row(pid, p.Family, fallbackInvoice, fallbackPO))
		case !matched:
			rows = append(rows, row(pid, p.Family, "", ""))
		}
	}
	return rows
}

func prepareOpportunity(ctx context.Context, src lookup.Source, _ []types.Record) (opportunityLookups, error) {
	var (
		l         opportunityLookups
		entries   *lookup.Table[string]
		lineItems []types.Record
	)

	named := func(endpoint, idField, nameField string, dst **lookup.Table[string]) lookup.Job {
		return func(ctx context.Context) error {
			*dst = lookup.Full(ctx, src, endpoint, idField, nil, func(r types.Record) string { return r.Text(nameField) })
			return nil
		}
	}

	err := lookup.Build(ctx, lookupWorkers,
		func(ctx context.Context) error {
			l.organisations = orgsTable(ctx, src)
			return nil
		},
		func(ctx context.Context) error {
			l.users = usersTable(ctx, src)
			return nil
		},
		named("Pricebook", "PRICEBOOK_ID", "NAME", &l.pricebooks),
		named("OpportunityStateReasons", "STATE_REASON_ID", "STATE_REASON", &l.stateReasons),
		named("PipelineStages", "STAGE_ID", "STAGE_NAME", &l.stages),
		func(ctx context.Context) error {
			entries = lookup.Full(ctx, src, "PricebookEntry", "PRICEBOOK_ENTRY_ID", nil,
				func(r types.Record) string { return r.ID("PRODUCT_ID") })
			return nil
		},
		func(ctx context.Context) error {
			l.products = lookup.Full(ctx, src, "Product", "PRODUCT_ID", nil, func(r types.Record) product {
				return product{Family: r.Text("PRODUCT_FAMILY"), SKU: strings.TrimSpace(r.Text("PRODUCT_SKU"))}
			})
			return nil
		},
		func(ctx context.Context) error {
			links := src.FetchAll(ctx, "OpportunityLinks", nil)
			l.links = lookup.Grouped(links,
				func(r types.Record) string { return r.ID("OBJECT_ID") },
				func(r types.Record) (types.Link, bool) {
					return types.LinkFromRecord(r), r.Text("OBJECT_NAME") == types.ObjectOpportunity
				})
			return nil
		},
		func(ctx context.Context) error {
			lineItems = src.FetchAll(ctx, "OpportunityLineItem", nil)
			return nil
		},
		func(ctx context.Context) error {
			invoices := src.FetchAll(ctx, "Invoice_History__c", notBrief())
			l.invoicesBySKU = lookup.Grouped(invoices,
				func(r types.Record) string { return r.Fields().Text("Invoiced_Item__c") },
				func(r types.Record) (invoiceRef, bool) {
					cf := r.Fields()
					number := cf.Text("Invoice_Num__c")
					if number == "" {
						number = r.Text("RECORD_NAME")
					}
					return invoiceRef{
						Number:        number,
						PurchaseOrder: cf.Text("PO_Number__c"),
						Organisations: [3]string{
							cf.ID("Invoiced_Organization__c"),
							cf.ID("Site_Name_Invoice__c"),
							cf.ID("Channel_Partner_Invoiced__c"),
						},
					}, true
				})
			return nil
		},
	)
	if err != nil {
		return l, err
	}

	// line items reach products through their pricebook entry
	l.lineProducts = lookup.Grouped(lineItems,
		func(r types.Record) string { return r.ID("OPPORTUNITY_ID") },
		func(r types.Record) (string, bool) {
			pid := entries.Value(r["PRICEBOOK_ENTRY_ID"])
			return pid, pid != ""
		})
	return l, nil
}
