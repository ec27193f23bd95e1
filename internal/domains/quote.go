package domains

import (
	"context"

	"github.com/hussain-magshield/magshield-data-pipeline/internal/export"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/lookup"
	"github.com/hussain-magshield/magshield-data-pipeline/pkg/types"
)

type quoteLookups struct {
	opportunities *lookup.Table[string]
	organisations *lookup.Table[string]
	contacts      *lookup.Table[string]
}

type quoteRow = export.RowContext[quoteLookups]

// NewQuote exports quotations with their opportunity, organisation and
// sales person names resolved through targeted lookups.
func NewQuote() *export.Spec[quoteLookups] {
	return &export.Spec[quoteLookups]{
		Domain:   Quote,
		File:     "Quotes.xlsx",
		Endpoint: "Quotation",
		Params:   notBrief(),
		Prepare:  prepareQuote,
		Columns: []export.Column[quoteLookups]{
			export.Field[quoteLookups]("Record ID", "QUOTE_ID"),
			export.Field[quoteLookups]("Quote Number", "QUOTATION_NUMBER"),
			export.Field[quoteLookups]("Status", "QUOTE_STATUS"),
			export.Field[quoteLookups]("Quote Name", "QUOTATION_NAME"),
			export.Field[quoteLookups]("Subtotal", "SUBTOTAL"),
			export.Field[quoteLookups]("Total Price", "TOTAL_PRICE"),
			export.Field[quoteLookups]("Expiration Date", "QUOTATION_EXPIRATION_DATE"),
			export.Custom[quoteLookups]("GST %", "GST_Percentage__c"),
			export.Custom[quoteLookups]("Tax", "Tax__c"),
			export.Computed("Grand Total", func(rc quoteRow) any {
				return rc.Fields.Get("Grand_Total__c").Or(rc.Record.Value("GRAND_TOTAL"))
			}),
			export.Custom[quoteLookups]("Trade Tariff", "Trade_Tariff__c"),
			export.Custom[quoteLookups]("Grand Total w/ Tariff", "Grand_Total_Tariff__c"),
			export.Custom[quoteLookups]("MagShield Selling Entity", "MagShield_Selling_Entity__c"),
			export.Computed("Sales Person Id", func(rc quoteRow) any {
				return rc.Fields.Text("Sales_Person__c")
			}),
			export.Computed("Sales Person", func(rc quoteRow) any {
				return rc.Lookups.contacts.Value(rc.Fields.ID("Sales_Person__c"))
			}),
			export.Field[quoteLookups]("Billing Country", "ADDRESS_BILLING_COUNTRY"),
			export.Field[quoteLookups]("Currency", "QUOTATION_CURRENCY_CODE"),
			export.Field[quoteLookups]("Discount", "DISCOUNT"),
			export.Computed("Organization Name", func(rc quoteRow) any {
				if name := rc.Record.Text("ORGANISATION_NAME"); name != "" {
					return name
				}
				return rc.Lookups.organisations.Value(rc.Record["ORGANISATION_ID"])
			}),
			export.Field[quoteLookups]("Record ID_1", "ORGANISATION_ID"),
			export.Field[quoteLookups]("Date Created", "DATE_CREATED_UTC").As(export.DateTime12h),
			export.Field[quoteLookups]("Date Updated", "DATE_UPDATED_UTC").As(export.DateTime12h),
			export.Computed("Opportunity Name", func(rc quoteRow) any {
				if name := rc.Record.Text("OPPORTUNITY_NAME"); name != "" {
					return name
				}
				return rc.Lookups.opportunities.Value(rc.Record["OPPORTUNITY_ID"])
			}),
			export.Custom[quoteLookups]("Shipping_Terms__c", "Shipping_Terms__c"),
			export.Field[quoteLookups]("ADDRESS_SHIPPING_COUNTRY", "ADDRESS_SHIPPING_COUNTRY"),
		},
	}
}

func prepareQuote(ctx context.Context, src lookup.Source, quotes []types.Record) (quoteLookups, error) {
	var l quoteLookups
	salesPeople := lookup.Collect(quotes, func(r types.Record) []string {
		return []string{r.Fields().ID("Sales_Person__c")}
	})

	err := lookup.Build(ctx, lookupWorkers,
		func(ctx context.Context) error {
			l.opportunities = lookup.Targeted(ctx, src, "Opportunities", "OPPORTUNITY_ID", ids(quotes, "OPPORTUNITY_ID"),
				func(r types.Record) string { return r.Text("OPPORTUNITY_NAME") })
			return nil
		},
		func(ctx context.Context) error {
			l.organisations = lookup.Targeted(ctx, src, "Organisations", "ORGANISATION_ID", ids(quotes, "ORGANISATION_ID"), orgName)
			return nil
		},
		func(ctx context.Context) error {
			l.contacts = lookup.Targeted(ctx, src, "Contacts", "CONTACT_ID", salesPeople, personName)
			return nil
		},
	)
	return l, err
}
