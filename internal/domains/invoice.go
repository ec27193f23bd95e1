package domains

import (
	"context"

	"github.com/hussain-magshield/magshield-data-pipeline/internal/export"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/lookup"
	"github.com/hussain-magshield/magshield-data-pipeline/pkg/types"
)

type orgProfile struct {
	Name   string
	Type   string
	Region string
}

type invoiceLookups struct {
	users         *lookup.Table[string]
	organisations *lookup.Table[orgProfile]
}

type invoiceRow = export.RowContext[invoiceLookups]

func orgProfileOf(r types.Record) orgProfile {
	cf := r.Fields()
	return orgProfile{
		Name:   r.Text("ORGANISATION_NAME"),
		Type:   cf.Text("Organization_Type__c"),
		Region: cf.Text("Region__c"),
	}
}

// NewInvoice exports invoice history with the invoiced, site and channel
// partner organisation profiles.
func NewInvoice() *export.Spec[invoiceLookups] {
	org := func(name, field string, pick func(orgProfile) string) export.Column[invoiceLookups] {
		return export.Computed(name, func(rc invoiceRow) any {
			return pick(rc.Lookups.organisations.Value(rc.Fields.ID(field)))
		})
	}
	pickName := func(p orgProfile) string { return p.Name }
	pickType := func(p orgProfile) string { return p.Type }
	pickRegion := func(p orgProfile) string { return p.Region }

	const (
		entity  = "Invoiced_Organization__c"
		site    = "Site_Name_Invoice__c"
		channel = "Channel_Partner_Invoiced__c"
	)

	return &export.Spec[invoiceLookups]{
		Domain:   Invoice,
		File:     "invoice_records.xlsx",
		Endpoint: "Invoice_History__c",
		Params:   notBrief(),
		Prepare:  prepareInvoice,
		Columns: []export.Column[invoiceLookups]{
			export.Field[invoiceLookups]("Invoice Number", "RECORD_NAME"),
			export.Field[invoiceLookups]("Record ID", "RECORD_ID"),
			export.Computed("Owner", func(rc invoiceRow) any {
				return rc.Lookups.users.Value(rc.Record["OWNER_USER_ID"])
			}),
			export.Custom[invoiceLookups]("Invoice Date", "Invoice_Date__c").As(export.DateUK),
			export.Custom[invoiceLookups]("Item ID", "Invoiced_Item__c"),
			export.Custom[invoiceLookups]("Invoiced Amount", "Invoiced_Amount__c"),
			export.Custom[invoiceLookups]("Invoice Currency", "Invoice_Currency__c"),
			export.Custom[invoiceLookups]("PO Number", "PO_Number__c"),
			export.Custom[invoiceLookups]("Item Quantity", "Item_Quantity__c"),
			export.Custom[invoiceLookups]("Product Type", "Invoiced_Product_Type__c"),
			export.Custom[invoiceLookups]("Equipment Type", "Invoiced_Product_for_Equipment_Type__c"),
			org("Entity Owning Equipment", entity, pickName),
			org("Organization Type (Entity)", entity, pickType),
			org("Region (Entity)", entity, pickRegion),
			org("Site Name", site, pickName),
			org("Organization Type (Site)", site, pickType),
			org("Region (Site)", site, pickRegion),
			org("Channel Partner", channel, pickName),
			org("Organization Type (Channel Partner)", channel, pickType),
			org("Region (Channel Partner)", channel, pickRegion),
			export.Custom[invoiceLookups]("Invoice #", "Invoice_Num__c"),
			export.Custom[invoiceLookups]("Invoiced Amount in CAD", "Invoiced_Amount_in_CAD__c"),
		},
	}
}

func prepareInvoice(ctx context.Context, src lookup.Source, _ []types.Record) (invoiceLookups, error) {
	var l invoiceLookups
	err := lookup.Build(ctx, lookupWorkers,
		func(ctx context.Context) error {
			l.users = usersTable(ctx, src)
			return nil
		},
		func(ctx context.Context) error {
			l.organisations = lookup.Full(ctx, src, "Organisations", "ORGANISATION_ID", nil, orgProfileOf)
			return nil
		},
	)
	return l, err
}
