package domains

import (
	"github.com/hussain-magshield/magshield-data-pipeline/internal/export"
	"github.com/hussain-magshield/magshield-data-pipeline/pkg/types"
)

type orgRow = export.RowContext[struct{}]

// NewOrganisation exports organisations with their linked contact count.
func NewOrganisation() *export.Spec[struct{}] {
	return &export.Spec[struct{}]{
		Domain:   Organisation,
		File:     "Organisations BRP.xlsx",
		Endpoint: "Organisations",
		Columns: []export.Column[struct{}]{
			export.Field[struct{}]("Organization ID", "ORGANISATION_ID"),
			export.Field[struct{}]("Organization Name", "ORGANISATION_NAME"),
			export.Field[struct{}]("Date Created", "DATE_CREATED_UTC").As(export.DateUS),
			export.Computed("Linked Contacts Count", func(rc orgRow) any {
				return types.CountLinks(rc.Record.Links(), types.ObjectContact)
			}),
			export.Computed("Focus Organization", func(rc orgRow) any {
				return rc.Fields.Get("Active__c").Bool()
			}),
			export.Custom[struct{}]("Call Frequency", "Call_Frequency__c"),
			export.Custom[struct{}]("Industry", "Industry__c"),
			export.Custom[struct{}]("Region", "Region__c"),
			export.Custom[struct{}]("Customer Type", "Sales_Methodology_Type__c"),
			export.Custom[struct{}]("Organization Type", "Organization_Type__c"),
			export.Field[struct{}]("Billing Country", "ADDRESS_BILLING_COUNTRY"),
		},
	}
}
