package domains

import (
	"context"

	"github.com/hussain-magshield/magshield-data-pipeline/internal/export"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/lookup"
	"github.com/hussain-magshield/magshield-data-pipeline/pkg/types"
)

type ownerLookups struct {
	users         *lookup.Table[string]
	organisations *lookup.Table[string]
}

type equipmentRow = export.RowContext[ownerLookups]

func (l ownerLookups) owner(r types.Record) string {
	return l.users.Value(r["OWNER_USER_ID"])
}

// NewEquipment exports equipment records with owner and organisation names.
func NewEquipment() *export.Spec[ownerLookups] {
	ownerSiteColumn := func(name string) export.Column[ownerLookups] {
		return export.Computed(name, func(rc equipmentRow) any {
			return ownerSite(rc.Lookups.owner(rc.Record))
		})
	}
	orgColumn := func(name, field string) export.Column[ownerLookups] {
		return export.Computed(name, func(rc equipmentRow) any {
			return rc.Lookups.organisations.Value(rc.Fields.ID(field))
		})
	}
	orgIDColumn := func(name, field string) export.Column[ownerLookups] {
		return export.Computed(name, func(rc equipmentRow) any {
			return rc.Fields.ID(field)
		})
	}

	return &export.Spec[ownerLookups]{
		Domain:   Equipment,
		File:     "Equipment.xlsx",
		Endpoint: "Equipment__c",
		Params:   notBrief(),
		Prepare:  prepareOwners,
		Columns: []export.Column[ownerLookups]{
			export.Field[ownerLookups]("Record ID", "RECORD_ID"),
			export.Field[ownerLookups]("Equipment Mine - Make - Model", "RECORD_NAME"),
			export.Computed("Owner", func(rc equipmentRow) any {
				return rc.Lookups.owner(rc.Record)
			}),
			export.Field[ownerLookups]("Date Created", "DATE_CREATED_UTC"),
			export.Field[ownerLookups]("Date Updated", "DATE_UPDATED_UTC"),
			orgIDColumn("Record ID_1", "Entity_Owning_Equipment_Equipment__c"),
			orgColumn("Entity Owning Equipment", "Entity_Owning_Equipment_Equipment__c"),
			ownerSiteColumn("Organization"),
			orgIDColumn("Record ID_2", "Site_Name_Equipment__c"),
			orgColumn("Site Name", "Site_Name_Equipment__c"),
			ownerSiteColumn("Organization Owner_3"),
			export.Custom[ownerLookups]("Equipment Type", "Equipment_Type_Equipment__c"),
			export.Custom[ownerLookups]("Equipment Make", "Equipment_Make_Equipment__c"),
			export.Custom[ownerLookups]("Equipment Model", "Equipment_Model_Equipment__c"),
			export.Custom[ownerLookups]("Equipment Quantity", "Equipment_Quantity_Equipment__c"),
			export.Custom[ownerLookups]("Serial Number Notes", "Serial_Number_Notes__c"),
			export.Custom[ownerLookups]("Last_Date_of_Equipment_Details_Confirmed__c", "Last_Date_of_Equipment_Details_Confirmed__c"),
		},
	}
}

// prepareOwners loads the full user and organisation tables.
func prepareOwners(ctx context.Context, src lookup.Source, _ []types.Record) (ownerLookups, error) {
	var l ownerLookups
	err := lookup.Build(ctx, lookupWorkers,
		func(ctx context.Context) error {
			l.users = usersTable(ctx, src)
			return nil
		},
		func(ctx context.Context) error {
			l.organisations = orgsTable(ctx, src)
			return nil
		},
	)
	return l, err
}
