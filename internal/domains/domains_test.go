package domains

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hussain-magshield/magshield-data-pipeline/internal/crm/crmtest"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/export"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/lookup"
	"github.com/hussain-magshield/magshield-data-pipeline/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	columns []string
	rows    [][]any
}

func (w *captureWriter) Write(path string, columns []string, rows [][]any) error {
	w.columns = columns
	w.rows = rows
	return nil
}

// rowMaps exports with src and returns every row keyed by column name.
func rowMaps(t *testing.T, exp export.Exporter, src *crmtest.Source) []map[string]any {
	t.Helper()
	w := &captureWriter{}
	result, err := exp.Export(context.Background(), export.Env{Source: src, Writer: w, OutputDir: t.TempDir()})
	require.NoError(t, err)
	require.False(t, result.Absent(), "export produced no file")

	out := make([]map[string]any, len(w.rows))
	for i, row := range w.rows {
		m := make(map[string]any, len(row))
		for j, v := range row {
			m[w.columns[j]] = v
		}
		out[i] = m
	}
	return out
}

func cf(pairs ...any) []any {
	out := make([]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, map[string]any{"FIELD_NAME": pairs[i], "FIELD_VALUE": pairs[i+1]})
	}
	return out
}

func links(pairs ...string) []any {
	out := make([]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, map[string]any{"LINK_OBJECT_NAME": pairs[i], "LINK_OBJECT_ID": json.Number(pairs[i+1])})
	}
	return out
}

func n(s string) json.Number { return json.Number(s) }

func TestExporters_UniqueNamesAndFiles(t *testing.T) {
	names := map[string]bool{}
	files := map[string]bool{}
	for _, e := range Exporters() {
		assert.False(t, names[e.Name()], e.Name())
		assert.False(t, files[e.FileName()], e.FileName())
		names[e.Name()] = true
		files[e.FileName()] = true
	}
	assert.Len(t, names, 7)
}

func TestUserHelpers(t *testing.T) {
	u := types.Record{"USER_ID": n("42"), "FIRST_NAME": "Ada", "LAST_NAME": "Lovelace"}
	assert.Equal(t, "42;Ada Lovelace", userDisplay(u))
	assert.Equal(t, "Ada Lovelace", ownerName("42;Ada Lovelace"))
	assert.Equal(t, "", ownerName(""))
	assert.Equal(t, "Ada Lovelace||42||User", ownerSite("42;Ada Lovelace"))
	assert.Equal(t, "", ownerSite(""))
	assert.Equal(t, "odd", ownerSite("odd"))
}

func TestQuote(t *testing.T) {
	src := crmtest.NewSource().
		Add("Quotation",
			types.Record{
				"QUOTE_ID": n("9001"), "QUOTATION_NAME": "Liner\nretrofit", "ORGANISATION_ID": n("10"),
				"OPPORTUNITY_ID": n("20"), "GRAND_TOTAL": n("1500"),
				"DATE_CREATED_UTC": "2025-08-25 20:41:00", "DATE_UPDATED_UTC": "",
				"CUSTOMFIELDS": cf("Sales_Person__c", n("30"), "Tax__c", n("12.5")),
			},
			types.Record{
				"QUOTE_ID": n("9002"), "ORGANISATION_NAME": "Inline Org", "OPPORTUNITY_NAME": "Inline Opp",
				"ORGANISATION_ID": n("11"), "GRAND_TOTAL": n("10"),
				"CUSTOMFIELDS": cf("Grand_Total__c", n("99")),
			},
		).
		Add("Organisations", types.Record{"ORGANISATION_ID": n("10"), "ORGANISATION_NAME": "Acme"}).
		Add("Opportunities", types.Record{"OPPORTUNITY_ID": n("20"), "OPPORTUNITY_NAME": "Big deal"}).
		Add("Contacts", types.Record{"CONTACT_ID": n("30"), "FIRST_NAME": "Grace", "LAST_NAME": "Hopper"})

	rows := rowMaps(t, NewQuote(), src)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, int64(9001), first["Record ID"])
	assert.Equal(t, "Liner retrofit", first["Quote Name"])
	assert.Equal(t, "Acme", first["Organization Name"])
	assert.Equal(t, "Big deal", first["Opportunity Name"])
	assert.Equal(t, "30", first["Sales Person Id"])
	assert.Equal(t, "Grace Hopper", first["Sales Person"])
	assert.Equal(t, int64(1500), first["Grand Total"])
	assert.Equal(t, 12.5, first["Tax"])
	assert.Equal(t, "25-Aug-25 8:41 PM", first["Date Created"])
	assert.Equal(t, "", first["Date Updated"])

	second := rows[1]
	assert.Equal(t, "Inline Org", second["Organization Name"])
	assert.Equal(t, "Inline Opp", second["Opportunity Name"])
	assert.Equal(t, int64(99), second["Grand Total"])
	assert.Equal(t, "", second["Sales Person"])

	// targeted lookups only ask for referenced IDs
	assert.ElementsMatch(t, []string{"10", "11"}, src.Requested("Organisations"))
	assert.Equal(t, []string{"20"}, src.Requested("Opportunities"))
	assert.Equal(t, 0, src.FetchAllCalls("Organisations"))
}

func TestOrganisation(t *testing.T) {
	src := crmtest.NewSource().Add("Organisations",
		types.Record{
			"ORGANISATION_ID": n("1"), "ORGANISATION_NAME": " Acme ", "DATE_CREATED_UTC": "2022-09-23 03:42:25",
			"LINKS":        links("Contact", "5", "Contact", "6", "Organisation", "2"),
			"CUSTOMFIELDS": cf("Active__c", true, "Region__c", "West"),
		},
		types.Record{"ORGANISATION_ID": n("2"), "ORGANISATION_NAME": "Borealis"},
	)

	rows := rowMaps(t, NewOrganisation(), src)
	require.Len(t, rows, 2)
	assert.Equal(t, "Acme", rows[0]["Organization Name"])
	assert.Equal(t, "09/23/2022", rows[0]["Date Created"])
	assert.Equal(t, int64(2), rows[0]["Linked Contacts Count"])
	assert.Equal(t, true, rows[0]["Focus Organization"])
	assert.Equal(t, "West", rows[0]["Region"])
	assert.Equal(t, int64(0), rows[1]["Linked Contacts Count"])
	assert.Equal(t, false, rows[1]["Focus Organization"])
}

func TestTask(t *testing.T) {
	src := crmtest.NewSource().
		Add("Tasks",
			types.Record{
				"TASK_ID": n("1"), "CATEGORY_ID": n("3"), "OWNER_USER_ID": n("7"), "STATUS": "NOT STARTED",
				"DUE_DATE": "2024-01-05 00:00:00", "COMPLETED_DATE_UTC": nil,
				"LINKS": links("Contact", "50", "Opportunity", "60", "Project", "70", "Note", "80", "Lead", "90"),
			},
			types.Record{
				"TASK_ID": n("2"),
				"LINKS":   links("Opportunity", "60", "Organisation", "101"),
			},
		).
		Add("TaskCategories", types.Record{"CATEGORY_ID": n("3"), "CATEGORY_NAME": "Follow-up"}).
		Add("Users", types.Record{"USER_ID": n("7"), "FIRST_NAME": "Ada", "LAST_NAME": "Lovelace"}).
		Add("Contacts", types.Record{"CONTACT_ID": n("50"), "FIRST_NAME": "Grace", "LAST_NAME": "Hopper"}).
		Add("Leads", types.Record{"LEAD_ID": n("90"), "FIRST_NAME": "Alan", "LAST_NAME": ""}).
		Add("Opportunities", types.Record{"OPPORTUNITY_ID": n("60"), "OPPORTUNITY_NAME": "Shield order", "ORGANISATION_ID": n("100")}).
		Add("Organisations",
			types.Record{"ORGANISATION_ID": n("100"), "ORGANISATION_NAME": "Opp Org"},
			types.Record{"ORGANISATION_ID": n("101"), "ORGANISATION_NAME": "Direct Org"},
		).
		Add("Projects", types.Record{"PROJECT_ID": n("70"), "PROJECT_NAME": "Rollout"}).
		Add("Notes", types.Record{"NOTE_ID": n("80"), "TITLE": "Kickoff"})

	rows := rowMaps(t, NewTask(), src)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "Follow-up", first["Category"])
	assert.Equal(t, "7;Ada Lovelace", first["Owner Name"])
	assert.Equal(t, "01/05/2024", first["Date Due"])
	assert.Equal(t, "", first["Date Completed"])
	assert.Equal(t, "Grace Hopper", first["Linked Contact"])
	assert.Equal(t, "Alan", first["Linked Lead"])
	assert.Equal(t, "Shield order", first["Linked Opportunity"])
	assert.Equal(t, "Opp Org", first["Linked Organization"])
	assert.Equal(t, "Rollout", first["Linked Project"])
	assert.Equal(t, "Kickoff", first["Linked Note"])

	// a later organisation link overrides the opportunity's organisation
	assert.Equal(t, "Direct Org", rows[1]["Linked Organization"])
	assert.ElementsMatch(t, []string{"101", "100"}, src.Requested("Organisations"))
}

func TestExpandTask_OneRowWithEveryLink(t *testing.T) {
	rc := taskRow{
		Record: types.Record{"LINKS": links("Contact", "50", "Note", "80")},
		Lookups: taskLookups{
			contacts: lookup.NewTable(map[string]string{"50": "Grace Hopper"}),
			notes:    lookup.NewTable(map[string]string{"80": "Kickoff"}),
		},
	}

	rows := expandTask(rc)
	require.Len(t, rows, 1)
	assert.Equal(t, export.Row{
		colLinkedContact:      "Grace Hopper",
		colLinkedLead:         "",
		colLinkedOpportunity:  "",
		colLinkedOrganization: "",
		colLinkedProject:      "",
		colLinkedNote:         "Kickoff",
	}, rows[0])

	// link columns come from the expanded row, not per-column resolvers
	for _, c := range NewTask().Columns {
		if _, ok := rows[0][c.Name]; ok {
			assert.True(t, c.Sub, c.Name)
		}
	}
}

func opportunitySource() *crmtest.Source {
	return crmtest.NewSource().
		Add("Opportunities",
			types.Record{
				"OPPORTUNITY_ID": n("1"), "OPPORTUNITY_NAME": "Mine upgrade", "ORGANISATION_ID": n("10"),
				"OWNER_USER_ID": n("7"), "STAGE_ID": n("4"), "PRICEBOOK_ID": n("2"), "STATE_REASON_ID": n("8"),
				"OPPORTUNITY_STATE": "WON",
				"CUSTOMFIELDS": cf("Trial__c", true, "Channel_Owner__c", n("12"),
					"Invoice_Number__c", "OPP-INV", "Purchase_Order__c", "OPP-PO"),
			},
			types.Record{
				"OPPORTUNITY_ID": n("2"), "OPPORTUNITY_NAME": "No products", "ORGANISATION_ID": n("10"),
				"OPPORTUNITY_STATE": "OPEN",
				"CUSTOMFIELDS":      cf("Invoice_Number__c", "INV-X", "Purchase_Order__c", "PO-X"),
			},
		).
		Add("Organisations",
			types.Record{"ORGANISATION_ID": n("10"), "ORGANISATION_NAME": "Acme"},
			types.Record{"ORGANISATION_ID": n("11"), "ORGANISATION_NAME": "North Pit"},
			types.Record{"ORGANISATION_ID": n("12"), "ORGANISATION_NAME": "Channel Co"},
			types.Record{"ORGANISATION_ID": n("13"), "ORGANISATION_NAME": "South Pit"},
		).
		Add("Users", types.Record{"USER_ID": n("7"), "FIRST_NAME": "Ada", "LAST_NAME": "Lovelace"}).
		Add("Pricebook", types.Record{"PRICEBOOK_ID": n("2"), "NAME": "Standard"}).
		Add("OpportunityStateReasons", types.Record{"STATE_REASON_ID": n("8"), "STATE_REASON": "Price"}).
		Add("PipelineStages", types.Record{"STAGE_ID": n("4"), "STAGE_NAME": "Closing"}).
		Add("Product",
			types.Record{"PRODUCT_ID": n("100"), "PRODUCT_FAMILY": "Liners", "PRODUCT_SKU": "SKU-L"},
			types.Record{"PRODUCT_ID": n("101"), "PRODUCT_FAMILY": "Shields", "PRODUCT_SKU": "SKU-S"},
			types.Record{"PRODUCT_ID": n("102"), "PRODUCT_FAMILY": "Bolts", "PRODUCT_SKU": "SKU-B"},
		).
		Add("PricebookEntry",
			types.Record{"PRICEBOOK_ENTRY_ID": n("500"), "PRODUCT_ID": n("100")},
			types.Record{"PRICEBOOK_ENTRY_ID": n("501"), "PRODUCT_ID": n("101")},
			types.Record{"PRICEBOOK_ENTRY_ID": n("502"), "PRODUCT_ID": n("102")},
		).
		Add("OpportunityLineItem",
			types.Record{"OPPORTUNITY_ID": n("1"), "PRICEBOOK_ENTRY_ID": n("500")},
			types.Record{"OPPORTUNITY_ID": n("1"), "PRICEBOOK_ENTRY_ID": n("501")},
			types.Record{"OPPORTUNITY_ID": n("1"), "PRICEBOOK_ENTRY_ID": n("502")},
		).
		Add("OpportunityLinks",
			types.Record{"OBJECT_NAME": "Opportunity", "OBJECT_ID": n("1"), "LINK_OBJECT_NAME": "Organisation", "LINK_OBJECT_ID": n("10")},
			types.Record{"OBJECT_NAME": "Opportunity", "OBJECT_ID": n("1"), "LINK_OBJECT_NAME": "Organisation", "LINK_OBJECT_ID": n("11")},
			types.Record{"OBJECT_NAME": "Opportunity", "OBJECT_ID": n("1"), "LINK_OBJECT_NAME": "Organisation", "LINK_OBJECT_ID": n("13")},
			types.Record{"OBJECT_NAME": "Opportunity", "OBJECT_ID": n("1"), "LINK_OBJECT_NAME": "Contact", "LINK_OBJECT_ID": n("55")},
			types.Record{"OBJECT_NAME": "Contact", "OBJECT_ID": n("1"), "LINK_OBJECT_NAME": "Organisation", "LINK_OBJECT_ID": n("12")},
		).
		Add("Invoice_History__c",
			// liner billed twice to the opportunity's organisation
			types.Record{"RECORD_NAME": "R1", "CUSTOMFIELDS": cf("Invoiced_Item__c", "SKU-L", "Invoice_Num__c", "INV-1", "PO_Number__c", "PO-1", "Invoiced_Organization__c", n("10"))},
			types.Record{"RECORD_NAME": "R2", "CUSTOMFIELDS": cf("Invoiced_Item__c", "SKU-L", "Invoice_Num__c", "INV-2", "PO_Number__c", "PO-2", "Site_Name_Invoice__c", n("10"))},
			// shield shares INV-1/PO-1 with the liner
			types.Record{"RECORD_NAME": "R3", "CUSTOMFIELDS": cf("Invoiced_Item__c", "SKU-S", "Invoice_Num__c", "INV-1", "PO_Number__c", "PO-1", "Channel_Partner_Invoiced__c", n("10"))},
			// bolt billed to someone else
			types.Record{"RECORD_NAME": "R4", "CUSTOMFIELDS": cf("Invoiced_Item__c", "SKU-B", "Invoice_Num__c", "INV-9", "PO_Number__c", "PO-9", "Invoiced_Organization__c", n("99"))},
		)
}

func TestOpportunity_FanOut(t *testing.T) {
	rows := rowMaps(t, NewOpportunity(), opportunitySource())

	var withProducts, withoutProducts []map[string]any
	for _, r := range rows {
		if r["Opportunity ID"] == "1" {
			withProducts = append(withProducts, r)
		} else {
			withoutProducts = append(withoutProducts, r)
		}
	}

	type sub struct{ product, family, invoice, po any }
	var got []sub
	for _, r := range withProducts {
		got = append(got, sub{r["Product ID"], r["Product Family"], r["Invoice Number"], r["Purchase Order"]})

		assert.Equal(t, "Mine upgrade", r["Opportunity Name"])
		assert.Equal(t, "North Pit and South Pit", r["Site Name"])
		assert.Equal(t, "Channel Co", r["Channel Partner"])
		assert.Equal(t, "Acme", r["Organization Name"])
		assert.Equal(t, "7;Ada Lovelace", r["Opportunity Owner"])
		assert.Equal(t, "Ada Lovelace", r["Owner Name"])
		assert.Equal(t, "Closing", r["Current Pipeline Stage"])
		assert.Equal(t, "Standard", r["Pricebook Name"])
		assert.Equal(t, "Price", r["State Reason"])
		assert.Equal(t, "TRUE", r["Won"])
		assert.Equal(t, "TRUE", r["Trial?"])
	}
	assert.Equal(t, []sub{
		{"100", "Liners", "INV-1", "PO-1"},
		{"100", "Liners", "INV-2", "PO-2"},
		// INV-1/PO-1 already emitted for the liner
		{"101", "Shields", "", ""},
		{"102", "Bolts", "OPP-INV", "OPP-PO"},
	}, got)

	require.Len(t, withoutProducts, 1)
	lone := withoutProducts[0]
	assert.Equal(t, "", lone["Product ID"])
	assert.Equal(t, "", lone["Product Family"])
	assert.Equal(t, "INV-X", lone["Invoice Number"])
	assert.Equal(t, "PO-X", lone["Purchase Order"])
	assert.Equal(t, "FALSE", lone["Won"])
	assert.Equal(t, "FALSE", lone["Trial?"])
	assert.Equal(t, "", lone["Site Name"])
}

func TestExpandOpportunity_SharedInvoiceLeavesBlank(t *testing.T) {
	billed := invoiceRef{Number: "INV-1", PurchaseOrder: "PO-1", Organisations: [3]string{"10"}}
	rc := oppRow{
		Record: types.Record{"OPPORTUNITY_ID": n("1"), "ORGANISATION_ID": n("10")},
		Fields: types.Record{"CUSTOMFIELDS": cf("Invoice_Number__c", "OPP-INV", "Purchase_Order__c", "OPP-PO")}.Fields(),
		Lookups: opportunityLookups{
			lineProducts: lookup.NewTable(map[string][]string{"1": {"100", "101", "102"}}),
			products: lookup.NewTable(map[string]product{
				"100": {Family: "Liners", SKU: "SKU-A"},
				"101": {Family: "Shields", SKU: "SKU-B"},
				"102": {Family: "Bolts"},
			}),
			invoicesBySKU: lookup.NewTable(map[string][]invoiceRef{
				"SKU-A": {billed},
				"SKU-B": {billed},
			}),
		},
	}

	rows := expandOpportunity(rc)
	require.Len(t, rows, 3)
	assert.Equal(t, []any{"100", "INV-1", "PO-1"}, []any{rows[0][colProductID], rows[0][colInvoiceNumber], rows[0][colPurchaseOrder]})
	// matched INV-1 was already emitted, so no invoice is named
	assert.Equal(t, []any{"101", "", ""}, []any{rows[1][colProductID], rows[1][colInvoiceNumber], rows[1][colPurchaseOrder]})
	// no SKU, no billed invoice: the opportunity's own fields
	assert.Equal(t, "OPP-INV", types.ValueOf(rows[2][colInvoiceNumber]).Display())
	assert.Equal(t, "OPP-PO", types.ValueOf(rows[2][colPurchaseOrder]).Display())
}

func TestInvoiceRef_BilledTo(t *testing.T) {
	inv := invoiceRef{Organisations: [3]string{"", "10", ""}}
	assert.True(t, inv.billedTo("10"))
	assert.False(t, inv.billedTo("11"))
	assert.False(t, inv.billedTo(""))
}

func TestEquipment(t *testing.T) {
	src := crmtest.NewSource().
		Add("Equipment__c", types.Record{
			"RECORD_ID": n("1"), "RECORD_NAME": "Pit 3 - Komatsu - 930E", "OWNER_USER_ID": n("7"),
			"CUSTOMFIELDS": cf("Entity_Owning_Equipment_Equipment__c", n("10"), "Site_Name_Equipment__c", n("11"),
				"Equipment_Quantity_Equipment__c", n("4")),
		}).
		Add("Users", types.Record{"USER_ID": n("7"), "FIRST_NAME": "Ada", "LAST_NAME": "Lovelace"}).
		Add("Organisations",
			types.Record{"ORGANISATION_ID": n("10"), "ORGANISATION_NAME": "Acme"},
			types.Record{"ORGANISATION_ID": n("11"), "ORGANISATION_NAME": "North Pit"},
		)

	rows := rowMaps(t, NewEquipment(), src)
	require.Len(t, rows, 1)
	r := rows[0]
	assert.Equal(t, "7;Ada Lovelace", r["Owner"])
	assert.Equal(t, "Ada Lovelace||7||User", r["Organization"])
	assert.Equal(t, "Ada Lovelace||7||User", r["Organization Owner_3"])
	assert.Equal(t, "10", r["Record ID_1"])
	assert.Equal(t, "Acme", r["Entity Owning Equipment"])
	assert.Equal(t, "11", r["Record ID_2"])
	assert.Equal(t, "North Pit", r["Site Name"])
	assert.Equal(t, int64(4), r["Equipment Quantity"])
	assert.Equal(t, "", r["Serial Number Notes"])
}

func TestInvoice(t *testing.T) {
	src := crmtest.NewSource().
		Add("Invoice_History__c", types.Record{
			"RECORD_ID": n("1"), "RECORD_NAME": "INV-1\r\n", "OWNER_USER_ID": n("7"),
			"CUSTOMFIELDS": cf("Invoice_Date__c", "2024-02-01 00:00:00", "Invoiced_Organization__c", n("10"),
				"Channel_Partner_Invoiced__c", n("12")),
		}).
		Add("Users", types.Record{"USER_ID": n("7"), "FIRST_NAME": "Ada", "LAST_NAME": "Lovelace"}).
		Add("Organisations",
			types.Record{"ORGANISATION_ID": n("10"), "ORGANISATION_NAME": "Acme",
				"CUSTOMFIELDS": cf("Organization_Type__c", "Mine", "Region__c", "West")},
			types.Record{"ORGANISATION_ID": n("12"), "ORGANISATION_NAME": "Channel Co",
				"CUSTOMFIELDS": cf("Organization_Type__c", "Distributor")},
		)

	rows := rowMaps(t, NewInvoice(), src)
	require.Len(t, rows, 1)
	r := rows[0]
	assert.Equal(t, "INV-1", r["Invoice Number"])
	assert.Equal(t, "7;Ada Lovelace", r["Owner"])
	assert.Equal(t, "01/02/2024", r["Invoice Date"])
	assert.Equal(t, "Acme", r["Entity Owning Equipment"])
	assert.Equal(t, "Mine", r["Organization Type (Entity)"])
	assert.Equal(t, "West", r["Region (Entity)"])
	assert.Equal(t, "", r["Site Name"])
	assert.Equal(t, "Channel Co", r["Channel Partner"])
	assert.Equal(t, "Distributor", r["Organization Type (Channel Partner)"])
	assert.Equal(t, "", r["Region (Channel Partner)"])
}

func TestUsers(t *testing.T) {
	src := crmtest.NewSource().Add("Users",
		types.Record{"USER_ID": n("7"), "FIRST_NAME": "Ada", "ADMINISTRATOR": true},
		types.Record{"USER_ID": n("7"), "FIRST_NAME": "Ada", "ADMINISTRATOR": true},
	)
	spec := NewUsers()
	assert.Len(t, spec.Header(), 20)

	rows := rowMaps(t, spec, src)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0]["USER_ID"])
	assert.Equal(t, true, rows[0]["ADMINISTRATOR"])
	assert.Equal(t, "", rows[0]["ROLE_ID"])
}
