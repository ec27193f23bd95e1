package domains

import (
	"context"

	"github.com/hussain-magshield/magshield-data-pipeline/internal/export"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/lookup"
	"github.com/hussain-magshield/magshield-data-pipeline/pkg/types"
)

type linkedOpportunity struct {
	Name           string
	OrganisationID string
}

type taskLookups struct {
	categories    *lookup.Table[string]
	users         *lookup.Table[string]
	contacts      *lookup.Table[string]
	leads         *lookup.Table[string]
	opportunities *lookup.Table[linkedOpportunity]
	organisations *lookup.Table[string]
	projects      *lookup.Table[string]
	notes         *lookup.Table[string]
}

type taskRow = export.RowContext[taskLookups]

// taskLinks holds the resolved names of a task's links. When a task links
// several objects of one type the last link wins.
type taskLinks struct {
	contact, lead, opportunity, organisation, project, note string
}

func resolveTaskLinks(rc taskRow) taskLinks {
	var out taskLinks
	l := rc.Lookups
	for _, link := range rc.Record.Links() {
		id := link.LinkObjectID
		switch link.LinkObjectName {
		case types.ObjectContact:
			out.contact = l.contacts.Value(id)
		case types.ObjectLead:
			out.lead = l.leads.Value(id)
		case types.ObjectOpportunity:
			opp := l.opportunities.Value(id)
			out.opportunity = opp.Name
			if opp.OrganisationID != "" {
				out.organisation = l.organisations.Value(opp.OrganisationID)
			}
		case types.ObjectOrganisation:
			out.organisation = l.organisations.Value(id)
		case types.ObjectProject:
			out.project = l.projects.Value(id)
		case types.ObjectNote:
			out.note = l.notes.Value(id)
		}
	}
	return out
}

const (
	colLinkedContact      = "Linked Contact"
	colLinkedLead         = "Linked Lead"
	colLinkedOpportunity  = "Linked Opportunity"
	colLinkedOrganization = "Linked Organization"
	colLinkedProject      = "Linked Project"
	colLinkedNote         = "Linked Note"
)

// expandTask resolves the links once and fills every link column of the
// task's single row.
func expandTask(rc taskRow) []export.Row {
	t := resolveTaskLinks(rc)
	return []export.Row{{
		colLinkedContact:      t.contact,
		colLinkedLead:         t.lead,
		colLinkedOpportunity:  t.opportunity,
		colLinkedOrganization: t.organisation,
		colLinkedProject:      t.project,
		colLinkedNote:         t.note,
	}}
}

// NewTask exports tasks with their category, owner and linked object names.
func NewTask() *export.Spec[taskLookups] {
	return &export.Spec[taskLookups]{
		Domain:   Task,
		File:     "Tasks.xlsx",
		Endpoint: "Tasks",
		Prepare:  prepareTask,
		Expand:   expandTask,
		Columns: []export.Column[taskLookups]{
			export.Field[taskLookups]("TaskID", "TASK_ID"),
			export.Computed("Category", func(rc taskRow) any {
				return rc.Lookups.categories.Value(rc.Record["CATEGORY_ID"])
			}),
			export.Field[taskLookups]("Status", "STATUS"),
			export.Field[taskLookups]("Percent Complete", "PERCENT_COMPLETE"),
			export.Field[taskLookups]("Priority", "PRIORITY"),
			export.Computed("Owner Name", func(rc taskRow) any {
				return rc.Lookups.users.Value(rc.Record["OWNER_USER_ID"])
			}),
			export.Field[taskLookups]("Assigned To Team", "ASSIGNED_TEAM_ID"),
			export.Field[taskLookups]("Date Assigned", "ASSIGNED_DATE_UTC").As(export.DateUS),
			export.Field[taskLookups]("Date Created", "DATE_CREATED_UTC").As(export.DateUS),
			export.Field[taskLookups]("Date Reminder", "REMINDER_DATE_UTC").As(export.DateUS),
			export.Field[taskLookups]("Date Due", "DUE_DATE").As(export.DateUS),
			export.Field[taskLookups]("Date Completed", "COMPLETED_DATE_UTC").As(export.DateUS),
			export.Sub[taskLookups](colLinkedContact),
			export.Sub[taskLookups](colLinkedLead),
			export.Sub[taskLookups](colLinkedOpportunity),
			export.Sub[taskLookups](colLinkedOrganization),
			export.Sub[taskLookups](colLinkedProject),
			export.Sub[taskLookups](colLinkedNote),
		},
	}
}

func prepareTask(ctx context.Context, src lookup.Source, tasks []types.Record) (taskLookups, error) {
	var l taskLookups

	linked := func(object string) []string {
		return lookup.Collect(tasks, func(r types.Record) []string {
			return types.LinkedIDs(r.Links(), object, "")
		})
	}
	named := func(endpoint, idField string, ids []string, project func(types.Record) string, dst **lookup.Table[string]) lookup.Job {
		return func(ctx context.Context) error {
			*dst = lookup.Targeted(ctx, src, endpoint, idField, ids, project)
			return nil
		}
	}

	err := lookup.Build(ctx, lookupWorkers,
		named("TaskCategories", "CATEGORY_ID", ids(tasks, "CATEGORY_ID"),
			func(r types.Record) string { return r.Text("CATEGORY_NAME") }, &l.categories),
		named("Users", "USER_ID", ids(tasks, "OWNER_USER_ID"), userDisplay, &l.users),
		named("Contacts", "CONTACT_ID", linked(types.ObjectContact), personName, &l.contacts),
		named("Leads", "LEAD_ID", linked(types.ObjectLead), personName, &l.leads),
		named("Projects", "PROJECT_ID", linked(types.ObjectProject),
			func(r types.Record) string { return r.Text("PROJECT_NAME") }, &l.projects),
		named("Notes", "NOTE_ID", linked(types.ObjectNote),
			func(r types.Record) string { return r.Text("TITLE") }, &l.notes),
		func(ctx context.Context) error {
			l.opportunities = lookup.Targeted(ctx, src, "Opportunities", "OPPORTUNITY_ID", linked(types.ObjectOpportunity),
				func(r types.Record) linkedOpportunity {
					return linkedOpportunity{Name: r.Text("OPPORTUNITY_NAME"), OrganisationID: r.ID("ORGANISATION_ID")}
				})
			return nil
		},
	)
	if err != nil {
		return l, err
	}

	// organisations are chained behind opportunities
	orgIDs := linked(types.ObjectOrganisation)
	seen := make(map[string]bool, len(orgIDs))
	for _, id := range orgIDs {
		seen[id] = true
	}
	for _, id := range linked(types.ObjectOpportunity) {
		opp, ok := l.opportunities.Get(id)
		if ok && opp.OrganisationID != "" && !seen[opp.OrganisationID] {
			seen[opp.OrganisationID] = true
			orgIDs = append(orgIDs, opp.OrganisationID)
		}
	}
	l.organisations = lookup.Targeted(ctx, src, "Organisations", "ORGANISATION_ID", orgIDs, orgName)
	return l, nil
}
