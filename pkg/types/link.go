package types

// Object names used in link tuples.
const (
	ObjectContact      = "Contact"
	ObjectLead         = "Lead"
	ObjectOpportunity  = "Opportunity"
	ObjectOrganisation = "Organisation"
	ObjectProject      = "Project"
	ObjectNote         = "Note"
)

// Link is a many-to-many association between two CRM objects.
type Link struct {
	ObjectName     string `json:"object_name"`
	ObjectID       string `json:"object_id"`
	LinkObjectName string `json:"link_object_name"`
	LinkObjectID   string `json:"link_object_id"`
}

// LinkFromRecord reads a link from either an embedded LINKS entry or a
// record of a *Links collection.
func LinkFromRecord(r Record) Link {
	return Link{
		ObjectName:     r.Text("OBJECT_NAME"),
		ObjectID:       r.ID("OBJECT_ID"),
		LinkObjectName: r.Text("LINK_OBJECT_NAME"),
		LinkObjectID:   r.ID("LINK_OBJECT_ID"),
	}
}

// LinkedIDs returns the linked object IDs of the given type, skipping
// exclude and preserving first-seen order without repeats.
func LinkedIDs(links []Link, linkObjectName, exclude string) []string {
	seen := make(map[string]struct{}, len(links))
	var ids []string
	for _, l := range links {
		if l.LinkObjectName != linkObjectName || l.LinkObjectID == "" || l.LinkObjectID == exclude {
			continue
		}
		if _, ok := seen[l.LinkObjectID]; ok {
			continue
		}
		seen[l.LinkObjectID] = struct{}{}
		ids = append(ids, l.LinkObjectID)
	}
	return ids
}

// CountLinks counts links of the given linked object type.
func CountLinks(links []Link, linkObjectName string) int {
	n := 0
	for _, l := range links {
		if l.LinkObjectName == linkObjectName {
			n++
		}
	}
	return n
}
