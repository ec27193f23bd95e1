package runner

import (
	"github.com/hussain-magshield/magshield-data-pipeline/internal/domains"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/mailreport"
)

// Group names of the scheduled triggers.
const (
	GroupFinal  = "final"
	GroupFinal2 = "final2"
	GroupFinal3 = "final3"
	GroupFinal4 = "final4"
	GroupUsers  = "users"
	GroupAll    = "all"
)

// DefaultGroups returns the named domain groups. Every single domain is a
// group of its own as well; New adds those.
func DefaultGroups() map[string][]string {
	return map[string][]string{
		GroupFinal:  {domains.Quote, domains.Organisation},
		GroupFinal2: {domains.Task, domains.Opportunity},
		GroupFinal3: {domains.Equipment, domains.Invoice},
		GroupFinal4: {mailreport.Name},
		GroupUsers:  {domains.Users},
		GroupAll: {
			domains.Quote, domains.Organisation,
			domains.Task, domains.Opportunity,
			domains.Equipment, domains.Invoice,
			mailreport.Name, domains.Users,
		},
	}
}
