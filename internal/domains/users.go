package domains

import (
	"github.com/hussain-magshield/magshield-data-pipeline/internal/export"
)

var userFields = []string{
	"USER_ID",
	"CONTACT_ID",
	"FIRST_NAME",
	"LAST_NAME",
	"TIMEZONE_ID",
	"EMAIL_ADDRESS",
	"EMAIL_DROPBOX_IDENTIFIER",
	"EMAIL_DROPBOX_ADDRESS",
	"ADMINISTRATOR",
	"ACCOUNT_OWNER",
	"ACTIVE",
	"DATE_CREATED_UTC",
	"DATE_UPDATED_UTC",
	"USER_CURRENCY",
	"CONTACT_DISPLAY",
	"CONTACT_ORDER",
	"TASK_WEEK_START",
	"INSTANCE_ID",
	"PROFILE_ID",
	"ROLE_ID",
}

// NewUsers exports the raw user fields under their wire names.
func NewUsers() *export.Spec[struct{}] {
	columns := make([]export.Column[struct{}], len(userFields))
	for i, f := range userFields {
		columns[i] = export.Field[struct{}](f, f)
	}
	return &export.Spec[struct{}]{
		Domain:   Users,
		File:     "Users.xlsx",
		Endpoint: "Users",
		Params:   notBrief(),
		Columns:  columns,
	}
}
