package accounts

// Account field names used by the visibility configuration and the update
// validators.
const (
	FieldUsername              = "username"
	FieldName                  = "name"
	FieldBio                   = "bio"
	FieldEmail                 = "email"
	FieldLanguageProficiencies = "language_proficiencies"
	FieldAccountPrivacy        = "account_privacy"
	FieldIsActive              = "is_active"
	FieldDateJoined            = "date_joined"
)

// Visibility is a default sharing policy.
type Visibility string

const (
	VisibilityAllUsers Visibility = "all_users"
	VisibilityPrivate  Visibility = "private"
)

// ViewShared asks for the shared-only view of an account regardless of the
// viewer's access level.
const ViewShared = "shared"

// VisibilityConfiguration declares, per field, who may see what: the default
// sharing policy, the fields shared with every viewer, and the admin-only
// superset exposed to staff and account owners. It is plain data so the
// access-control decision stays independent of any serialization layer.
type VisibilityConfiguration struct {
	DefaultVisibility Visibility
	SharedFields      []string
	AdminFields       []string
}

// DefaultVisibilityConfiguration is the process-wide fallback used when the
// caller does not supply a configuration.
func DefaultVisibilityConfiguration() VisibilityConfiguration {
	return VisibilityConfiguration{
		DefaultVisibility: VisibilityAllUsers,
		SharedFields: []string{
			FieldUsername,
			FieldName,
			FieldBio,
			FieldLanguageProficiencies,
		},
		AdminFields: []string{
			FieldEmail,
			FieldAccountPrivacy,
			FieldIsActive,
			FieldDateJoined,
		},
	}
}

// VisibleFields returns the field names exposed to a viewer. Full access adds
// the admin-field superset on top of the shared fields.
func (c VisibilityConfiguration) VisibleFields(fullAccess bool) []string {
	fields := make([]string, 0, len(c.SharedFields)+len(c.AdminFields))
	fields = append(fields, c.SharedFields...)
	if fullAccess {
		fields = append(fields, c.AdminFields...)
	}
	return fields
}

// buildAccountView assembles the filtered view of one account. accountPrivacy
// is the target's stored privacy preference; it only appears when the field
// list includes it.
func buildAccountView(identity Identity, profile Profile, accountPrivacy string, fields []string) AccountView {
	view := make(AccountView, len(fields))
	for _, field := range fields {
		switch field {
		case FieldUsername:
			view[field] = identity.Username
		case FieldName:
			view[field] = profile.Name
		case FieldBio:
			view[field] = profile.Bio
		case FieldLanguageProficiencies:
			view[field] = append([]string(nil), profile.LanguageProficiencies...)
		case FieldEmail:
			view[field] = identity.Email
		case FieldAccountPrivacy:
			view[field] = accountPrivacy
		case FieldIsActive:
			view[field] = identity.Active
		case FieldDateJoined:
			view[field] = identity.DateJoined
		}
	}
	return view
}
