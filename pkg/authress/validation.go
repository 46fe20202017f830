package authress

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

const (
	reasonRequired = "required"
	reasonTooLong  = "too long (max %d)"
)

var reRoleID = regexp.MustCompile(`^[A-Za-z0-9_:.-]+$`)

// Validate checks the role fields. Returns a map of field names to error
// messages, or nil if all fields are valid.
func (r Role) Validate() map[string]string {
	errs := make(map[string]string)

	roleID := strings.TrimSpace(r.RoleID)
	switch {
	case roleID == "":
		errs["roleId"] = reasonRequired
	case len(roleID) > 64:
		errs["roleId"] = fmt.Sprintf(reasonTooLong, 64)
	case !reRoleID.MatchString(roleID):
		errs["roleId"] = "must only contain a-z, A-Z, 0-9, _, :, . or -"
	}

	name := strings.TrimSpace(r.Name)
	switch {
	case name == "":
		errs["name"] = reasonRequired
	case len(name) > 128:
		errs["name"] = fmt.Sprintf(reasonTooLong, 128)
	}

	if r.Permissions == nil {
		errs["permissions"] = reasonRequired
	}
	for i, p := range r.Permissions {
		if strings.TrimSpace(p.Action) == "" {
			errs[fmt.Sprintf("permissions[%d].action", i)] = reasonRequired
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate checks the record fields. Returns a map of field names to error
// messages, or nil if all fields are valid.
func (r AccessRecord) Validate() map[string]string {
	errs := make(map[string]string)

	name := strings.TrimSpace(r.Name)
	switch {
	case name == "":
		errs["name"] = reasonRequired
	case len(name) > 128:
		errs["name"] = fmt.Sprintf(reasonTooLong, 128)
	}

	switch r.Status {
	case "", RecordStatusActive, RecordStatusDeleted:
	default:
		errs["status"] = fmt.Sprintf("must be %s or %s", RecordStatusActive, RecordStatusDeleted)
	}

	for i, s := range r.Statements {
		if len(s.Roles) == 0 {
			errs[fmt.Sprintf("statements[%d].roles", i)] = reasonRequired
		}
		if len(s.Resources) == 0 {
			errs[fmt.Sprintf("statements[%d].resources", i)] = reasonRequired
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// formatFieldErrors renders errs as "field: reason" pairs in field order.
func formatFieldErrors(errs map[string]string) string {
	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ": " + errs[f]
	}
	return strings.Join(parts, ", ")
}

// requirePathParam reports an empty identifier as a ValidationError.
func requirePathParam(model, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Model: model, Fields: map[string]string{field: reasonRequired}}
	}
	return nil
}
