package audit

import (
	"encoding/json"
	"time"
)

// Entry is one immutable row of the compliance trail. Old/new snapshots are
// nullable JSON documents; the engine only ever appends, never reads an entry
// back to make a decision.
type Entry struct {
	AuditID    int64           `db:"audit_id" json:"auditId"`
	UserID     *int64          `db:"user_id" json:"userId,omitempty"`
	RoleID     *int64          `db:"role_id" json:"roleId,omitempty"`
	ModuleName string          `db:"module_name" json:"moduleName"`
	ActionType string          `db:"action_type" json:"actionType"`
	RecordID   int64           `db:"record_id" json:"recordId"`
	OldValue   json.RawMessage `db:"old_value" json:"oldValue,omitempty"`
	NewValue   json.RawMessage `db:"new_value" json:"newValue,omitempty"`
	IPAddress  string          `db:"ip_address" json:"ipAddress"`
	Timestamp  time.Time       `db:"timestamp" json:"timestamp"`
}

// Module tags.
const (
	ModuleAuthentication = "Authentication"
	ModuleUserManagement = "User Management"
	ModuleRoleManagement = "Role Management"
	ModuleSurvey         = "Survey"
)

// Action tags.
const (
	ActionEmail  = "Email"
	ActionLogin  = "Login"
	ActionCreate = "Create"
	ActionUpdate = "Update"
	ActionDelete = "Delete"
	ActionSubmit = "Submit"
)
