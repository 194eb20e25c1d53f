package role

import "time"

// Role is a row of sp_role_master.
type Role struct {
	RoleID          int64      `db:"role_id" json:"roleId"`
	RoleName        string     `db:"role_name" json:"roleName"`
	RoleDescription *string    `db:"role_description" json:"roleDescription,omitempty"`
	Status          string     `db:"status" json:"status"`
	UserCount       int64      `db:"user_count" json:"userCount"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}
