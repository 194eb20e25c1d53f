package entity

import "time"

// User represents an account row in sp_user_master. Coordinators are
// provisioned by administrators; there is no self-signup and no password.
type User struct {
	UserID        int64      `db:"user_id" json:"userId"`
	FullName      string     `db:"full_name" json:"fullName"`
	EmailAddress  string     `db:"email_address" json:"email"`
	ContactNumber string     `db:"contact_number" json:"contactNumber"`
	Status        string     `db:"status" json:"status"` // Active / Inactive
	RoleID        *int64     `db:"role_id" json:"roleId,omitempty"`
	StudyID       *int64     `db:"study_id" json:"studyId,omitempty"`
	SiteID        *int64     `db:"site_id" json:"siteId,omitempty"`
	CreatedBy     *int64     `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy     *int64     `db:"updated_by" json:"updatedBy,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}

const (
	StatusActive   = "Active"
	StatusInactive = "Inactive"
)

// Detail is the user row joined with role, study and site reference data.
// It is the projection hydrated into session token claims on login and
// returned by the admin read endpoints.
type Detail struct {
	UserID          int64      `db:"user_id" json:"userId"`
	FullName        string     `db:"full_name" json:"fullName"`
	EmailAddress    string     `db:"email_address" json:"email"`
	ContactNumber   string     `db:"contact_number" json:"contactNumber"`
	Status          string     `db:"status" json:"status"`
	RoleID          *int64     `db:"role_id" json:"roleId,omitempty"`
	RoleName        *string    `db:"role_name" json:"roleName,omitempty"`
	RoleDescription *string    `db:"role_description" json:"roleDescription,omitempty"`
	StudyID         *int64     `db:"study_id" json:"studyId,omitempty"`
	StudyTitle      *string    `db:"study_title" json:"studyTitle,omitempty"`
	StudyNumber     *string    `db:"study_number" json:"studyNumber,omitempty"`
	SiteID          *int64     `db:"site_id" json:"siteId,omitempty"`
	SiteName        *string    `db:"site_name" json:"siteName,omitempty"`
	SiteCode        *string    `db:"site_code" json:"siteCode,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
	CreatedByName   *string    `db:"created_by_name" json:"createdByName,omitempty"`
	UpdatedByName   *string    `db:"updated_by_name" json:"updatedByName,omitempty"`
}

// Update is a typed partial update: nil fields are left untouched. This
// replaces ad-hoc per-field SQL assembly with a fixed, validated shape.
type Update struct {
	FullName      *string
	EmailAddress  *string
	ContactNumber *string
	RoleID        *int64
	StudyID       *int64
	SiteID        *int64
	Status        *string
	UpdatedBy     *int64
}

// Fields returns the set fields keyed by column name, for audit snapshots.
func (u Update) Fields() map[string]any {
	m := map[string]any{}
	if u.FullName != nil {
		m["full_name"] = *u.FullName
	}
	if u.EmailAddress != nil {
		m["email_address"] = *u.EmailAddress
	}
	if u.ContactNumber != nil {
		m["contact_number"] = *u.ContactNumber
	}
	if u.RoleID != nil {
		m["role_id"] = *u.RoleID
	}
	if u.StudyID != nil {
		m["study_id"] = *u.StudyID
	}
	if u.SiteID != nil {
		m["site_id"] = *u.SiteID
	}
	if u.Status != nil {
		m["status"] = *u.Status
	}
	return m
}

// IsEmpty reports whether no field is set.
func (u Update) IsEmpty() bool {
	return u.FullName == nil && u.EmailAddress == nil && u.ContactNumber == nil &&
		u.RoleID == nil && u.StudyID == nil && u.SiteID == nil &&
		u.Status == nil && u.UpdatedBy == nil
}

// Filter narrows the admin list query.
type Filter struct {
	Page    int
	Limit   int
	Search  string
	RoleID  *int64
	Status  *string
	StudyID *int64
	SiteID  *int64
}
