package model

import "time"

// QueryParameter is a named template value scoped to an organization, optionally to one user.
// A nil UserID marks the organization default.
type QueryParameter struct {
	ID             string     `json:"id"                   db:"id"`
	OrganizationID string     `json:"organization_id"      db:"organization_id"`
	UserID         *string    `json:"user_id,omitempty"    db:"user_id"`
	Name           string     `json:"name"                 db:"name"`
	Value          string     `json:"value"                db:"value"`
	CreatedAt      time.Time  `json:"created_at"           db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"           db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsOrgDefault reports whether the row is the organization-wide value.
func (p *QueryParameter) IsOrgDefault() bool {
	return p.UserID == nil
}

// Deleted reports whether the row has been soft-deleted.
func (p *QueryParameter) Deleted() bool {
	return p.DeletedAt != nil
}

// ResolvedParameter is the outcome of resolving one parameter name.
// Record ids are always populated so callers can upsert without another lookup.
type ResolvedParameter struct {
	EffectiveValue     string `json:"effective_value"`
	UserRecordID       string `json:"user_record_id"`
	OrgDefaultRecordID string `json:"org_default_record_id"`
	OrgDefaultValue    string `json:"org_default_value"`
}

// ResolvedParameters maps normalized parameter names to their resolution.
type ResolvedParameters map[string]ResolvedParameter

// ParameterWrite is a single value to store for an organization or one of its users.
type ParameterWrite struct {
	ID             string
	OrganizationID string
	UserID         *string
	Name           string
	Value          string
}
