// Package refresh holds the pure rules of refresh orchestration: parameter resolution,
// statement parameterization, query planning and cron due detection.
package refresh

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/target/refresh-orchestrator/internal/domain/model"
)

// IDGenerator returns fresh record ids for parameters that have no row yet.
type IDGenerator func() string

// NewRecordID is the default IDGenerator.
func NewRecordID() string {
	return uuid.NewString()
}

// NormalizeName turns a parameter or placeholder name into its canonical key:
// trimmed, lower-cased, spaces replaced with underscores.
func NormalizeName(raw string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_")
}

// ResolveParameters folds organization default rows and the caller's own rows into one
// resolved value per parameter name.
//
// Rows owned by other users are ignored; with an empty userID only organization defaults
// take part. For each name the effective value is the caller's non-deleted, non-empty value,
// else the organization default, else "". When several organization defaults exist the
// earliest created one wins. The result does not depend on the order of rows.
func ResolveParameters(rows []model.QueryParameter, userID string, newID IDGenerator) model.ResolvedParameters {
	if newID == nil {
		newID = NewRecordID
	}

	userRows := make(map[string]*model.QueryParameter)
	orgRows := make(map[string]*model.QueryParameter)
	names := make(map[string]struct{})

	for i := range rows {
		row := &rows[i]
		name := NormalizeName(row.Name)
		if name == "" {
			continue
		}
		switch {
		case row.IsOrgDefault():
			names[name] = struct{}{}
			if row.Deleted() {
				continue
			}
			if cur, ok := orgRows[name]; !ok || createdBefore(row, cur) {
				orgRows[name] = row
			}
		case userID != "" && *row.UserID == userID:
			names[name] = struct{}{}
			if cur, ok := userRows[name]; !ok || preferUserRow(row, cur) {
				userRows[name] = row
			}
		}
	}

	keys := make([]string, 0, len(names))
	for name := range names {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	out := make(model.ResolvedParameters, len(keys))
	for _, name := range keys {
		out[name] = resolveOne(userRows[name], orgRows[name], newID)
	}
	return out
}

func resolveOne(user, org *model.QueryParameter, newID IDGenerator) model.ResolvedParameter {
	var rp model.ResolvedParameter

	if org != nil {
		rp.OrgDefaultRecordID = org.ID
		rp.OrgDefaultValue = org.Value
	} else {
		rp.OrgDefaultRecordID = newID()
	}

	if user != nil {
		rp.UserRecordID = user.ID
		if !user.Deleted() && user.Value != "" {
			rp.EffectiveValue = user.Value
		}
	} else {
		rp.UserRecordID = newID()
	}

	if rp.EffectiveValue == "" {
		rp.EffectiveValue = rp.OrgDefaultValue
	}
	return rp
}

// preferUserRow picks between two rows of the same user and name.
// A live row beats a deleted one; otherwise the earliest created wins.
func preferUserRow(candidate, current *model.QueryParameter) bool {
	if candidate.Deleted() != current.Deleted() {
		return !candidate.Deleted()
	}
	return createdBefore(candidate, current)
}

func createdBefore(a, b *model.QueryParameter) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Values flattens resolved parameters into name -> effective value.
func Values(params model.ResolvedParameters) map[string]string {
	out := make(map[string]string, len(params))
	for name, p := range params {
		out[name] = p.EffectiveValue
	}
	return out
}
