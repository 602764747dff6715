package refresh

import (
	"regexp"

	"github.com/target/refresh-orchestrator/internal/domain/model"
)

var placeholderPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Parameterize replaces every {{ name }} placeholder with the resolved effective value.
// Unknown placeholders stay in the statement verbatim. Values are inserted as-is with no quoting.
func Parameterize(statement string, params model.ResolvedParameters) string {
	if len(params) == 0 {
		return statement
	}
	return placeholderPattern.ReplaceAllStringFunc(statement, func(match string) string {
		inner := placeholderPattern.FindStringSubmatch(match)[1]
		if p, ok := params[NormalizeName(inner)]; ok {
			return p.EffectiveValue
		}
		return match
	})
}

// Placeholders lists the normalized names referenced by a statement, in order of first use.
func Placeholders(statement string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(statement, -1) {
		name := NormalizeName(m[1])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
