package prompts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/promptlane/promptlib/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render substitutes {{name}} placeholders with values from vars. Every
// placeholder needs a value; unresolved names are reported together so the
// caller sees the full list in one round trip.
func Render(template string, vars map[string]string) (string, error) {
	var missing []string
	reported := make(map[string]bool)
	out := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-2]
		if val, ok := vars[name]; ok {
			return val
		}
		if !reported[name] {
			reported[name] = true
			missing = append(missing, name)
		}
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// ExtractVariables returns the distinct placeholder names in the template, in
// order of first appearance.
func ExtractVariables(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// MergeVariables returns the declared variables plus an implicit empty-value
// variable for every placeholder the declarations do not cover, so a version
// always lists everything its template needs.
func MergeVariables(declared []models.Variable, template string) []models.Variable {
	merged := append([]models.Variable(nil), declared...)
	have := make(map[string]bool, len(merged))
	for _, v := range merged {
		have[v.Name] = true
	}
	for _, name := range ExtractVariables(template) {
		if !have[name] {
			merged = append(merged, models.Variable{Name: name})
		}
	}
	return merged
}
