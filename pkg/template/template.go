// Package template substitutes {{variable}} placeholders in message content,
// webhook requests and voice scripts.
package template

import (
	"fmt"
	"maps"
	"regexp"
	"strings"

	"github.com/dukex/journey/pkg/models"
	"github.com/oliveagle/jsonpath"
)

var placeholder = regexp.MustCompile(`{{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*}}`)

// HasPlaceholders reports whether s contains at least one placeholder.
func HasPlaceholders(s string) bool {
	return placeholder.MatchString(s)
}

// Render replaces every placeholder in s. Dotted names walk nested maps.
// Unknown names render as an empty string.
func Render(s string, vars map[string]any) string {
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]

		v, ok := Lookup(vars, name)
		if !ok || v == nil {
			return ""
		}

		return fmt.Sprint(v)
	})
}

// RenderValue walks strings inside maps and slices, as found in webhook bodies.
func RenderValue(v any, vars map[string]any) any {
	switch t := v.(type) {
	case string:
		return Render(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = RenderValue(item, vars)
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = RenderValue(item, vars)
		}

		return out
	default:
		return v
	}
}

// RenderMap renders each value of a string map, as used for HTTP headers.
func RenderMap(m map[string]string, vars map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = Render(v, vars)
	}

	return out
}

// Lookup resolves name in vars, trying the flat key first and then the
// dotted path.
func Lookup(vars map[string]any, name string) (any, bool) {
	if v, ok := vars[name]; ok {
		return v, true
	}

	if !strings.Contains(name, ".") {
		return nil, false
	}

	v, err := jsonpath.JsonPathLookup(vars, "$."+name)
	if err != nil {
		return nil, false
	}

	return v, true
}

// Variables builds the substitution scope for a contact. Contact fields are
// available flat (firstName) and namespaced (contact.firstName); custom
// attributes flat and under contact.attributes. extra wins on conflicts.
func Variables(contact *models.Contact, extra map[string]any) map[string]any {
	vars := map[string]any{}

	if contact != nil {
		fields := map[string]any{
			"id":         contact.ID,
			"firstName":  contact.FirstName,
			"lastName":   contact.LastName,
			"fullName":   contact.FullName(),
			"phone":      contact.Phone,
			"email":      contact.Email,
			"leadStatus": contact.LeadStatus,
			"timezone":   contact.Timezone,
		}

		for k, v := range contact.Attributes {
			vars[k] = v
		}

		maps.Copy(vars, fields)

		nested := maps.Clone(fields)
		for k, v := range contact.Attributes {
			if _, taken := nested[k]; !taken {
				nested[k] = v
			}
		}

		nested["attributes"] = contact.Attributes
		vars["contact"] = nested
		vars["contactId"] = contact.ID
	}

	maps.Copy(vars, extra)

	return vars
}
