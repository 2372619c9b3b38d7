// Package removal evaluates a journey's removal criteria against the context
// of a finished action.
package removal

import (
	"slices"
	"strings"
	"unicode"

	"github.com/dukex/journey/pkg/evaluator"
	"github.com/dukex/journey/pkg/models"
	"github.com/oliveagle/jsonpath"
)

const defaultPhoneField = "phone"

// Context is what happened. Zero values mean "not applicable".
type Context struct {
	Contact         *models.Contact
	CallStatus      string
	Transferred     bool
	DurationSeconds int
	Payload         map[string]any
}

// Match describes the condition that fired.
type Match struct {
	Index  int
	Type   models.RemovalConditionType
	Reason string
}

// Evaluate returns the first matching condition.
func Evaluate(criteria models.RemovalCriteria, c Context) (Match, bool) {
	for i, cond := range criteria.Conditions {
		if matches(cond, c) {
			return Match{Index: i, Type: cond.Type, Reason: "removal_criteria:" + string(cond.Type)}, true
		}
	}

	return Match{}, false
}

func matches(cond models.RemovalCondition, c Context) bool {
	switch cond.Type {
	case models.RemovalCallTransferred:
		return c.Transferred
	case models.RemovalCallDuration:
		return c.DurationSeconds > 0 && c.DurationSeconds >= cond.MinSeconds
	case models.RemovalCallStatus:
		if c.CallStatus == "" {
			return false
		}

		return slices.ContainsFunc(cond.Statuses, func(s string) bool {
			return strings.EqualFold(s, c.CallStatus)
		})
	case models.RemovalWebhookPhoneMatch:
		return phoneMatches(cond, c)
	case models.RemovalCustom:
		actual, present := customField(cond.Field, c)

		ok, err := evaluator.Compare(actual, present, cond.Operator, cond.Value)

		return err == nil && ok
	default:
		return false
	}
}

func phoneMatches(cond models.RemovalCondition, c Context) bool {
	if c.Contact == nil || c.Payload == nil {
		return false
	}

	field := cond.PhoneField
	if field == "" {
		field = defaultPhoneField
	}

	raw, ok := PayloadField(c.Payload, field)
	if !ok {
		return false
	}

	phone, ok := raw.(string)
	if !ok {
		return false
	}

	a, b := NormalizePhone(phone), NormalizePhone(c.Contact.Phone)

	return a != "" && a == b
}

func customField(field string, c Context) (any, bool) {
	if key, ok := strings.CutPrefix(field, "payload."); ok {
		return PayloadField(c.Payload, key)
	}

	return evaluator.ContactField(c.Contact, field)
}

// PayloadField reads a dotted path from a webhook payload.
func PayloadField(payload map[string]any, path string) (any, bool) {
	if payload == nil || path == "" {
		return nil, false
	}

	if v, ok := payload[path]; ok {
		return v, true
	}

	v, err := jsonpath.JsonPathLookup(payload, "$."+path)
	if err != nil {
		return nil, false
	}

	return v, true
}

// NormalizePhone keeps the last ten digits so +1 (555) 000-1111 and
// 5550001111 compare equal.
func NormalizePhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}

		return -1
	}, phone)

	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}

	return digits
}
