// ABOUTME: Rule-based input validation with composable per-field rule sequences
// ABOUTME: Implements the require-at-least-one combinator over ordered rule tokens

package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// leaf performs the primitive per-value checks (email, min, max, alphanum).
var leaf = validator.New()

// Rules maps a field name to either a single rule string ("required|email")
// or an ordered sequence of rule strings.
type Rules map[string]any

// Errors is a field-keyed map of validation messages. A nil or empty map
// means the payload passed.
type Errors map[string][]string

// Any reports whether at least one field failed.
func (e Errors) Any() bool {
	return len(e) > 0
}

func (e Errors) add(field, msg string) {
	e[field] = append(e[field], msg)
}

const requiredWithoutAll = "required_without_all:"

// RequireAtLeastOne makes every field in the rule set individually optional
// while requiring that at least one of them is present in the payload. It
// builds one shared conditional rule over all keys and appends it to each
// field's sequence, promoting bare rule strings to sequences first.
//
// A rule set is always a package-level literal, never user input, so an empty
// one is a programming error and panics.
func RequireAtLeastOne(rules Rules) Rules {
	if len(rules) == 0 {
		panic("validate: RequireAtLeastOne called with an empty rule set")
	}

	keys := make([]string, 0, len(rules))
	for k := range rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	shared := requiredWithoutAll + strings.Join(keys, ",")

	out := make(Rules, len(rules))
	for field, value := range rules {
		switch v := value.(type) {
		case string:
			out[field] = []string{v, shared}
		case []string:
			seq := make([]string, 0, len(v)+1)
			seq = append(seq, v...)
			seq = append(seq, shared)
			out[field] = seq
		default:
			panic(fmt.Sprintf("validate: rule for field %q must be string or []string, got %T", field, value))
		}
	}
	return out
}

// Check validates the payload against the rule set and returns field-keyed
// errors. Rule tokens within a field run in order. Fields that are absent
// skip every token except the required variants.
func Check(payload map[string]any, rules Rules) Errors {
	errs := make(Errors)

	fields := make([]string, 0, len(rules))
	for f := range rules {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value, ok := payload[field]
		present := ok && !isEmpty(value)

		for _, token := range tokens(rules[field]) {
			switch {
			case token == "required":
				if !present {
					errs.add(field, fmt.Sprintf("The %s field is required.", field))
				}
			case strings.HasPrefix(token, requiredWithoutAll):
				group := strings.Split(strings.TrimPrefix(token, requiredWithoutAll), ",")
				if !present && noneOfPresent(payload, group, field) {
					errs.add(field, fmt.Sprintf("The %s field is required when none of %s are present.",
						field, strings.Join(group, ", ")))
				}
			case !present:
				// Optional field, nothing to check.
			default:
				if msg := checkToken(payload, field, value, token); msg != "" {
					errs.add(field, msg)
				}
			}
		}
	}

	if errs.Any() {
		return errs
	}
	return nil
}

// tokens normalizes a rule value into an ordered token list. Rule strings may
// pack several tokens separated by "|".
func tokens(value any) []string {
	switch v := value.(type) {
	case string:
		return strings.Split(v, "|")
	case []string:
		var out []string
		for _, s := range v {
			out = append(out, strings.Split(s, "|")...)
		}
		return out
	default:
		panic(fmt.Sprintf("validate: rule must be string or []string, got %T", value))
	}
}

// noneOfPresent reports whether every field in group (other than self) is
// absent from the payload.
func noneOfPresent(payload map[string]any, group []string, self string) bool {
	for _, f := range group {
		if f == self {
			continue
		}
		if v, ok := payload[f]; ok && !isEmpty(v) {
			return false
		}
	}
	return true
}

func checkToken(payload map[string]any, field string, value any, token string) string {
	name, arg, _ := strings.Cut(token, ":")

	switch name {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("The %s field must be a string.", field)
		}
	case "email":
		if leaf.Var(value, "email") != nil {
			return fmt.Sprintf("The %s field must be a valid email address.", field)
		}
	case "alphanum":
		if leaf.Var(value, "alphanum") != nil {
			return fmt.Sprintf("The %s field must only contain letters and numbers.", field)
		}
	case "min":
		if leaf.Var(value, "min="+arg) != nil {
			return fmt.Sprintf("The %s field must be at least %s characters.", field, arg)
		}
	case "max":
		if leaf.Var(value, "max="+arg) != nil {
			return fmt.Sprintf("The %s field must not exceed %s characters.", field, arg)
		}
	case "confirmed":
		// Compare as strings: the payload is arbitrary JSON, and comparing two
		// non-comparable values (maps, slices) through interfaces panics.
		current, okValue := value.(string)
		confirmation, okConf := payload[field+"_confirmation"].(string)
		if !okValue || !okConf || confirmation != current {
			return fmt.Sprintf("The %s field confirmation does not match.", field)
		}
	default:
		panic(fmt.Sprintf("validate: unknown rule token %q for field %q", token, field))
	}
	return ""
}

// isEmpty treats nil and the empty string as absent, matching form semantics.
func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	return false
}
