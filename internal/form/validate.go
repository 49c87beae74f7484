// internal/form/validate.go
//
// Forms subsystem: server-side schema validation.
//
// Context
//   When a visitor posts a form, every field is checked against its FieldDef
//   before the security gate or the transport ever see the data.  The result
//   is a ValidationResult: field name → first violated rule's message.  An
//   empty result means the submission is well-formed.
//
// Rule order per field
//   required → length bounds → kind check → pattern → option membership →
//   numeric range.  Only the first failing rule is reported for a field;
//   fields that pass have no entry.
//
// Output
//   Clean values are typed: strings for text kinds (trimmed, phone digits
//   compacted, PAN upper-cased), []string of option IDs for multiselect,
//   float64 for number, and bool for checkbox.  Translate then turns option
//   IDs into their display labels for transmission.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/yanizio/agrsite/internal/security"
)

// ValidationResult maps field name → user-facing message.
type ValidationResult map[string]string

// OK reports whether no field failed.
func (v ValidationResult) OK() bool { return len(v) == 0 }

// validationError wraps a non-empty ValidationResult and satisfies error so
// callers can tell user input errors from system failures.
type validationError struct{ Fields ValidationResult }

func (ve validationError) Error() string { return "form validation failed" }

// IsValidationError reports whether err came from failed validation.
func IsValidationError(err error) bool {
	var ve validationError
	return errors.As(err, &ve)
}

// FieldErrors extracts the per-field messages from a validation error.
func FieldErrors(err error) (ValidationResult, bool) {
	var ve validationError
	if errors.As(err, &ve) {
		return ve.Fields, true
	}
	return nil, false
}

// -----------------------------------------------------------------------------
// Public API
// -----------------------------------------------------------------------------

// Validate checks posted values against fd.  It returns typed clean values
// and the per-field result.  Clean values are only meaningful when the
// result is OK.
func Validate(fd *FormDef, posted url.Values) (map[string]any, ValidationResult) {
	clean := make(map[string]any, len(fd.Fields))
	res := make(ValidationResult)

	for i := range fd.Fields {
		f := &fd.Fields[i]
		val, msg := checkField(f, posted[f.Name])
		if msg != "" {
			res[f.Name] = msg
			continue
		}
		if val != nil {
			clean[f.Name] = val
		}
	}
	return clean, res
}

// Check is Validate folded into one error: nil, or a validationError.
func Check(fd *FormDef, posted url.Values) (map[string]any, error) {
	clean, res := Validate(fd, posted)
	if !res.OK() {
		return nil, validationError{Fields: res}
	}
	return clean, nil
}

// Translate returns a copy of clean with coded option IDs replaced by their
// labels.  Multiselect values become a label list, or one ", "-joined string
// when the field sets join.  Unknown IDs pass through unchanged.
func Translate(fd *FormDef, clean map[string]any) map[string]any {
	out := make(map[string]any, len(clean))
	for k, v := range clean {
		out[k] = v
	}

	for i := range fd.Fields {
		f := &fd.Fields[i]
		if len(f.Options) == 0 {
			continue
		}
		labels := lo.SliceToMap(f.Options, func(o OptionDef) (string, string) { return o.ID, o.Label })

		switch v := clean[f.Name].(type) {
		case string:
			out[f.Name] = lo.ValueOr(labels, v, v)
		case []string:
			named := lo.Map(v, func(id string, _ int) string { return lo.ValueOr(labels, id, id) })
			if f.Join {
				out[f.Name] = strings.Join(named, ", ")
			} else {
				out[f.Name] = named
			}
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Field-level helpers
// -----------------------------------------------------------------------------

// checkField returns the clean value or the first violated rule's message.
// A nil value with no message means "omit from output".
func checkField(f *FieldDef, raw []string) (any, string) {
	switch f.Kind {
	case KindMultiSelect:
		ids := lo.Compact(lo.Map(raw, func(s string, _ int) string { return strings.TrimSpace(s) }))
		if len(ids) == 0 {
			if f.Required {
				return nil, requiredMsg(f)
			}
			return []string{}, ""
		}
		for _, id := range ids {
			if !optionAllowed(f, id) {
				return nil, optionMsg(f)
			}
		}
		return lo.Uniq(ids), ""

	case KindCheckbox:
		checked := isChecked(first(raw))
		if f.Required && !checked {
			return nil, requiredMsg(f)
		}
		return checked, ""
	}

	val := strings.TrimSpace(first(raw))
	switch f.Kind {
	case KindPhone:
		val = security.StripSpace(val)
	case KindPAN:
		val = strings.ToUpper(val)
	}

	if val == "" {
		if f.Required {
			return nil, requiredMsg(f)
		}
		if f.Kind == KindNumber {
			return nil, ""
		}
		return "", ""
	}

	// A malformed address is reported as such even when it is also too long.
	if f.Kind == KindEmail && !security.HasEmailShape(val) {
		return nil, invalidMsg(f)
	}
	if msg := lengthCheck(f, val); msg != "" {
		return nil, msg
	}

	var num float64
	switch f.Kind {
	case KindEmail:
		if !security.IsValidEmail(val) {
			return nil, invalidMsg(f)
		}
	case KindPhone:
		if !security.IsValidPhone(val) {
			return nil, invalidMsg(f)
		}
	case KindPAN:
		if !security.IsValidPAN(val) {
			return nil, invalidMsg(f)
		}
	case KindNumber:
		n, err := strconv.ParseFloat(val, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, invalidMsg(f)
		}
		num = n
	}

	if f.re != nil && !f.re.MatchString(val) {
		return nil, patternMsg(f)
	}

	if f.Kind == KindSelect && !optionAllowed(f, val) {
		return nil, optionMsg(f)
	}

	if f.Kind == KindNumber {
		if f.Min != nil && num < *f.Min {
			return nil, pick(f.Messages.Min, fmt.Sprintf("%s must be at least %s", f.Label, fmtNum(*f.Min)))
		}
		if f.Max != nil && num > *f.Max {
			return nil, pick(f.Messages.Max, fmt.Sprintf("%s must be at most %s", f.Label, fmtNum(*f.Max)))
		}
		return num, ""
	}

	return val, ""
}

func first(raw []string) string {
	if len(raw) == 0 {
		return ""
	}
	return raw[0]
}

func isChecked(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0", "off", "no":
		return false
	}
	return true
}

// lengthCheck validates minlength / maxlength rules in runes.
func lengthCheck(f *FieldDef, s string) string {
	n := utf8.RuneCountInString(s)
	if f.MinLength > 0 && n < f.MinLength {
		return pick(f.Messages.MinLength, fmt.Sprintf("%s must be at least %d characters", f.Label, f.MinLength))
	}
	if f.MaxLength > 0 && n > f.MaxLength {
		return pick(f.Messages.MaxLength, fmt.Sprintf("%s must be less than %d characters", f.Label, f.MaxLength))
	}
	return ""
}

func optionAllowed(f *FieldDef, id string) bool {
	return lo.ContainsBy(f.Options, func(o OptionDef) bool { return o.ID == id })
}

func fmtNum(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func pick(custom, fallback string) string {
	if custom != "" {
		return custom
	}
	return fallback
}

// user-friendly default messages
func requiredMsg(f *FieldDef) string {
	return pick(f.Messages.Required, f.Label+" is required")
}

func invalidMsg(f *FieldDef) string {
	if f.Messages.Invalid != "" {
		return f.Messages.Invalid
	}
	switch f.Kind {
	case KindEmail:
		return "Please enter a valid email address"
	case KindPhone:
		return "Please enter a valid 10-digit Indian phone number"
	case KindPAN:
		return "Please enter a valid PAN number (e.g., ABCDE1234F)"
	case KindNumber:
		return f.Label + " must be a number"
	}
	return f.Label + " is invalid"
}

func patternMsg(f *FieldDef) string {
	return pick(f.Messages.Pattern, f.Label+" has an invalid format")
}

func optionMsg(f *FieldDef) string {
	return pick(f.Messages.Option, "Please select a valid "+strings.ToLower(f.Label))
}
