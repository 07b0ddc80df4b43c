package compare

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"regcheck/internal/descriptor"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Kind tags the outcome of comparing one field.
type Kind int

const (
	Match Kind = iota
	// PresenceMismatch means exactly one side defines the field.
	PresenceMismatch
	// ValueMismatch means both sides define the field with different values.
	ValueMismatch
)

func (k Kind) String() string {
	switch k {
	case Match:
		return "match"
	case PresenceMismatch:
		return "presence-mismatch"
	case ValueMismatch:
		return "value-mismatch"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON reports.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind rendered by MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	for _, c := range []Kind{Match, PresenceMismatch, ValueMismatch} {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown comparison kind %q", b)
}

// Mode selects the comparison policy.
type Mode int

const (
	// ModeRoundTrip compares a submitted descriptor with its read-back copy.
	ModeRoundTrip Mode = iota
	// ModeTemplate compares a file template with a registry entry. The entry
	// may carry apis and docs the template does not declare.
	ModeTemplate
)

func (m Mode) String() string {
	if m == ModeTemplate {
		return "template"
	}
	return "round-trip"
}

const absent = "<absent>"

// FieldResult is the outcome for one field.
type FieldResult struct {
	Field    string `json:"field"`
	Kind     Kind   `json:"kind"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func (f FieldResult) String() string {
	s := fmt.Sprintf("%s: %s (expected %s, actual %s)", f.Field, f.Kind, f.Expected, f.Actual)
	if f.Detail != "" {
		s += ": " + f.Detail
	}
	return s
}

// Result holds every field checked by Compare.
type Result struct {
	Mode   Mode          `json:"-"`
	Fields []FieldResult `json:"fields"`
}

// Mismatches returns the fields that did not match.
func (r Result) Mismatches() []FieldResult {
	var out []FieldResult
	for _, f := range r.Fields {
		if f.Kind != Match {
			out = append(out, f)
		}
	}
	return out
}

// OK reports whether every field matched.
func (r Result) OK() bool {
	return len(r.Mismatches()) == 0
}

// Summary renders one line per mismatch.
func (r Result) Summary() string {
	mm := r.Mismatches()
	if len(mm) == 0 {
		return "all fields match"
	}
	lines := make([]string, len(mm))
	for i, f := range mm {
		lines[i] = f.String()
	}
	return strings.Join(lines, "\n")
}

// NotComparableError means the two descriptors do not describe the same
// service: the name is missing on a side or differs.
type NotComparableError struct {
	Expected *string
	Actual   *string
}

func (e *NotComparableError) Error() string {
	return fmt.Sprintf("descriptors are not comparable: name expected %s, actual %s",
		render(e.Expected), render(e.Actual))
}

// Compare checks actual against expected. It returns a NotComparableError
// and no field results when the names cannot be matched; every other
// divergence is reported as a field result.
func Compare(expected, actual *descriptor.Service, mode Mode) (Result, error) {
	if expected == nil || actual == nil {
		return Result{Mode: mode}, &NotComparableError{}
	}
	if expected.Name == nil || actual.Name == nil || *expected.Name != *actual.Name {
		return Result{Mode: mode}, &NotComparableError{Expected: expected.Name, Actual: actual.Name}
	}

	res := Result{Mode: mode}
	res.Fields = append(res.Fields,
		FieldResult{Field: "name", Kind: Match, Expected: render(expected.Name), Actual: render(actual.Name)},
		scalar("description", expected.Description, actual.Description),
		metaField(expected.Meta, actual.Meta),
		apisField(expected.APIs, actual.APIs, mode),
	)
	res.Fields = append(res.Fields, docsFields(expected.Docs, actual.Docs, mode)...)
	return res, nil
}

func scalar(field string, e, a *string) FieldResult {
	f := FieldResult{Field: field, Expected: render(e), Actual: render(a)}
	switch {
	case e == nil && a == nil:
		f.Kind = Match
	case e == nil || a == nil:
		f.Kind = PresenceMismatch
	case *e != *a:
		f.Kind = ValueMismatch
	default:
		f.Kind = Match
	}
	return f
}

func metaField(e, a map[string]any) FieldResult {
	f := FieldResult{Field: "meta", Expected: renderJSON(e), Actual: renderJSON(a)}
	switch {
	case e == nil && a == nil:
		f.Kind = Match
	case e == nil || a == nil:
		f.Kind = PresenceMismatch
	case !cmp.Equal(e, a, cmpopts.EquateEmpty()):
		f.Kind = ValueMismatch
		f.Detail = compactDiff(cmp.Diff(e, a, cmpopts.EquateEmpty()))
	default:
		f.Kind = Match
	}
	return f
}

func apisField(e, a map[string]string, mode Mode) FieldResult {
	f := FieldResult{Field: "apis", Expected: renderJSON(e), Actual: renderJSON(a)}
	switch {
	case e == nil && a == nil:
		f.Kind = Match
		return f
	case e == nil || a == nil:
		f.Kind = PresenceMismatch
		return f
	}

	if mode == ModeTemplate {
		var missing []string
		for k := range e {
			if _, ok := a[k]; !ok {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			f.Kind = ValueMismatch
			f.Detail = "registry entry lacks declared apis: " + strings.Join(missing, ", ")
		}
		return f
	}

	if !cmp.Equal(e, a, cmpopts.EquateEmpty()) {
		f.Kind = ValueMismatch
		f.Detail = compactDiff(cmp.Diff(e, a, cmpopts.EquateEmpty()))
	}
	return f
}

func docsFields(e, a []descriptor.Doc, mode Mode) []FieldResult {
	whole := FieldResult{Field: "docs", Expected: fmt.Sprintf("%d entries", len(e)), Actual: fmt.Sprintf("%d entries", len(a))}
	switch {
	case e == nil && a == nil:
		whole.Expected, whole.Actual = absent, absent
		return []FieldResult{whole}
	case e == nil:
		whole.Expected = absent
		whole.Kind = PresenceMismatch
		return []FieldResult{whole}
	case a == nil:
		whole.Actual = absent
		whole.Kind = PresenceMismatch
		return []FieldResult{whole}
	}

	if mode == ModeTemplate {
		return templateDocs(whole, e, a)
	}
	return roundTripDocs(whole, e, a)
}

// templateDocs requires a matching registry entry for every template entry,
// regardless of order.
func templateDocs(whole FieldResult, e, a []descriptor.Doc) []FieldResult {
	out := []FieldResult{whole}
	for i, ed := range e {
		found := false
		for _, ad := range a {
			if docMatches(ed, ad) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, FieldResult{
				Field:    fmt.Sprintf("docs[%d]", i),
				Kind:     ValueMismatch,
				Expected: renderDoc(ed),
				Actual:   "no match",
				Detail:   "no registry doc entry has the same description, type and apis",
			})
		}
	}
	return out
}

func roundTripDocs(whole FieldResult, e, a []descriptor.Doc) []FieldResult {
	if len(e) != len(a) {
		whole.Kind = ValueMismatch
		whole.Detail = "number of doc entries differs"
		return []FieldResult{whole}
	}

	out := []FieldResult{whole}
	for i := range e {
		prefix := fmt.Sprintf("docs[%d].", i)
		for _, f := range []FieldResult{
			scalar(prefix+"description", e[i].Description, a[i].Description),
			scalar(prefix+"type", e[i].Type, a[i].Type),
			scalar(prefix+"url", e[i].URL, a[i].URL),
			labelsField(prefix+"apis", e[i].APIs, a[i].APIs),
		} {
			if f.Kind != Match {
				out = append(out, f)
			}
		}
	}
	return out
}

func docMatches(e, a descriptor.Doc) bool {
	if scalar("", e.Description, a.Description).Kind != Match {
		return false
	}
	if scalar("", e.Type, a.Type).Kind != Match {
		return false
	}
	if e.APIs != nil && !sameLabels(e.APIs, a.APIs) {
		return false
	}
	return true
}

func labelsField(field string, e, a []string) FieldResult {
	f := FieldResult{Field: field, Expected: renderJSON(e), Actual: renderJSON(a)}
	switch {
	case e == nil && a == nil:
		f.Kind = Match
	case e == nil || a == nil:
		f.Kind = PresenceMismatch
	case !sameLabels(e, a):
		f.Kind = ValueMismatch
	default:
		f.Kind = Match
	}
	return f
}

// sameLabels compares API label lists as sets.
func sameLabels(e, a []string) bool {
	if a == nil {
		return false
	}
	es := make(map[string]struct{}, len(e))
	for _, v := range e {
		es[v] = struct{}{}
	}
	as := make(map[string]struct{}, len(a))
	for _, v := range a {
		as[v] = struct{}{}
	}
	if len(es) != len(as) {
		return false
	}
	for v := range es {
		if _, ok := as[v]; !ok {
			return false
		}
	}
	return true
}

func render(s *string) string {
	if s == nil {
		return absent
	}
	return fmt.Sprintf("%q", *s)
}

func renderJSON(v any) string {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return absent
		}
	case map[string]string:
		if t == nil {
			return absent
		}
	case []string:
		if t == nil {
			return absent
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func renderDoc(d descriptor.Doc) string {
	return fmt.Sprintf("{description: %s, type: %s, apis: %s}", render(d.Description), render(d.Type), renderJSON(d.APIs))
}

// compactDiff strips cmp's layout whitespace so the diff fits one line
// of a report table.
func compactDiff(diff string) string {
	var parts []string
	for _, line := range strings.Split(diff, "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "\u00a0", " "))
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "+") {
			parts = append(parts, strings.Join(strings.Fields(line), " "))
		}
	}
	return strings.Join(parts, "; ")
}
