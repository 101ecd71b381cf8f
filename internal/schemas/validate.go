// Package schemas provides stage output contracts and the validator that gates
// every executor result before it is admitted into a run.
package schemas

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

const rootField = "(root)"

// timestampLayouts are the ISO-8601 forms accepted for timestamp fields
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func init() {
	// Timestamp fields render as date-time; accept the same layouts executors emit.
	gojsonschema.FormatCheckers.Add("date-time", timestampChecker{})
}

type timestampChecker struct{}

func (timestampChecker) IsFormat(input any) bool {
	s, ok := input.(string)
	return ok && isTimestamp(s)
}

// located is a violation with its position in contract field order
type located struct {
	key []int
	v   Violation
}

// Validate checks doc against the JSON Schema rendered from the contract. It
// returns nil when the document is valid, otherwise a non-empty list of
// violations in contract field order.
func Validate(c Contract, doc map[string]any) Violations {
	if doc == nil {
		return Violations{{Kind: Malformed, Field: rootField, Message: "document is null"}}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return Violations{{Kind: Malformed, Field: rootField, Message: err.Error()}}
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(c.JSONSchema()))
	if err != nil {
		return Violations{{Kind: Malformed, Field: rootField, Message: fmt.Sprintf("contract %s: %v", c.Stage, err)}}
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return Violations{{Kind: Malformed, Field: rootField, Message: err.Error()}}
	}

	var found []located
	for _, re := range result.Errors() {
		if l, ok := c.violation(re); ok {
			found = append(found, l)
		}
	}

	// JSON Schema has no keyed uniqueness, so duplicates are found on the decoded document.
	var plainDoc map[string]any
	if err := json.Unmarshal(raw, &plainDoc); err == nil {
		duplicates("", nil, c.Fields, plainDoc, &found)
	}

	if len(found) == 0 {
		return nil
	}
	sort.SliceStable(found, func(i, j int) bool { return lessKey(found[i].key, found[j].key) })
	out := make(Violations, 0, len(found))
	for _, l := range found {
		out = append(out, l.v)
	}
	return out
}

// violation maps one gojsonschema result onto the contract. Null optional
// fields are not violations.
func (c Contract) violation(re gojsonschema.ResultError) (located, bool) {
	segs := contextSegments(re.Context())
	details := re.Details()
	if re.Type() == "required" {
		segs = append(segs, fmt.Sprint(details["property"]))
	}
	path, key, decl, item := locate(c.Fields, segs)
	if path == "" {
		path = rootField
	}

	v := Violation{Field: path, Value: plainValue(re.Value())}
	switch re.Type() {
	case "required":
		v = Violation{Kind: MissingField, Field: path}

	case "invalid_type":
		switch {
		case details["given"] == gojsonschema.TYPE_NULL:
			if decl != nil && !decl.Required && !item {
				return located{}, false
			}
			v = Violation{Kind: MissingField, Field: path}
		case decl != nil && decl.Type == TypeEnum:
			v.Kind = InvalidEnumValue
			v.Allowed = decl.Enum
		default:
			v.Kind = InvalidType
			v.Message = fmt.Sprintf("expected %v, got %v", details["expected"], details["given"])
		}

	case "enum":
		v.Kind = InvalidEnumValue
		if decl != nil {
			v.Allowed = decl.Enum
		}

	case "number_gte", "number_lte", "number_gt", "number_lt":
		v.Kind = OutOfRange
		if decl != nil {
			v.Bounds = decl.Range
		}

	case "array_min_items":
		items, _ := re.Value().([]any)
		v.Kind = OutOfRange
		v.Value = len(items)
		v.Message = "too few items"
		if decl != nil {
			v.Bounds = AtLeast(float64(decl.MinItems))
		}

	case "format":
		v.Kind = InvalidFormat
		v.Message = "not an ISO-8601 timestamp"

	default:
		v.Kind = Malformed
		v.Message = re.Description()
	}
	return located{key: key, v: v}, true
}

// contextSegments splits a gojsonschema context into its path segments without the root
func contextSegments(ctx *gojsonschema.JsonContext) []string {
	if ctx == nil {
		return nil
	}
	segs := strings.Split(ctx.String("\x1f"), "\x1f")
	if len(segs) > 0 && segs[0] == rootField {
		segs = segs[1:]
	}
	return segs
}

// locate walks segs through the contract. It returns the bracketed field path,
// the contract order key, the declaration reached and whether it is an array element.
func locate(fields []Field, segs []string) (path string, key []int, decl *Field, item bool) {
	level := fields
	for _, seg := range segs {
		if decl != nil && decl.Type == TypeArray {
			i, _ := strconv.Atoi(seg)
			path = fmt.Sprintf("%s[%d]", path, i)
			key = append(key, i)
			decl, item, level = decl.Items, true, nil
			if decl != nil {
				level = decl.Fields
			}
			continue
		}
		idx := fieldIndex(level, seg)
		path = joinPath(path, seg)
		key = append(key, idx)
		decl, item = nil, false
		if idx < len(level) {
			decl = &level[idx]
		}
		level = nil
		if decl != nil {
			level = decl.Fields
		}
	}
	return path, key, decl, item
}

// duplicates reports array elements whose UniqueBy member repeats an earlier element
func duplicates(prefix string, key []int, fields []Field, obj map[string]any, out *[]located) {
	for i, f := range fields {
		val, ok := obj[f.Name]
		if !ok {
			continue
		}
		path, fieldKey := joinPath(prefix, f.Name), appendKey(key, i)
		switch f.Type {
		case TypeObject:
			if child, ok := val.(map[string]any); ok {
				duplicates(path, fieldKey, f.Fields, child, out)
			}
		case TypeArray:
			items, ok := val.([]any)
			if !ok || f.Items == nil {
				continue
			}
			seen := make(map[string]bool)
			for j, it := range items {
				child, ok := it.(map[string]any)
				if !ok {
					continue
				}
				itemPath, itemKey := fmt.Sprintf("%s[%d]", path, j), appendKey(fieldKey, j)
				duplicates(itemPath, itemKey, f.Items.Fields, child, out)
				if f.UniqueBy == "" {
					continue
				}
				id, ok := child[f.UniqueBy].(string)
				if !ok {
					continue
				}
				if seen[id] {
					*out = append(*out, located{
						key: appendKey(itemKey, fieldIndex(f.Items.Fields, f.UniqueBy)),
						v:   Violation{Kind: DuplicateValue, Field: joinPath(itemPath, f.UniqueBy), Value: id},
					})
				}
				seen[id] = true
			}
		}
	}
}

// fieldIndex is the declaration position of name; undeclared members sort last
func fieldIndex(fields []Field, name string) int {
	for i, f := range fields {
		if f.Name == name {
			return i
		}
	}
	return len(fields)
}

func appendKey(key []int, i int) []int {
	out := make([]int, len(key), len(key)+1)
	copy(out, key)
	return append(out, i)
}

func lessKey(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func isTimestamp(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// plainValue turns the json.Number values gojsonschema reports into float64
func plainValue(v any) any {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return v
}
