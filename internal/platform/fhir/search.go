package fhir

import (
	"fmt"
	"strings"
	"time"
)

// SearchPrefix is a FHIR search prefix for ordered values.
type SearchPrefix string

const (
	PrefixEq SearchPrefix = "eq"
	PrefixNe SearchPrefix = "ne"
	PrefixGt SearchPrefix = "gt"
	PrefixLt SearchPrefix = "lt"
	PrefixGe SearchPrefix = "ge"
	PrefixLe SearchPrefix = "le"
	PrefixSa SearchPrefix = "sa" // starts after
	PrefixEb SearchPrefix = "eb" // ends before
	PrefixAp SearchPrefix = "ap" // approximately
)

// SearchModifier is a FHIR search modifier (":exact", ":contains", ...).
type SearchModifier string

const (
	ModifierExact    SearchModifier = "exact"
	ModifierContains SearchModifier = "contains"
)

// ParsedSearch holds a search value split from its prefix.
type ParsedSearch struct {
	Prefix SearchPrefix
	Value  string
}

// ParseSearchValue extracts the prefix from a FHIR search value.
// "ge2020-09-03" -> (ge, "2020-09-03"); "2020" -> (eq, "2020").
func ParseSearchValue(raw string) ParsedSearch {
	if len(raw) >= 2 {
		prefix := SearchPrefix(strings.ToLower(raw[:2]))
		switch prefix {
		case PrefixEq, PrefixNe, PrefixGt, PrefixLt, PrefixGe, PrefixLe, PrefixSa, PrefixEb, PrefixAp:
			return ParsedSearch{Prefix: prefix, Value: raw[2:]}
		}
	}
	return ParsedSearch{Prefix: PrefixEq, Value: raw}
}

// ParseParamModifier splits "name:exact" into ("name", "exact").
func ParseParamModifier(paramName string) (string, SearchModifier) {
	parts := strings.SplitN(paramName, ":", 2)
	if len(parts) == 2 {
		return parts[0], SearchModifier(parts[1])
	}
	return parts[0], ""
}

// dateLayouts maps the length of a reduced-precision date input to its
// layout and the step that advances one unit of that precision.
var dateLayouts = []struct {
	length int
	layout string
	step   func(time.Time) time.Time
}{
	{4, "2006", func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }},
	{7, "2006-01", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }},
	{10, "2006-01-02", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }},
	{13, "2006-01-02T15", func(t time.Time) time.Time { return t.Add(time.Hour) }},
	{16, "2006-01-02T15:04", func(t time.Time) time.Time { return t.Add(time.Minute) }},
}

// DateRange resolves a date input to the half-open interval [start, end)
// covering the whole unit of precision supplied: a day-only input spans the
// whole day, a year-only input the whole year. Full timestamps collapse to
// an instant (end == start).
func DateRange(value string) (start, end time.Time, err error) {
	for _, dl := range dateLayouts {
		if len(value) == dl.length {
			t, perr := time.Parse(dl.layout, value)
			if perr != nil {
				return time.Time{}, time.Time{}, perr
			}
			return t, dl.step(t), nil
		}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, perr := time.Parse(layout, value); perr == nil {
			return t, t, nil
		}
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unable to parse date: %s", value)
}

// DateClause generates SQL for one date token with prefix support. With a
// reduced-precision value the comparison is against the covered range, so
// gt2020 matches only values after 2020 ends and eq2020-09-03 matches the
// whole day.
func DateClause(column, value string, argIdx int) (string, []interface{}, int, error) {
	parsed := ParseSearchValue(value)
	start, end, err := DateRange(parsed.Value)
	if err != nil {
		return "", nil, argIdx, NewValidation("invalid date value %q", parsed.Value)
	}

	switch parsed.Prefix {
	case PrefixGt, PrefixSa:
		if end.After(start) {
			return fmt.Sprintf("%s >= $%d", column, argIdx), []interface{}{end}, argIdx + 1, nil
		}
		return fmt.Sprintf("%s > $%d", column, argIdx), []interface{}{start}, argIdx + 1, nil
	case PrefixLt, PrefixEb:
		return fmt.Sprintf("%s < $%d", column, argIdx), []interface{}{start}, argIdx + 1, nil
	case PrefixGe:
		return fmt.Sprintf("%s >= $%d", column, argIdx), []interface{}{start}, argIdx + 1, nil
	case PrefixLe:
		if end.After(start) {
			return fmt.Sprintf("%s < $%d", column, argIdx), []interface{}{end}, argIdx + 1, nil
		}
		return fmt.Sprintf("%s <= $%d", column, argIdx), []interface{}{start}, argIdx + 1, nil
	case PrefixNe:
		if end.After(start) {
			clause := fmt.Sprintf("(%s < $%d OR %s >= $%d)", column, argIdx, column, argIdx+1)
			return clause, []interface{}{start, end}, argIdx + 2, nil
		}
		return fmt.Sprintf("%s != $%d", column, argIdx), []interface{}{start}, argIdx + 1, nil
	default: // eq, ap
		// ap's approximation window is the unit of precision supplied, the
		// same covered range eq matches.
		if end.After(start) {
			clause := fmt.Sprintf("(%s >= $%d AND %s < $%d)", column, argIdx, column, argIdx+1)
			return clause, []interface{}{start, end}, argIdx + 2, nil
		}
		return fmt.Sprintf("%s = $%d", column, argIdx), []interface{}{start}, argIdx + 1, nil
	}
}

// TokenClause handles one token in the formats "system|code", "|code",
// "system|", or bare "code".
func TokenClause(systemCol, codeCol, value string, argIdx int) (string, []interface{}, int) {
	if strings.Contains(value, "|") {
		parts := strings.SplitN(value, "|", 2)
		system, code := parts[0], parts[1]

		// Without a system column the system half cannot be honored; only
		// the code half is matched.
		if systemCol == "" {
			return fmt.Sprintf("%s = $%d", codeCol, argIdx), []interface{}{code}, argIdx + 1
		}

		switch {
		case system != "" && code != "":
			clause := fmt.Sprintf("(%s = $%d AND %s = $%d)", systemCol, argIdx, codeCol, argIdx+1)
			return clause, []interface{}{system, code}, argIdx + 2
		case system != "":
			return fmt.Sprintf("%s = $%d", systemCol, argIdx), []interface{}{system}, argIdx + 1
		case code != "":
			return fmt.Sprintf("%s = $%d", codeCol, argIdx), []interface{}{code}, argIdx + 1
		}
	}
	return fmt.Sprintf("%s = $%d", codeCol, argIdx), []interface{}{value}, argIdx + 1
}

// StringClause handles one string token over one or more columns. Multiple
// columns disjoin (a "name" search matches given OR family). The default
// comparison is a case-insensitive prefix match.
func StringClause(columns []string, value string, modifier SearchModifier, argIdx int) (string, []interface{}, int) {
	var pattern string
	op := "ILIKE"
	switch modifier {
	case ModifierExact:
		op = "="
		pattern = value
	case ModifierContains:
		pattern = "%" + value + "%"
	default:
		pattern = value + "%"
	}

	parts := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf("%s %s $%d", col, op, argIdx)
		args[i] = pattern
		argIdx++
	}
	if len(parts) == 1 {
		return parts[0], args, argIdx
	}
	return "(" + strings.Join(parts, " OR ") + ")", args, argIdx
}

// ReferenceClause handles one reference token: "ResourceType/uuid" or bare
// "uuid". Non-UUID values resolve through the referenced table's fhir_id.
func ReferenceClause(column, value string, argIdx int) (string, []interface{}, int) {
	var resourceType string
	if idx := strings.LastIndex(value, "/"); idx >= 0 {
		resourceType = value[:idx]
		value = value[idx+1:]
	}

	if isUUID(value) {
		return fmt.Sprintf("%s = $%d", column, argIdx), []interface{}{value}, argIdx + 1
	}

	if table := referenceTargetTable(column, resourceType); table != "" {
		clause := fmt.Sprintf("%s = (SELECT id FROM %s WHERE fhir_id = $%d LIMIT 1)", column, table, argIdx)
		return clause, []interface{}{value}, argIdx + 1
	}
	return fmt.Sprintf("%s = $%d", column, argIdx), []interface{}{value}, argIdx + 1
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
		} else if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// referenceTargetTable infers the referenced table from the column name
// ("patient_id" -> "patient") or the resource type prefix ("Patient" ->
// "patient"). URL-style prefixes are skipped.
func referenceTargetTable(column, resourceType string) string {
	if resourceType != "" && !strings.Contains(resourceType, "://") && !strings.Contains(resourceType, ".") {
		return strings.ToLower(resourceType)
	}
	if strings.HasSuffix(column, "_id") {
		return strings.TrimSuffix(column, "_id")
	}
	return ""
}
