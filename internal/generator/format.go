package generator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"reportengine-backend/internal/query"
	"reportengine-backend/internal/reportcfg"
)

// formatRows builds the display layer next to the raw rows. Raw values are
// never mutated; formatting and conditional tags only exist in the
// formatted copy.
func formatRows(rows []map[string]any, cfg *reportcfg.ReportConfig) []map[string]FormattedCell {
	if len(cfg.Formatting) == 0 && len(cfg.ConditionalRules) == 0 {
		return nil
	}
	formats := make(map[string]reportcfg.FieldFormat, len(cfg.Formatting))
	for _, rule := range cfg.Formatting {
		formats[rule.Field] = rule.Format
	}

	out := make([]map[string]FormattedCell, len(rows))
	for i, row := range rows {
		formatted := make(map[string]FormattedCell, len(row))
		for field, value := range row {
			cell := FormattedCell{Display: displayValue(value, formats[field])}
			for _, rule := range cfg.ConditionalRules {
				if rule.Field == field && conditionMatches(rule, value) {
					cell.Tags = append(cell.Tags, rule.Tag)
				}
			}
			formatted[field] = cell
		}
		out[i] = formatted
	}
	return out
}

func displayValue(value any, format reportcfg.FieldFormat) string {
	if value == nil {
		return ""
	}
	switch format.Kind {
	case reportcfg.FormatCurrency:
		f, ok := toFloat(value)
		if !ok {
			return fmt.Sprint(value)
		}
		symbol := format.Symbol
		if symbol == "" {
			symbol = "$"
		}
		return symbol + formatNumber(f, decimalsOr(format.Decimals, 2), ",")
	case reportcfg.FormatNumber:
		f, ok := toFloat(value)
		if !ok {
			return fmt.Sprint(value)
		}
		sep := format.ThousandsSep
		if sep == "" {
			sep = ","
		}
		return formatNumber(f, decimalsOr(format.Decimals, 0), sep)
	case reportcfg.FormatPercentage:
		f, ok := toFloat(value)
		if !ok {
			return fmt.Sprint(value)
		}
		return strconv.FormatFloat(f, 'f', decimalsOr(format.Decimals, 1), 64) + "%"
	case reportcfg.FormatDate:
		t, ok := toTime(value)
		if !ok {
			return fmt.Sprint(value)
		}
		layout := format.Layout
		if layout == "" {
			layout = "2006-01-02"
		}
		return t.Format(layout)
	default:
		return fmt.Sprint(value)
	}
}

// decimalsOr distinguishes an explicit 0 from an unset value; only nil
// falls back to the kind's default.
func decimalsOr(decimals *int, fallback int) int {
	if decimals == nil || *decimals < 0 {
		return fallback
	}
	return *decimals
}

func formatNumber(f float64, decimals int, sep string) string {
	text := strconv.FormatFloat(f, 'f', decimals, 64)
	intPart := text
	var fracPart string
	if i := strings.IndexByte(text, '.'); i >= 0 {
		intPart, fracPart = text[:i], text[i:]
	}
	negative := strings.HasPrefix(intPart, "-")
	if negative {
		intPart = intPart[1:]
	}
	if len(intPart) > 3 {
		var b strings.Builder
		lead := len(intPart) % 3
		if lead > 0 {
			b.WriteString(intPart[:lead])
		}
		for i := lead; i < len(intPart); i += 3 {
			if b.Len() > 0 {
				b.WriteString(sep)
			}
			b.WriteString(intPart[i : i+3])
		}
		intPart = b.String()
	}
	if negative {
		intPart = "-" + intPart
	}
	return intPart + fracPart
}

func conditionMatches(rule reportcfg.ConditionalFormat, value any) bool {
	left, leftOK := toFloat(value)
	right, rightOK := toFloat(rule.Value)
	if leftOK && rightOK {
		switch rule.Operator {
		case query.OpEquals:
			return left == right
		case query.OpNotEquals:
			return left != right
		case query.OpGreaterThan:
			return left > right
		case query.OpLessThan:
			return left < right
		case query.OpGreaterOrEqual:
			return left >= right
		case query.OpLessOrEqual:
			return left <= right
		}
		return false
	}
	switch rule.Operator {
	case query.OpEquals:
		return fmt.Sprint(value) == fmt.Sprint(rule.Value)
	case query.OpNotEquals:
		return fmt.Sprint(value) != fmt.Sprint(rule.Value)
	case query.OpLike:
		return strings.Contains(fmt.Sprint(value), fmt.Sprint(rule.Value))
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
