package repository

import (
	"fmt"
	"strings"
)

const alertRankExpr = `CASE alert_level WHEN 'green' THEN 1 WHEN 'orange' THEN 2 WHEN 'red' THEN 3 ELSE 0 END`

// buildDisasterWhere renders the WHERE clause for ListDisasters. placeholder
// returns the driver-specific marker for the n-th (1-based) argument.
func buildDisasterWhere(f Filter, placeholder func(n int) string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, placeholder(len(args))))
	}

	if f.Since != nil {
		add("timestamp >= %s", *f.Since)
	}
	if f.Type != nil {
		add("type = %s", string(*f.Type))
	}
	if f.MinMagnitude != nil {
		add("magnitude >= %s", *f.MinMagnitude)
	}
	if f.AlertLevel != nil {
		add("alert_level = %s", string(*f.AlertLevel))
	}
	if f.MinAlertLevel != nil {
		add(alertRankExpr+" >= %s", f.MinAlertLevel.Rank())
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func buildLimitOffset(f Filter, nextArg int, placeholder func(n int) string) (string, []any) {
	var (
		clause string
		args   []any
	)
	if f.Limit > 0 {
		clause += " LIMIT " + placeholder(nextArg)
		args = append(args, f.Limit)
		nextArg++
		if f.Offset > 0 {
			clause += " OFFSET " + placeholder(nextArg)
			args = append(args, f.Offset)
		}
	}
	return clause, args
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }
