package postgres

import (
	"fmt"
	"strings"
)

// nowExpr marks a column that is set to NOW() instead of a bound parameter.
type nowExpr struct{}

// setBuilder builds "UPDATE ... SET" statements from partial patches.
type setBuilder struct {
	columns []string
	args    []any
}

func newSetBuilder() *setBuilder {
	return &setBuilder{}
}

func (b *setBuilder) add(column string, value any) {
	if _, ok := value.(nowExpr); ok {
		b.columns = append(b.columns, column+" = NOW()")
		return
	}
	b.args = append(b.args, value)
	b.columns = append(b.columns, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

// build returns the statement and its arguments. Extra conditions are
// ANDed as "column = value" pairs given in order.
func (b *setBuilder) build(table string, where ...any) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "UPDATE %s SET %s", table, strings.Join(b.columns, ", "))

	args := append([]any(nil), b.args...)
	conds := make([]string, 0, len(where)/2)
	for i := 0; i+1 < len(where); i += 2 {
		args = append(args, where[i+1])
		conds = append(conds, fmt.Sprintf("%s = $%d", where[i], len(args)))
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	return sb.String(), args
}
