package db

import (
	"fmt"
	"strings"
)

// Where accumulates AND clauses with positional arguments. Each "?" in a
// clause is replaced by the next $n placeholder.
type Where struct {
	clauses []string
	Args    []interface{}
}

func (w *Where) Add(clause string, args ...interface{}) {
	for _, a := range args {
		w.Args = append(w.Args, a)
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", len(w.Args)), 1)
	}
	w.clauses = append(w.clauses, clause)
}

// SQL renders " WHERE ..." or "" when no clause was added.
func (w *Where) SQL() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// Page appends LIMIT and OFFSET placeholders and returns them with the full
// argument list.
func (w *Where) Page(limit, offset int) (string, []interface{}) {
	n := len(w.Args)
	args := append(append([]interface{}{}, w.Args...), limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2), args
}
