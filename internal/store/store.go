package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Datastore es el espejo local de las órdenes (la base que lee la UI).
type Datastore interface {
	// Update actualiza las filas de table que cumplen match con fields y
	// devuelve cuántas filas cambiaron.
	Update(ctx context.Context, table string, match, fields map[string]any) (int64, error)
}

var ErrEmptyUpdate = errors.New("update requires at least one field and one match column")

// buildUpdate arma un UPDATE parametrizado. Las columnas se ordenan para que
// el SQL sea determinista.
func buildUpdate(table string, match, fields map[string]any) (string, []any, error) {
	if table == "" || len(match) == 0 || len(fields) == 0 {
		return "", nil, ErrEmptyUpdate
	}

	args := make([]any, 0, len(fields)+len(match))

	setCols := sortedKeys(fields)
	sets := make([]string, 0, len(setCols))
	for _, col := range setCols {
		args = append(args, fields[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), len(args)))
	}

	whereCols := sortedKeys(match)
	conds := make([]string, 0, len(whereCols))
	for _, col := range whereCols {
		args = append(args, match[col])
		conds = append(conds, fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), len(args)))
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(sets, ", "),
		strings.Join(conds, " AND "),
	)
	return sql, args, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
