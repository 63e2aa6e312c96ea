package store

import "strings"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// likePattern turns free text into an ILIKE substring pattern with the
// wildcard characters escaped.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(query)) + "%"
}

func put[T any](m map[string]interface{}, key string, v *T) {
	if v != nil {
		m[key] = *v
	}
}
