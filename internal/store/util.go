package store

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uuidArray adapts a []uuid.UUID for use with Postgres's ANY($1)/= ANY(...).
func uuidArray(ids []uuid.UUID) any {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return pq.Array(strs)
}
