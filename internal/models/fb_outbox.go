package models

import "time"

// FBOutboxRecord represents a row in the Firebird FB_SYNC_OUTBOX table
type FBOutboxRecord struct {
	ID        int64     `db:"ID"`
	TableName string    `db:"TABLE_NAME"`
	OpType    string    `db:"OP_TYPE"` // 'I', 'U', 'D'
	PKValue   string    `db:"PK_VALUE"`
	CreatedAt time.Time `db:"CREATED_AT"`
}

// IsValidOperation reports whether op is one of the trigger operation codes
func IsValidOperation(op string) bool {
	return op == "I" || op == "U" || op == "D"
}
