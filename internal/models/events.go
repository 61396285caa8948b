package models

import "time"

// Routing key suffixes of the messages a unit publishes
const (
	KindSync   = "sync"
	KindReject = "reject"
)

// FBEventPayload is the JSON message sent to RabbitMQ for a synchronized row.
// Every text value in Data has already been decoded to UTF-8.
type FBEventPayload struct {
	EventID   string         `json:"event_id"`
	UnitID    int            `json:"unit_id"`
	TableName string         `json:"table_name"`
	Operation string         `json:"operation"` // I, U, D
	PKValue   string         `json:"pk_value"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	// Repaired lists the columns whose raw bytes were not already valid UTF-8
	Repaired []string `json:"repaired,omitempty"`
}

// RejectPayload reports a row whose text could not be decoded under the strict policy
type RejectPayload struct {
	EventID   string    `json:"event_id"`
	UnitID    int       `json:"unit_id"`
	TableName string    `json:"table_name"`
	Operation string    `json:"operation"`
	PKValue   string    `json:"pk_value"`
	Column    string    `json:"column"`
	Offset    int       `json:"offset"`
	Byte      byte      `json:"byte"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
