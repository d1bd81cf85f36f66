package realtime

import "encoding/json"

// EventType mirrors the row-level change kinds of a database change feed.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Tables exposed over the change feed.
const (
	TableRequest = "request"
	TableMessage = "apply_message"
)

// Filter is a single column = value equality scoping a subscription,
// e.g. {request_id, <uuid>} for one chat's message stream.
type Filter struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// ChangeEvent is one row-level change pushed to subscribers. OldRow and
// NewRow carry the serialized row before and after the change; INSERTs
// have only NewRow, DELETEs only OldRow.
type ChangeEvent struct {
	Table  string          `json:"table"`
	Type   EventType       `json:"type"`
	OldRow json.RawMessage `json:"old_row,omitempty"`
	NewRow json.RawMessage `json:"new_row,omitempty"`

	// keys are the filterable column values of the affected row.
	keys map[string]string
}

// NewInsert builds an INSERT event for a freshly written row.
func NewInsert(table string, keys map[string]string, row interface{}) ChangeEvent {
	return ChangeEvent{Table: table, Type: EventInsert, NewRow: marshalRow(row), keys: keys}
}

// NewUpdate builds an UPDATE event. oldRow may be nil when the previous
// state was not loaded.
func NewUpdate(table string, keys map[string]string, oldRow, newRow interface{}) ChangeEvent {
	return ChangeEvent{Table: table, Type: EventUpdate, OldRow: marshalRow(oldRow), NewRow: marshalRow(newRow), keys: keys}
}

// NewDelete builds a DELETE event for a removed row.
func NewDelete(table string, keys map[string]string, row interface{}) ChangeEvent {
	return ChangeEvent{Table: table, Type: EventDelete, OldRow: marshalRow(row), keys: keys}
}

func marshalRow(row interface{}) json.RawMessage {
	if row == nil {
		return nil
	}
	data, err := json.Marshal(row)
	if err != nil {
		return nil
	}
	return data
}

// matches reports whether the event falls inside the filter's scope.
// An empty filter matches every event on the table.
func (ev ChangeEvent) matches(f Filter) bool {
	if f.Column == "" {
		return true
	}
	value, ok := ev.keys[f.Column]
	return ok && value == f.Value
}
