package amqp

import (
	"encoding/json"
	"time"
)

// LedgerEventMessage carries one ledger change to downstream consumers.
// The payload is the event's own JSON document as written to the outbox;
// consumers that only route on Type never need to open it.
type LedgerEventMessage struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	MonthKey  string          `json:"month_key"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewLedgerEventMessage(id int64, eventType, monthKey string, payload []byte) *LedgerEventMessage {
	return &LedgerEventMessage{
		ID:        id,
		Type:      eventType,
		MonthKey:  monthKey,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
