package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeliveryMessage carries one rendered report from the API process to the
// report worker. The body is final; the worker only forwards it to the
// WhatsApp channel.
type DeliveryMessage struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	Body        string    `json:"body"`
	QueuedAt    time.Time `json:"queuedAt"`
}

// NewDeliveryMessage builds a message with a fresh ID and timestamp.
func NewDeliveryMessage(destination, body string) *DeliveryMessage {
	return &DeliveryMessage{
		ID:          uuid.NewString(),
		Destination: destination,
		Body:        body,
		QueuedAt:    time.Now(),
	}
}

func (m *DeliveryMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DeliveryMessageFromJSON(data []byte) (*DeliveryMessage, error) {
	var msg DeliveryMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
