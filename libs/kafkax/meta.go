package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// EventMeta is the metadata every service puts on its Kafka messages.
type EventMeta struct {
	EventID   string
	EventType string
}

const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

// ExtractEventMeta falls back to the message key and topic when headers are missing.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	eventID := HeaderValue(msg.Headers, HeaderEventID)
	eventType := HeaderValue(msg.Headers, HeaderEventType)
	if eventID == "" {
		eventID = string(msg.Key)
	}
	if eventType == "" {
		eventType = msg.Topic
	}
	return EventMeta{EventID: eventID, EventType: eventType}
}

func MetaHeaders(meta EventMeta) []kafka.Header {
	return []kafka.Header{
		{Key: HeaderEventID, Value: []byte(meta.EventID)},
		{Key: HeaderEventType, Value: []byte(meta.EventType)},
	}
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
