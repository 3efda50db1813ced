package orderworker

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"git.platform.alem.school/amibragim/order-events/internal/domain/orders"
	"git.platform.alem.school/amibragim/order-events/internal/shared/contracts"
)

// Metadata is the part of a delivery the decoder falls back on.
type Metadata struct {
	MessageID     string
	CorrelationID string
	Headers       amqp.Table
}

// MetadataFromDelivery extracts Metadata from a broker delivery.
func MetadataFromDelivery(d amqp.Delivery) Metadata {
	return Metadata{
		MessageID:     d.MessageId,
		CorrelationID: d.CorrelationId,
		Headers:       d.Headers,
	}
}

type object map[string]json.RawMessage

// lookup finds a field by its camelCase name or the PascalCase variant.
func (o object) lookup(name string) (json.RawMessage, bool) {
	if raw, ok := o[name]; ok && !isNull(raw) {
		return raw, true
	}
	if raw, ok := o[pascal(name)]; ok && !isNull(raw) {
		return raw, true
	}
	return nil, false
}

func (o object) str(name string) string {
	raw, ok := o.lookup(name)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func pascal(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Decode turns a message body into an OrderEvent. The body is either the flat event
// or an envelope whose "data" field holds it. Any error it returns is a MalformedError.
func Decode(body []byte, md Metadata) (orders.OrderEvent, error) {
	var root object
	if err := json.Unmarshal(body, &root); err != nil {
		return orders.OrderEvent{}, malformed("body is not a JSON object", err)
	}
	if root == nil {
		return orders.OrderEvent{}, malformed("body is not a JSON object", nil)
	}

	payload := root
	if raw, ok := root.lookup("data"); ok {
		var nested object
		if err := json.Unmarshal(raw, &nested); err != nil || nested == nil {
			return orders.OrderEvent{}, malformed("data is not a JSON object", err)
		}
		payload = nested
	}

	orderID, err := decodeOrderID(payload)
	if err != nil {
		return orders.OrderEvent{}, err
	}
	amount, err := decodeAmount(payload)
	if err != nil {
		return orders.OrderEvent{}, err
	}

	ev := orders.OrderEvent{
		MessageID:     firstNonEmpty(md.MessageID, payload.str("messageId"), root.str("messageId")),
		OrderID:       orderID,
		Amount:        amount,
		CorrelationID: resolveCorrelationID(payload, root, md),
	}
	if s := payload.str("createdAt"); s != "" {
		// optional; an unreadable timestamp is ignored
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			ev.CreatedAt = t.UTC()
		}
	}

	return ev, nil
}

func decodeOrderID(payload object) (uuid.UUID, error) {
	raw, ok := payload.lookup("orderId")
	if !ok {
		return uuid.Nil, malformed("orderId is missing", nil)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return uuid.Nil, malformed("orderId is not a string", err)
	}
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, malformed("orderId is not a UUID", err)
	}
	if id == uuid.Nil {
		return uuid.Nil, malformed("orderId is the nil UUID", nil)
	}
	return id, nil
}

// decodeAmount accepts a JSON number or a string holding one.
func decodeAmount(payload object) (decimal.Decimal, error) {
	raw, ok := payload.lookup("amount")
	if !ok {
		return decimal.Zero, malformed("amount is missing", nil)
	}

	text := string(bytes.TrimSpace(raw))
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, malformed("amount is not readable", err)
		}
		text = strings.TrimSpace(s)
	}

	amount, err := orders.ParseAmount(text)
	if err != nil {
		return decimal.Zero, malformed("amount is out of range", err)
	}
	return amount, nil
}

// resolveCorrelationID picks the first non-empty of: the payload field, the envelope
// field, the delivery's correlation id, the X-Correlation-Id header.
func resolveCorrelationID(payload, root object, md Metadata) string {
	return firstNonEmpty(
		payload.str("correlationId"),
		root.str("correlationId"),
		md.CorrelationID,
		HeaderString(md.Headers, contracts.HeaderCorrelationID),
	)
}

// CorrelationIDFromMetadata resolves a correlation id without a decoded body.
func CorrelationIDFromMetadata(md Metadata) string {
	return firstNonEmpty(md.CorrelationID, HeaderString(md.Headers, contracts.HeaderCorrelationID))
}

// HeaderString reads a header carried as a string or raw bytes.
func HeaderString(headers amqp.Table, key string) string {
	v, ok := headers[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
