package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"git.platform.alem.school/amibragim/order-events/internal/shared/contracts"
)

// DeclareTopology declares, in order: the main topic exchange, the dead-letter fanout exchange,
// the dead-letter queue and its catch-all binding, the main queue (dead-lettering into the DLX)
// and its binding, and finally the channel prefetch when prefetch > 0.
// Every declaration uses fixed arguments, so repeating it on each reconnect is safe.
func DeclareTopology(ch TopologyChannel, prefetch int) error {
	// exchanges
	if err := DeclareOrdersExchange(ch); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(contracts.DeadLetterExch, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", contracts.DeadLetterExch, err)
	}

	// DLQ
	if _, err := ch.QueueDeclare(contracts.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", contracts.DeadLetterQueue, err)
	}
	if err := ch.QueueBind(contracts.DeadLetterQueue, "", contracts.DeadLetterExch, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", contracts.DeadLetterQueue, err)
	}

	// main queue: durable, dead-letters to DLX
	_, err := ch.QueueDeclare(contracts.OrdersQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": contracts.DeadLetterExch,
	})
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", contracts.OrdersQueue, err)
	}
	if err := ch.QueueBind(contracts.OrdersQueue, contracts.OrdersRoutingKey, contracts.OrdersExchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", contracts.OrdersQueue, err)
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return fmt.Errorf("set prefetch %d: %w", prefetch, err)
		}
	}
	return nil
}

// DeclareOrdersExchange declares only the main exchange; publishers need nothing more.
func DeclareOrdersExchange(ch TopologyChannel) error {
	if err := ch.ExchangeDeclare(contracts.OrdersExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", contracts.OrdersExchange, err)
	}
	return nil
}
