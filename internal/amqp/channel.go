package amqp

import "context"

// PublishingChannel adapts the client to the dispatcher's outbound channel
// port, so DELIVERY_MODE=amqp swaps in without touching the dispatcher.
type PublishingChannel struct {
	client *Client
}

func NewPublishingChannel(client *Client) *PublishingChannel {
	return &PublishingChannel{client: client}
}

func (p *PublishingChannel) Send(ctx context.Context, destination, body string) error {
	return p.client.PublishDelivery(ctx, NewDeliveryMessage(destination, body))
}
