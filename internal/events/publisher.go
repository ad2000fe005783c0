package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher broadcasts tracking events over Redis pub/sub.
type Publisher struct {
	client *redis.Client
}

// NewPublisher creates a new Publisher.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// SendPing publishes a location request to one operator. Fire-and-forget:
// nothing waits for an acknowledgment, re-pinging is the retry.
func (p *Publisher) SendPing(ctx context.Context, operatorID string) error {
	payload, err := json.Marshal(PingRequest{
		Type:        EventLocationRequest,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshaling ping request: %w", err)
	}
	return p.client.Publish(ctx, PingChannel(operatorID), payload).Err()
}

// TripStarted announces a started trip to the organization.
func (p *Publisher) TripStarted(ctx context.Context, orgID, operatorID, tripID string) error {
	return p.publishTripEvent(ctx, orgID, EventTripStarted, operatorID, tripID)
}

// TripEnded announces an ended trip to the organization.
func (p *Publisher) TripEnded(ctx context.Context, orgID, operatorID, tripID string) error {
	return p.publishTripEvent(ctx, orgID, EventTripEnded, operatorID, tripID)
}

func (p *Publisher) publishTripEvent(ctx context.Context, orgID, eventType, operatorID, tripID string) error {
	payload, err := json.Marshal(TripEvent{
		Type:       eventType,
		OperatorID: operatorID,
		TripID:     tripID,
		At:         time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshaling trip event: %w", err)
	}
	return p.client.Publish(ctx, TripChannel(orgID), payload).Err()
}
