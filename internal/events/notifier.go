package events

import (
	"context"
	"fmt"
	"log"
	"time"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationTripStarted     NotificationType = "TRIP_STARTED"
	NotificationTripEnded       NotificationType = "TRIP_ENDED"
	NotificationRecoveryPending NotificationType = "RECOVERY_PENDING"
)

// Notification represents a notification to be sent.
type Notification struct {
	ID          string
	Type        NotificationType
	RecipientID string // dispatcher scope for the operator's organization
	Title       string
	Message     string
	Data        map[string]interface{}
	CreatedAt   time.Time
}

// NotificationService handles notification delivery. Deliveries are
// best-effort everywhere they are called: a failed notification never
// blocks or fails trip tracking.
type NotificationService struct {
	// In a real system, this would have:
	// - Push notification client (FCM, APNS)
	// - SMS client (Twilio)
	// - WebSocket connections for real-time dashboards
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

// NotifyTripStarted tells the dispatcher a vehicle went on trip.
func (s *NotificationService) NotifyTripStarted(ctx context.Context, operatorID, tripID string) error {
	notification := Notification{
		Type:        NotificationTripStarted,
		RecipientID: operatorID,
		Title:       "Trip Started",
		Message:     fmt.Sprintf("Vehicle operator %s started tracking", operatorID),
		Data: map[string]interface{}{
			"operator_id": operatorID,
			"trip_id":     tripID,
		},
		CreatedAt: time.Now(),
	}
	return s.send(ctx, notification)
}

// NotifyTripEnded tells the dispatcher a vehicle finished its trip.
func (s *NotificationService) NotifyTripEnded(ctx context.Context, operatorID, tripID string) error {
	notification := Notification{
		Type:        NotificationTripEnded,
		RecipientID: operatorID,
		Title:       "Trip Ended",
		Message:     fmt.Sprintf("Vehicle operator %s stopped tracking", operatorID),
		Data: map[string]interface{}{
			"operator_id": operatorID,
			"trip_id":     tripID,
		},
		CreatedAt: time.Now(),
	}
	return s.send(ctx, notification)
}

// NotifyRecoveryPending tells the dispatcher an interrupted trip awaits a
// resume-or-end decision.
func (s *NotificationService) NotifyRecoveryPending(ctx context.Context, operatorID, tripID string) error {
	notification := Notification{
		Type:        NotificationRecoveryPending,
		RecipientID: operatorID,
		Title:       "Trip Interrupted",
		Message:     fmt.Sprintf("Tracking for operator %s was interrupted mid-trip and needs a decision", operatorID),
		Data: map[string]interface{}{
			"operator_id": operatorID,
			"trip_id":     tripID,
		},
		CreatedAt: time.Now(),
	}
	return s.send(ctx, notification)
}

// send delivers a notification (mock implementation).
func (s *NotificationService) send(ctx context.Context, notification Notification) error {
	// In a real implementation, this would:
	// 1. Store the notification in a database
	// 2. Send a push notification via FCM/APNS
	// 3. Broadcast via WebSocket for real-time dashboards

	log.Printf("[NOTIFICATION] Type=%s, Recipient=%s, Title=%s, Message=%s",
		notification.Type, notification.RecipientID, notification.Title, notification.Message)

	return nil
}
