package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	"github.com/vhvplatform/go-attendance-service/internal/shared/mongodb"
)

const notificationsCollection = "attendance_notifications"

// notificationRetention bounds how long history is kept
const notificationRetention = 90 * 24 * time.Hour

// NotificationRepository handles notification history operations
type NotificationRepository struct {
	client *mongodb.MongoClient
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(client *mongodb.MongoClient) *NotificationRepository {
	return &NotificationRepository{client: client}
}

// EnsureIndexes creates the lookup and retention indexes
func (r *NotificationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.client.Collection(notificationsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(notificationRetention.Seconds())),
		},
	})
	return err
}

// CreateNotification stores a notification attempt
func (r *NotificationRepository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	_, err := r.client.Collection(notificationsCollection).InsertOne(ctx, n)
	return err
}

// ListNotifications returns the newest notifications of a user
func (r *NotificationRepository) ListNotifications(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	opts := options.Find().
		SetLimit(int64(normalizeLimit(limit))).
		SetSort(bson.M{"created_at": -1})

	cursor, err := r.client.Collection(notificationsCollection).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	notifications := []*domain.Notification{}
	if err = cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}
