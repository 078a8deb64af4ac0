package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
	"github.com/vhvplatform/go-attendance-service/internal/shared/mongodb"
)

const profilesCollection = "user_automation_profiles"

// ProfileRepository handles automation profile data operations
type ProfileRepository struct {
	client *mongodb.MongoClient
	log    *logger.Logger
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(client *mongodb.MongoClient, log *logger.Logger) *ProfileRepository {
	return &ProfileRepository{client: client, log: log}
}

// EnsureIndexes creates the unique user index
func (r *ProfileRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.client.Collection(profilesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "auto_check_in_enabled", Value: 1},
				{Key: "auto_check_out_enabled", Value: 1},
			},
		},
	})
	return err
}

// GetProfile finds a profile by user ID
func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*domain.UserAutomationProfile, error) {
	var profile domain.UserAutomationProfile
	err := r.client.Collection(profilesCollection).FindOne(ctx, bson.M{"user_id": userID}).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListSchedulableProfiles returns every profile with both automatic actions enabled
func (r *ProfileRepository) ListSchedulableProfiles(ctx context.Context) ([]*domain.UserAutomationProfile, error) {
	filter := bson.M{
		"auto_check_in_enabled":  true,
		"auto_check_out_enabled": true,
		"username":               bson.M{"$nin": bson.A{"", nil}},
	}
	opts := options.Find().SetSort(bson.M{"user_id": 1})

	cursor, err := r.client.Collection(profilesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	// a document that does not decode is skipped, not fatal to the listing
	var profiles []*domain.UserAutomationProfile
	for cursor.Next(ctx) {
		var profile domain.UserAutomationProfile
		if err := cursor.Decode(&profile); err != nil {
			r.log.Warn("Skipping undecodable profile", "user_id", cursor.Current.Lookup("user_id").String(), "error", err)
			continue
		}
		profiles = append(profiles, &profile)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return schedulableOnly(profiles), nil
}

// SaveProfile inserts or replaces the profile of profile.UserID
func (r *ProfileRepository) SaveProfile(ctx context.Context, profile *domain.UserAutomationProfile) error {
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	opts := options.Replace().SetUpsert(true)
	_, err := r.client.Collection(profilesCollection).ReplaceOne(ctx, bson.M{"user_id": profile.UserID}, profile, opts)
	return err
}

// UpdateSecrets sets the credential and channel fields named by update
func (r *ProfileRepository) UpdateSecrets(ctx context.Context, userID string, update domain.SecretUpdate) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	fields := map[string]*string{
		"username":            update.Username,
		"encrypted_password":  update.EncryptedPassword,
		"password_salt":       update.PasswordSalt,
		"encrypted_bot_token": update.EncryptedBotToken,
		"bot_token_salt":      update.BotTokenSalt,
		"telegram_chat_id":    update.TelegramChatID,
	}
	for field, value := range fields {
		if value != nil {
			set[field] = *value
		}
	}

	result, err := r.client.Collection(profilesCollection).UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProfile removes a profile
func (r *ProfileRepository) DeleteProfile(ctx context.Context, userID string) error {
	result, err := r.client.Collection(profilesCollection).DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
