package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"larder/entity"
	"larder/internal/config"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"
)

const (
	collectionUsers           = "users"
	collectionInvites         = "invite_codes"
	collectionReconciliations = "invite_reconciliations"
	collectionQuotas          = "ocr_quotas"
	collectionOrders          = "orders"
)

type MongoDB struct {
	client   *mongo.Client
	database string
	now      func() time.Time
}

// NewMongoClient connects once and prepares the indexes the conditional
// writes rely on.
func NewMongoClient(ctx context.Context, conf *config.Config) (*MongoDB, error) {
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	connection, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err = connection.Ping(ctx, nil); err != nil {
		_ = connection.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}
	m := &MongoDB{
		client:   connection,
		database: conf.Mongo.Database,
		now:      time.Now,
	}
	if err = m.EnsureIndexes(ctx); err != nil {
		_ = connection.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoDB) collection(name string) *mongo.Collection {
	return m.client.Database(m.database).Collection(name)
}

func (m *MongoDB) findError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return fmt.Errorf("mongodb find: %w", err)
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collectionUsers: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "session_token", Value: 1}}},
		},
		collectionInvites: {
			{Keys: bson.D{{Key: "code", Value: 1}, {Key: "used", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		collectionQuotas: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "month_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for name, models := range indexes {
		if _, err := m.collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongodb indexes %s: %w", name, err)
		}
	}
	return nil
}

func (m *MongoDB) CountUsers(ctx context.Context) (int, error) {
	n, err := m.collection(collectionUsers).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("mongodb count users: %w", err)
	}
	return int(n), nil
}

func (m *MongoDB) SignUp(ctx context.Context, username, email, password string) (*entity.Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &entity.User{
		ID:           newID(),
		Username:     username,
		Email:        email,
		SessionToken: uuid.NewString(),
		PasswordHash: string(hash),
		CreatedAt:    m.now().UTC(),
	}
	_, err = m.collection(collectionUsers).InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("username %q has already been taken", username)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb insert user: %w", err)
	}
	return &entity.Session{UserID: user.ID, SessionToken: user.SessionToken}, nil
}

func (m *MongoDB) UserBySession(ctx context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, entity.ErrSessionInvalid
	}
	filter := bson.D{{Key: "session_token", Value: token}}
	var user entity.User
	err := m.collection(collectionUsers).FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, entity.ErrSessionInvalid
	}
	if err != nil {
		return nil, m.findError(err)
	}
	return &user, nil
}

func usableFilter() bson.D {
	return bson.D{
		{Key: "used", Value: false},
		{Key: "invalidated", Value: bson.D{{Key: "$ne", Value: true}}},
	}
}

func (m *MongoDB) CreateInvite(ctx context.Context, code string) (*entity.InviteCode, error) {
	inv := &entity.InviteCode{ID: newID(), Code: code, CreatedAt: m.now().UTC()}
	if _, err := m.collection(collectionInvites).InsertOne(ctx, inv); err != nil {
		return nil, fmt.Errorf("mongodb insert invite: %w", err)
	}
	return inv, nil
}

func (m *MongoDB) ListInvites(ctx context.Context, limit int) ([]*entity.InviteCode, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := m.collection(collectionInvites).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb list invites: %w", err)
	}
	defer cursor.Close(ctx)

	invites := make([]*entity.InviteCode, 0)
	if err = cursor.All(ctx, &invites); err != nil {
		return nil, fmt.Errorf("mongodb decode invites: %w", err)
	}
	return invites, nil
}

func (m *MongoDB) FindUsableInvite(ctx context.Context, code string) (*entity.InviteCode, error) {
	filter := append(bson.D{{Key: "code", Value: code}}, usableFilter()...)
	var inv entity.InviteCode
	if err := m.collection(collectionInvites).FindOne(ctx, filter).Decode(&inv); err != nil {
		return nil, m.findError(err)
	}
	return &inv, nil
}

func (m *MongoDB) CountUsableInvites(ctx context.Context) (int, error) {
	n, err := m.collection(collectionInvites).CountDocuments(ctx, usableFilter())
	if err != nil {
		return 0, fmt.Errorf("mongodb count invites: %w", err)
	}
	return int(n), nil
}

func (m *MongoDB) ClaimInvite(ctx context.Context, id string, claim entity.InviteClaim) error {
	set := bson.D{{Key: "used", Value: true}, {Key: "used_by", Value: claim.UserID}}
	if !claim.Minimal {
		set = append(set,
			bson.E{Key: "used_at", Value: claim.UsedAt},
			bson.E{Key: "used_ua", Value: claim.UserAgent},
			bson.E{Key: "used_ip", Value: claim.IP},
		)
	}
	filter := append(bson.D{{Key: "_id", Value: id}}, usableFilter()...)
	res, err := m.collection(collectionInvites).UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("mongodb claim invite: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := m.collection(collectionInvites).CountDocuments(ctx, bson.D{{Key: "_id", Value: id}})
		if err == nil && n == 0 {
			return entity.ErrNotFound
		}
		return entity.ErrConflict
	}
	return nil
}

func (m *MongoDB) InvalidateInvite(ctx context.Context, id string) error {
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "invalidated", Value: true}}}}
	res, err := m.collection(collectionInvites).UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return fmt.Errorf("mongodb invalidate invite: %w", err)
	}
	if res.MatchedCount == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (m *MongoDB) DeleteInvite(ctx context.Context, id string) error {
	res, err := m.collection(collectionInvites).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("mongodb delete invite: %w", err)
	}
	if res.DeletedCount == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (m *MongoDB) SaveReconciliation(ctx context.Context, rec *entity.Reconciliation) error {
	rec.ID = newID()
	rec.CreatedAt = m.now().UTC()
	if _, err := m.collection(collectionReconciliations).InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("mongodb save reconciliation: %w", err)
	}
	return nil
}

func (m *MongoDB) ListReconciliations(ctx context.Context, limit int) ([]*entity.Reconciliation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := m.collection(collectionReconciliations).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb list reconciliations: %w", err)
	}
	defer cursor.Close(ctx)

	list := make([]*entity.Reconciliation, 0)
	if err = cursor.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("mongodb decode reconciliations: %w", err)
	}
	return list, nil
}

func (m *MongoDB) GetQuota(ctx context.Context, userID, monthKey string) (*entity.OcrQuota, error) {
	filter := bson.D{{Key: "user_id", Value: userID}, {Key: "month_key", Value: monthKey}}
	var q entity.OcrQuota
	if err := m.collection(collectionQuotas).FindOne(ctx, filter).Decode(&q); err != nil {
		return nil, m.findError(err)
	}
	return &q, nil
}

// CreateQuota upserts the (user, month) record; when another request created
// it first, quota is overwritten with the stored numbers.
func (m *MongoDB) CreateQuota(ctx context.Context, quota *entity.OcrQuota) error {
	filter := bson.D{{Key: "user_id", Value: quota.UserID}, {Key: "month_key", Value: quota.MonthKey}}
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: "_id", Value: newID()},
		{Key: "used", Value: quota.Used},
		{Key: "limit", Value: quota.Limit},
	}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := m.collection(collectionQuotas).FindOneAndUpdate(ctx, filter, update, opts).Decode(quota)
	if mongo.IsDuplicateKeyError(err) {
		// concurrent upsert won the unique index; read its record
		err = m.collection(collectionQuotas).FindOne(ctx, filter).Decode(quota)
	}
	if err != nil {
		return fmt.Errorf("mongodb create quota: %w", err)
	}
	return nil
}

func (m *MongoDB) IncrementQuota(ctx context.Context, quota *entity.OcrQuota) error {
	filter := bson.D{{Key: "_id", Value: quota.ID}, {Key: "used", Value: bson.D{{Key: "$lt", Value: quota.Limit}}}}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "used", Value: 1}}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated entity.OcrQuota
	err := m.collection(collectionQuotas).FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return entity.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("mongodb increment quota: %w", err)
	}
	quota.Used = updated.Used
	return nil
}

func (m *MongoDB) CreateOrder(ctx context.Context, order *entity.Order) error {
	order.ID = newID()
	order.CreatedAt = m.now().UTC()
	if _, err := m.collection(collectionOrders).InsertOne(ctx, order); err != nil {
		return fmt.Errorf("mongodb insert order: %w", err)
	}
	return nil
}

func (m *MongoDB) MarkOrderPaid(ctx context.Context, id, paymentID string) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: entity.OrderStatusPaid},
		{Key: "payment_id", Value: paymentID},
	}}}
	res, err := m.collection(collectionOrders).UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return fmt.Errorf("mongodb mark order paid: %w", err)
	}
	if res.MatchedCount == 0 {
		return entity.ErrNotFound
	}
	return nil
}
