package repo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
)

// MongoStore reads one account collection. Documents keep the field names the
// registration services write (camelCase, "password" for the hash).
type MongoStore struct {
	collection *mongo.Collection
	kind       entity.StoreKind
}

func NewMongoStore(db *mongo.Database, kind entity.StoreKind) *MongoStore {
	return &MongoStore{collection: db.Collection(collectionName(kind)), kind: kind}
}

// NewMongoSet builds a store for every kind in the same database.
func NewMongoSet(db *mongo.Database) (Set, []*MongoStore) {
	set := Set{}
	stores := make([]*MongoStore, 0, len(entity.AllStores))
	for _, k := range entity.AllStores {
		s := NewMongoStore(db, k)
		stores = append(stores, s)
		set[k] = s
	}
	return set, stores
}

func collectionName(kind entity.StoreKind) string {
	switch kind {
	case entity.StoreDepotUsers:
		return "depotusers"
	default:
		return string(kind)
	}
}

func (m *MongoStore) Kind() entity.StoreKind { return m.kind }

var bsonKeyByField = map[entity.Field]string{
	entity.FieldEmail:    "email",
	entity.FieldPhone:    "phone",
	entity.FieldUsername: "username",
	entity.FieldAadhaar:  "aadhaarNumber",
}

type dbAccount struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Name             string             `bson:"name,omitempty"`
	CompanyName      string             `bson:"companyName,omitempty"`
	Email            string             `bson:"email,omitempty"`
	Phone            string             `bson:"phone,omitempty"`
	Username         string             `bson:"username,omitempty"`
	AadhaarNumber    string             `bson:"aadhaarNumber,omitempty"`
	Password         string             `bson:"password"`
	Status           string             `bson:"status,omitempty"`
	Role             string             `bson:"role,omitempty"`
	RoleType         string             `bson:"roleType,omitempty"`
	DepotID          any                `bson:"depotId,omitempty"`
	DepotCode        string             `bson:"depotCode,omitempty"`
	DepotName        string             `bson:"depotName,omitempty"`
	DriverID         string             `bson:"driverId,omitempty"`
	ConductorID      string             `bson:"conductorId,omitempty"`
	PassStatus       string             `bson:"passStatus,omitempty"`
	ProfileCompleted bool               `bson:"profileCompleted"`
	LoginAttempts    int                `bson:"loginAttempts"`
	LockUntil        *time.Time         `bson:"lockUntil,omitempty"`
	LastLogin        *time.Time         `bson:"lastLogin,omitempty"`
	CreatedAt        time.Time          `bson:"createdAt"`
}

// EnsureIndexes creates the lookup indexes for the fields this store indexes.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	var models []mongo.IndexModel
	for _, f := range entity.Fields[m.kind] {
		models = append(models, mongo.IndexModel{Keys: bson.D{{Key: bsonKeyByField[f], Value: 1}}})
	}
	if len(models) == 0 {
		return nil
	}
	_, err := m.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (m *MongoStore) FindByIdentifier(ctx context.Context, field entity.Field, value string) (*entity.Account, error) {
	if err := checkField(m.kind, field); err != nil {
		return nil, err
	}
	value = normalizeValue(field, value)
	if value == "" {
		return nil, ErrNotFound
	}
	return m.findBy(ctx, identifierFilter(field, value))
}

// identifierFilter matches emails case-insensitively so documents written
// with mixed case by older registration paths are still found.
func identifierFilter(field entity.Field, value string) bson.M {
	key := bsonKeyByField[field]
	if field == entity.FieldEmail {
		return bson.M{key: primitive.Regex{Pattern: "^" + regexp.QuoteMeta(value) + "$", Options: "i"}}
	}
	return bson.M{key: value}
}

func (m *MongoStore) findBy(ctx context.Context, filter bson.M) (*entity.Account, error) {
	var d dbAccount
	sr := m.collection.FindOne(ctx, filter)
	if errors.Is(sr.Err(), mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err := sr.Decode(&d); err != nil {
		return nil, fmt.Errorf("%s lookup: %w", m.kind, err)
	}
	return accountFromDB(d, m.kind), nil
}

func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": oid}
	}
	return bson.M{"_id": id}
}

func (m *MongoStore) UpdateByID(ctx context.Context, id string, patch entity.Patch) error {
	set := bson.M{}
	if patch.LastLogin != nil {
		set["lastLogin"] = *patch.LastLogin
	}
	if patch.ResetLockout {
		set["loginAttempts"] = 0
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if patch.ResetLockout {
		update["$unset"] = bson.M{"lockUntil": ""}
	}
	if len(update) == 0 {
		return nil
	}
	res, err := m.collection.UpdateOne(ctx, idFilter(id), update)
	if err != nil {
		return fmt.Errorf("%s update: %w", m.kind, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RegisterFailure uses an update pipeline so the increment and the threshold
// comparison see the same document version.
func (m *MongoStore) RegisterFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (entity.Lockout, error) {
	next := bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$loginAttempts", 0}}, 1}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"loginAttempts": next,
			"lockUntil": bson.M{"$cond": bson.A{
				bson.M{"$gte": bson.A{next, threshold}},
				lockUntil,
				"$lockUntil",
			}},
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d dbAccount
	err := m.collection.FindOneAndUpdate(ctx, idFilter(id), pipeline, opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return entity.Lockout{}, ErrNotFound
	}
	if err != nil {
		return entity.Lockout{}, fmt.Errorf("%s register failure: %w", m.kind, err)
	}
	return entity.Lockout{Attempts: d.LoginAttempts, LockUntil: d.LockUntil}, nil
}

func (m *MongoStore) Create(ctx context.Context, acc *entity.Account) (string, error) {
	d := dbFromAccount(acc, m.kind)
	d.ID = primitive.NewObjectID()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if _, err := m.collection.InsertOne(ctx, &d); err != nil {
		return "", fmt.Errorf("%s insert: %w", m.kind, err)
	}
	acc.ID = d.ID.Hex()
	return acc.ID, nil
}

func accountFromDB(d dbAccount, kind entity.StoreKind) *entity.Account {
	name := d.Name
	if name == "" {
		name = d.CompanyName
	}
	staff := d.DriverID
	if kind == entity.StoreConductors {
		staff = d.ConductorID
	}
	return &entity.Account{
		ID:               d.ID.Hex(),
		Store:            kind,
		Name:             name,
		Email:            d.Email,
		Phone:            d.Phone,
		Username:         d.Username,
		Aadhaar:          d.AadhaarNumber,
		PasswordHash:     d.Password,
		Status:           entity.Status(d.Status),
		Role:             entity.Role(d.Role),
		RoleType:         entity.RoleType(d.RoleType),
		DepotID:          depotIDString(d.DepotID),
		DepotCode:        d.DepotCode,
		DepotName:        d.DepotName,
		StaffCode:        staff,
		PassStatus:       d.PassStatus,
		ProfileCompleted: d.ProfileCompleted,
		LoginAttempts:    d.LoginAttempts,
		LockUntil:        d.LockUntil,
		LastLogin:        d.LastLogin,
		CreatedAt:        d.CreatedAt,
	}
}

func dbFromAccount(a *entity.Account, kind entity.StoreKind) dbAccount {
	d := dbAccount{
		Name:             a.Name,
		Email:            normalizeValue(entity.FieldEmail, a.Email),
		Phone:            a.Phone,
		Username:         a.Username,
		AadhaarNumber:    a.Aadhaar,
		Password:         a.PasswordHash,
		Status:           string(a.Status),
		Role:             string(a.Role),
		RoleType:         string(a.RoleType),
		DepotCode:        a.DepotCode,
		DepotName:        a.DepotName,
		PassStatus:       a.PassStatus,
		ProfileCompleted: a.ProfileCompleted,
		CreatedAt:        a.CreatedAt,
	}
	if d.Status == "" {
		d.Status = string(entity.StatusActive)
	}
	if a.DepotID != "" {
		if oid, err := primitive.ObjectIDFromHex(a.DepotID); err == nil {
			d.DepotID = oid
		} else {
			d.DepotID = a.DepotID
		}
	}
	switch kind {
	case entity.StoreDrivers:
		d.DriverID = a.StaffCode
	case entity.StoreConductors:
		d.ConductorID = a.StaffCode
	}
	return d
}

// depotIDString accepts both ObjectID and string references.
func depotIDString(v any) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	}
	return ""
}
