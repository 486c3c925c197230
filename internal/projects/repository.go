package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "projects"

type Repository interface {
	Insert(ctx context.Context, project *Project) error
	FindAll(ctx context.Context) ([]*Project, error)
	FindByTitle(ctx context.Context, title string, limit int) ([]*Project, error)
	FindByID(ctx context.Context, id string) (*Project, error)
	FindByChainStatus(ctx context.Context, status ChainStatus, limit int) ([]*Project, error)
	UpdateChainStatus(ctx context.Context, id string, from, to ChainStatus) (bool, error)
	Count(ctx context.Context) (int64, error)
}

type mongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{coll: db.Collection(collectionName)}
}

// EnsureIndexes creates the secondary indexes used by lookups and the reconciler.
// Title is indexed but deliberately not unique.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(collectionName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "title", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "chain_status", Value: 1}}},
		{
			Keys:    bson.D{{Key: "tx_hash", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create project indexes: %w", err)
	}
	return nil
}

// listOrder is the documented sort key for every multi-record read
var listOrder = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

func (r *mongoRepository) Insert(ctx context.Context, project *Project) error {
	_, err := r.coll.InsertOne(ctx, project)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateID
	}
	return err
}

func (r *mongoRepository) FindAll(ctx context.Context) ([]*Project, error) {
	return r.find(ctx, bson.M{}, options.Find().SetSort(listOrder))
}

func (r *mongoRepository) FindByTitle(ctx context.Context, title string, limit int) ([]*Project, error) {
	opts := options.Find().SetSort(listOrder)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, bson.M{"title": title}, opts)
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (*Project, error) {
	var project Project
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&project)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *mongoRepository) FindByChainStatus(ctx context.Context, status ChainStatus, limit int) ([]*Project, error) {
	opts := options.Find().SetSort(listOrder)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, bson.M{"chain_status": status}, opts)
}

// UpdateChainStatus applies a compare-and-set on chain_status. It reports false
// when the record is missing or no longer in the expected status.
func (r *mongoRepository) UpdateChainStatus(ctx context.Context, id string, from, to ChainStatus) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "chain_status": from},
		bson.M{"$set": bson.M{"chain_status": to, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *mongoRepository) Count(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{})
}

func (r *mongoRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*Project, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	projects := make([]*Project, 0)
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}
