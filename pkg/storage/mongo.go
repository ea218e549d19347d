package storage

import (
	"context"
	stderrors "errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMongoDatabase is used when the config names no database.
const DefaultMongoDatabase = "easygithub"

// MongoStore implements [Store] on a MongoDB collection with a unique index
// on owner, repo and branch.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// OpenMongo connects to uri and ensures the collection indexes.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	if database == "" {
		database = DefaultMongoDatabase
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, storageError(err, "connect mongo")
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, storageError(err, "ping mongo")
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(database).Collection("diagrams"),
		now:    time.Now,
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "repo", Value: 1}, {Key: "branch", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "updated_at", Value: -1}},
		},
	})
	if err != nil {
		return storageError(err, "create mongo indexes")
	}
	return nil
}

func (s *MongoStore) Save(ctx context.Context, d *Diagram) error {
	if err := prepare(d, s.now()); err != nil {
		return err
	}
	filter := bson.D{{Key: "owner", Value: d.Owner}, {Key: "repo", Value: d.Repo}, {Key: "branch", Value: d.Branch}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "model", Value: d.Model},
			{Key: "explanation", Value: d.Explanation},
			{Key: "mapping", Value: d.Mapping},
			{Key: "mermaid", Value: d.Mermaid},
			{Key: "updated_at", Value: d.UpdatedAt},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "_id", Value: d.ID},
			{Key: "slug", Value: d.Slug},
			{Key: "created_at", Value: d.CreatedAt},
		}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored Diagram
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored); err != nil {
		return storageError(err, "save diagram %s", d.FullName())
	}
	*d = stored
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Diagram, error) {
	return s.one(ctx, bson.D{{Key: "_id", Value: id}}, nil)
}

func (s *MongoStore) GetBySlug(ctx context.Context, slug string) (*Diagram, error) {
	return s.one(ctx, bson.D{{Key: "slug", Value: slug}}, nil)
}

func (s *MongoStore) Latest(ctx context.Context, owner, repo string) (*Diagram, error) {
	return s.one(ctx,
		bson.D{{Key: "owner", Value: lower(owner)}, {Key: "repo", Value: lower(repo)}},
		options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
}

func (s *MongoStore) List(ctx context.Context, limit int) ([]*Diagram, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetLimit(int64(ClampLimit(limit)))
	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, storageError(err, "list diagrams")
	}
	var out []*Diagram
	if err := cur.All(ctx, &out); err != nil {
		return nil, storageError(err, "list diagrams")
	}
	for _, d := range out {
		d.CreatedAt = d.CreatedAt.UTC()
		d.UpdatedAt = d.UpdatedAt.UTC()
	}
	return out, nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return storageError(err, "delete diagram %s", id)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) one(ctx context.Context, filter bson.D, opts *options.FindOneOptions) (*Diagram, error) {
	var findOpts []*options.FindOneOptions
	if opts != nil {
		findOpts = append(findOpts, opts)
	}
	var d Diagram
	err := s.coll.FindOne(ctx, filter, findOpts...).Decode(&d)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageError(err, "load diagram")
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

var _ Store = (*MongoStore)(nil)
