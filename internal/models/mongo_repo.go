package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DefaultMongoDbName = "hiver"

// mongo dates only keep milliseconds, so ordering uses this nanosecond field.
const mongoOrderField = "created_ns"

type MongodbRepo struct {
	mongodbClient *mongo.Client
	dbName        string
}

func MongodbNewRepo(mongodbClient *mongo.Client, dbName string) *MongodbRepo {
	if dbName == "" {
		dbName = DefaultMongoDbName
	}
	return &MongodbRepo{
		mongodbClient: mongodbClient,
		dbName:        dbName,
	}
}

func (mdb *MongodbRepo) GetCollection(ctx context.Context, colName string) (*mongo.Collection, error) {
	if mdb.mongodbClient == nil {
		return nil, fmt.Errorf("mongodb client is not initialized")
	}
	return mdb.mongodbClient.Database(mdb.dbName).Collection(colName), nil
}

// mongoIndexes lists the ordering and lookup indexes per collection. With
// uniqueRSVP the attendees collection holds one record per (hive, user),
// which is what makes concurrent upserts converge on a single document.
func mongoIndexes(uniqueRSVP bool) map[string][]mongo.IndexModel {
	attendees := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: FieldHiveID, Value: 1}},
			Options: options.Index().SetName("hive_id_idx"),
		},
	}
	if uniqueRSVP {
		attendees = append(attendees, mongo.IndexModel{
			Keys:    bson.D{{Key: FieldHiveID, Value: 1}, {Key: FieldUserID, Value: 1}},
			Options: options.Index().SetName("hive_user_unique_idx").SetUnique(true),
		})
	} else {
		// append mode keeps a history per (hive, user)
		attendees = append(attendees, mongo.IndexModel{
			Keys:    bson.D{{Key: FieldHiveID, Value: 1}, {Key: FieldUserID, Value: 1}, {Key: mongoOrderField, Value: -1}},
			Options: options.Index().SetName("hive_user_idx"),
		})
	}

	return map[string][]mongo.IndexModel{
		HivesCollection: {
			{
				Keys:    bson.D{{Key: mongoOrderField, Value: -1}},
				Options: options.Index().SetName("created_idx"),
			},
			{
				Keys:    bson.D{{Key: "category", Value: 1}, {Key: mongoOrderField, Value: -1}},
				Options: options.Index().SetName("category_created_idx"),
			},
		},
		BuzzCollection: {
			{
				Keys:    bson.D{{Key: "visibility", Value: 1}, {Key: mongoOrderField, Value: -1}},
				Options: options.Index().SetName("visibility_created_idx"),
			},
		},
		AttendeesCollection: attendees,
	}
}

// EnsureIndexes creates the indexes the gateway queries rely on. uniqueRSVP
// must match the RSVP mode the services run in.
func (mdb *MongodbRepo) EnsureIndexes(ctx context.Context, uniqueRSVP bool) error {
	for name, indexes := range mongoIndexes(uniqueRSVP) {
		col, err := mdb.GetCollection(ctx, name)
		if err != nil {
			return fmt.Errorf("error getting collection: %v", err)
		}
		if _, err := col.Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("error creating indexes on %s: %v", name, err)
		}
	}
	return nil
}

func toMongoDoc(rec Record) bson.M {
	doc := bson.M{}
	for k, v := range rec {
		if k == FieldID {
			continue
		}
		doc[k] = v
	}
	if id := rec.ID(); id != "" {
		doc["_id"] = id
	}
	return doc
}

func fromMongoDoc(doc bson.M) Record {
	rec := make(Record, len(doc))
	for k, v := range doc {
		switch k {
		case "_id":
			rec[FieldID] = fmt.Sprint(v)
		case mongoOrderField:
		default:
			rec[k] = fromMongoValue(v)
		}
	}
	return rec
}

func fromMongoValue(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case bson.M:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = fromMongoValue(inner)
		}
		return m
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = fromMongoValue(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = fromMongoValue(inner)
		}
		return out
	}
	return v
}

func mongoFilter(match Record) bson.M {
	filter := bson.M{}
	for k, v := range match {
		if k == FieldID {
			filter["_id"] = v
			continue
		}
		filter[k] = plainValue(v)
	}
	return filter
}

func (mdb *MongodbRepo) insertDoc(ctx context.Context, col *mongo.Collection, id string, payload Record) error {
	at := now()
	doc := toMongoDoc(stamp(payload, id, at))
	doc[mongoOrderField] = at.UnixNano()
	_, err := col.InsertOne(ctx, doc)
	return err
}

func (mdb *MongodbRepo) Create(ctx context.Context, collection string, payload Record) (string, error) {
	col, err := mdb.GetCollection(ctx, collection)
	if err != nil {
		return "", writeErr("create", collection, err)
	}
	id := newID()
	if err := mdb.insertDoc(ctx, col, id, payload); err != nil {
		return "", writeErr("create", collection, err)
	}
	return id, nil
}

func (mdb *MongodbRepo) CreateWithID(ctx context.Context, collection, id string, payload Record) (bool, error) {
	col, err := mdb.GetCollection(ctx, collection)
	if err != nil {
		return false, writeErr("create", collection, err)
	}
	if err := mdb.insertDoc(ctx, col, id, payload); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, writeErr("create", collection, err)
	}
	return true, nil
}

func (mdb *MongodbRepo) ListRecent(ctx context.Context, collection string, limit int, filter *Filter) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}
	col, err := mdb.GetCollection(ctx, collection)
	if err != nil {
		return nil, readErr("list", collection, err)
	}

	query := bson.M{}
	if filter != nil {
		query = mongoFilter(Record{filter.Field: filter.Value})
	}
	opts := options.Find().
		SetSort(bson.D{{Key: mongoOrderField, Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := col.Find(ctx, query, opts)
	if err != nil {
		return nil, readErr("list", collection, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, readErr("list", collection, err)
	}
	out := make([]Record, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromMongoDoc(doc))
	}
	return out, nil
}

func (mdb *MongodbRepo) GetByID(ctx context.Context, collection, id string) (Record, error) {
	col, err := mdb.GetCollection(ctx, collection)
	if err != nil {
		return nil, readErr("get", collection, err)
	}
	var doc bson.M
	if err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, readErr("get", collection, err)
	}
	return fromMongoDoc(doc), nil
}

func (mdb *MongodbRepo) GetMany(ctx context.Context, collection string, ids []string) (map[string]Record, error) {
	out := make(map[string]Record)
	ids = distinct(ids)
	if len(ids) == 0 {
		return out, nil
	}
	col, err := mdb.GetCollection(ctx, collection)
	if err != nil {
		return nil, readErr("get many", collection, err)
	}
	cursor, err := col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, readErr("get many", collection, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, readErr("get many", collection, err)
		}
		rec := fromMongoDoc(doc)
		out[rec.ID()] = rec
	}
	if err := cursor.Err(); err != nil {
		return nil, readErr("get many", collection, err)
	}
	return out, nil
}

func (mdb *MongodbRepo) CountWhere(ctx context.Context, collection, field string, value any) (int64, error) {
	col, err := mdb.GetCollection(ctx, collection)
	if err != nil {
		return 0, readErr("count", collection, err)
	}
	n, err := col.CountDocuments(ctx, mongoFilter(Record{field: value}))
	if err != nil {
		return 0, readErr("count", collection, err)
	}
	return n, nil
}

func (mdb *MongodbRepo) FindOne(ctx context.Context, collection string, match Record) (Record, error) {
	col, err := mdb.GetCollection(ctx, collection)
	if err != nil {
		return nil, readErr("find", collection, err)
	}
	opts := options.FindOne().SetSort(bson.D{{Key: mongoOrderField, Value: -1}})
	var doc bson.M
	if err := col.FindOne(ctx, mongoFilter(match), opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, readErr("find", collection, err)
	}
	return fromMongoDoc(doc), nil
}

func setFields(fields Record) bson.M {
	set := bson.M{}
	for k, v := range fields {
		if k == FieldID || k == FieldCreatedAt {
			continue
		}
		set[k] = v
	}
	return set
}

func (mdb *MongodbRepo) Update(ctx context.Context, collection, id string, fields Record) (Record, error) {
	col, err := mdb.GetCollection(ctx, collection)
	if err != nil {
		return nil, writeErr("update", collection, err)
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc bson.M
	err = col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": setFields(fields)}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, writeErr("update", collection, err)
	}
	return fromMongoDoc(doc), nil
}

func (mdb *MongodbRepo) Upsert(ctx context.Context, collection string, match, fields Record) (string, bool, error) {
	col, err := mdb.GetCollection(ctx, collection)
	if err != nil {
		return "", false, writeErr("upsert", collection, err)
	}

	id := newID()
	at := now()
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":           id,
			FieldCreatedAt:  at,
			mongoOrderField: at.UnixNano(),
		},
	}
	if set := setFields(fields); len(set) > 0 {
		update["$set"] = set
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: mongoOrderField, Value: -1}})

	var doc bson.M
	err = col.FindOneAndUpdate(ctx, mongoFilter(match), update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// lost an insert race on the unique index; the winner's document now matches
		err = col.FindOneAndUpdate(ctx, mongoFilter(match), update, opts).Decode(&doc)
	}
	if err != nil {
		return "", false, writeErr("upsert", collection, fmt.Errorf("error upserting: %v", err))
	}
	got := fromMongoDoc(doc).ID()
	return got, got == id, nil
}

// Ping is used by the health endpoint.
func (mdb *MongodbRepo) Ping(ctx context.Context) error {
	if mdb.mongodbClient == nil {
		return fmt.Errorf("mongodb client is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return mdb.mongodbClient.Ping(ctx, nil)
}
