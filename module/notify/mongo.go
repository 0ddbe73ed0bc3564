package notify

import (
	"context"
	"time"

	"NotifyGate/service/mgo"
	"NotifyGate/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "notifications"

// MongoHistory persists notifications through the shared Mongo manager.
// A dropped connection surfaces as ErrStoreUnavailable so the business
// caller can retry the triggering event.
type MongoHistory struct{}

func NewMongoHistory() *MongoHistory { return &MongoHistory{} }

func (h *MongoHistory) coll() (*mongo.Collection, error) {
	cli := mgo.GetClient()
	if cli == nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("mongo not connected")
	}
	return cli.GetDB().Collection(collectionName), nil
}

// EnsureIndexes creates the owner/id paging index. Call once at startup.
func (h *MongoHistory) EnsureIndexes(ctx context.Context) error {
	coll, err := h.coll()
	if err != nil {
		return err
	}
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "_id", Value: -1}},
	})
	return errs.WrapMsg(err, "create notifications index")
}

func (h *MongoHistory) Insert(ctx context.Context, n *Notification) error {
	coll, err := h.coll()
	if err != nil {
		return err
	}
	insCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := coll.InsertOne(insCtx, n); err != nil {
		return errs.ErrStoreUnavailable.WrapMsg("insert notification", "owner", n.OwnerID, "err", err)
	}
	return nil
}

func (h *MongoHistory) Page(ctx context.Context, ownerID string, limit int, beforeID string) ([]*Notification, error) {
	coll, err := h.coll()
	if err != nil {
		return nil, err
	}
	filter := bson.M{"owner_id": ownerID}
	if beforeID != "" {
		filter["_id"] = bson.M{"$lt": beforeID}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	findCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cur, err := coll.Find(findCtx, filter, opts)
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("page notifications", "owner", ownerID, "err", err)
	}
	defer cur.Close(findCtx)

	var out []*Notification
	if err := cur.All(findCtx, &out); err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("decode notifications", "owner", ownerID, "err", err)
	}
	return out, nil
}

func (h *MongoHistory) MarkRead(ctx context.Context, ownerID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	coll, err := h.coll()
	if err != nil {
		return nil, err
	}
	updCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// resolve which of the requested ids are actually flippable before the
	// update; the owner filter is the ownership check, foreign ids simply
	// match nothing
	filter := bson.M{"owner_id": ownerID, "_id": bson.M{"$in": ids}, "read": false}
	cur, err := coll.Find(updCtx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("resolve unread", "owner", ownerID, "err", err)
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(updCtx, &rows); err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("resolve unread", "owner", ownerID, "err", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	changed := make([]string, len(rows))
	for i, r := range rows {
		changed[i] = r.ID
	}

	_, err = coll.UpdateMany(updCtx,
		bson.M{"owner_id": ownerID, "_id": bson.M{"$in": changed}, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("mark read", "owner", ownerID, "err", err)
	}
	return changed, nil
}
