package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const examDetailsCollection = "exam_details"

// MongoStore is a MongoDB-backed Store with one collection per kind.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore creates a MongoDB-backed node store.
func NewMongoStore(db *mongo.Database) (*MongoStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is nil")
	}
	return &MongoStore{db: db}, nil
}

type mongoNode struct {
	ID         string    `bson:"_id"`
	ExamID     string    `bson:"exam_id,omitempty"`
	SubjectID  string    `bson:"subject_id,omitempty"`
	UnitID     string    `bson:"unit_id,omitempty"`
	ChapterID  string    `bson:"chapter_id,omitempty"`
	TopicID    string    `bson:"topic_id,omitempty"`
	SubTopicID string    `bson:"sub_topic_id,omitempty"`
	Name       string    `bson:"name"`
	Position   int       `bson:"position"`
	Status     string    `bson:"status"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func (d *mongoNode) ancestorFields() []*string {
	return []*string{&d.ExamID, &d.SubjectID, &d.UnitID, &d.ChapterID, &d.TopicID, &d.SubTopicID}
}

func toMongoNode(n *Node) mongoNode {
	d := mongoNode{
		ID:        n.ID,
		Name:      n.Name,
		Position:  n.Position,
		Status:    string(n.Status),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
	fields := d.ancestorFields()
	for i, id := range n.Path {
		*fields[i] = id
	}
	return d
}

func (d mongoNode) node(kind Kind) Node {
	n := Node{
		ID:        d.ID,
		Kind:      kind,
		Name:      d.Name,
		Position:  d.Position,
		Status:    Status(d.Status),
		Path:      make(Path, kind.Depth()),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	fields := d.ancestorFields()
	for i := range n.Path {
		n.Path[i] = *fields[i]
	}
	return n
}

type mongoExamDetail struct {
	ExamID          string    `bson:"_id"`
	Description     string    `bson:"description"`
	DurationMinutes int       `bson:"duration_minutes"`
	TotalMarks      int       `bson:"total_marks"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

// EnsureIndexes creates the unique sibling indexes and ancestor lookups.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	for _, k := range Chain {
		var models []mongo.IndexModel
		if k == KindExam {
			models = append(models, mongo.IndexModel{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			})
		} else {
			parent := k.Parent().IDField()
			models = append(models,
				mongo.IndexModel{
					Keys:    bson.D{{Key: parent, Value: 1}, {Key: "position", Value: 1}},
					Options: options.Index().SetUnique(true),
				},
				mongo.IndexModel{
					Keys:    bson.D{{Key: parent, Value: 1}, {Key: "name", Value: 1}},
					Options: options.Index().SetUnique(true),
				},
			)
			for _, a := range k.Ancestors() {
				if a == k.Parent() {
					continue
				}
				models = append(models, mongo.IndexModel{Keys: bson.D{{Key: a.IDField(), Value: 1}}})
			}
		}
		if _, err := s.db.Collection(k.Collection()).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", k.Collection(), err)
		}
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, n *Node) error {
	if !n.Kind.Valid() {
		return invalidArg("invalid kind")
	}
	if n.ID == "" {
		n.ID = NewID()
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.db.Collection(n.Kind.Collection()).InsertOne(ctx, toMongoNode(n)); err != nil {
		return fmt.Errorf("insert %s: %w", n.Kind, mapMongoError(err))
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, kind Kind, id string) (*Node, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var d mongoNode
	err := s.db.Collection(kind.Collection()).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound(kind, id)
		}
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}
	n := d.node(kind)
	return &n, nil
}

func (s *MongoStore) List(ctx context.Context, kind Kind, f Filter) ([]Node, error) {
	filter, err := mongoFilter(kind, f)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}, {Key: "name", Value: 1}})
	cur, err := s.db.Collection(kind.Collection()).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	var docs []mongoNode
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	nodes := make([]Node, 0, len(docs))
	for _, d := range docs {
		nodes = append(nodes, d.node(kind))
	}
	return nodes, nil
}

func (s *MongoStore) Update(ctx context.Context, kind Kind, id string, p Patch) (*Node, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Position != nil {
		set["position"] = *p.Position
	}
	if p.Status != nil {
		set["status"] = string(*p.Status)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var d mongoNode
	err := s.db.Collection(kind.Collection()).FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound(kind, id)
		}
		return nil, fmt.Errorf("update %s: %w", kind, mapMongoError(err))
	}
	n := d.node(kind)
	return &n, nil
}

func (s *MongoStore) Delete(ctx context.Context, kind Kind, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	res, err := s.db.Collection(kind.Collection()).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", kind, err)
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) FindIDs(ctx context.Context, kind Kind, f Filter) ([]string, error) {
	filter, err := mongoFilter(kind, f)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.db.Collection(kind.Collection()).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s ids: %w", kind, err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s ids: %w", kind, err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (s *MongoStore) DeleteMany(ctx context.Context, kind Kind, f Filter) (int64, error) {
	filter, err := mongoFilter(kind, f)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	res, err := s.db.Collection(kind.Collection()).DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", kind, err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) SetStatus(ctx context.Context, kind Kind, f Filter, status Status) (int64, error) {
	filter, err := mongoFilter(kind, f)
	if err != nil {
		return 0, err
	}
	filter["status"] = bson.M{"$ne": string(status)}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	res, err := s.db.Collection(kind.Collection()).UpdateMany(ctx, filter, bson.M{
		"$set": bson.M{"status": string(status), "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("set %s status: %w", kind, err)
	}
	return res.ModifiedCount, nil
}

// SetPositions issues one ordered bulk write; it stops at the first failing
// write and leaves earlier writes applied.
func (s *MongoStore) SetPositions(ctx context.Context, kind Kind, writes []PositionWrite) (int64, error) {
	if len(writes) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(writes))
	for _, w := range writes {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": w.ID, "position": bson.M{"$ne": w.Position}}).
			SetUpdate(bson.M{"$set": bson.M{"position": w.Position, "updated_at": now}}))
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	res, err := s.db.Collection(kind.Collection()).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return 0, fmt.Errorf("set %s positions: %w", kind, mapMongoError(err))
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) MaxPosition(ctx context.Context, kind Kind, parentID string) (int, error) {
	filter := bson.M{}
	if parent := kind.Parent(); parent.Valid() {
		filter[parent.IDField()] = parentID
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var d struct {
		Position int `bson:"position"`
	}
	err := s.db.Collection(kind.Collection()).FindOne(ctx, filter,
		options.FindOne().SetSort(bson.D{{Key: "position", Value: -1}}).SetProjection(bson.M{"position": 1}),
	).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("max %s position: %w", kind, err)
	}
	return d.Position, nil
}

func (s *MongoStore) GetExamDetail(ctx context.Context, examID string) (*ExamDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var d mongoExamDetail
	err := s.db.Collection(examDetailsCollection).FindOne(ctx, bson.M{"_id": examID}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: exam detail %s", ErrNotFound, examID)
		}
		return nil, fmt.Errorf("get exam detail: %w", err)
	}
	return &ExamDetail{
		ExamID:          d.ExamID,
		Description:     d.Description,
		DurationMinutes: d.DurationMinutes,
		TotalMarks:      d.TotalMarks,
		UpdatedAt:       d.UpdatedAt,
	}, nil
}

func (s *MongoStore) PutExamDetail(ctx context.Context, d ExamDetail) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	doc := mongoExamDetail{
		ExamID:          d.ExamID,
		Description:     d.Description,
		DurationMinutes: d.DurationMinutes,
		TotalMarks:      d.TotalMarks,
		UpdatedAt:       time.Now().UTC(),
	}
	_, err := s.db.Collection(examDetailsCollection).ReplaceOne(ctx,
		bson.M{"_id": d.ExamID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put exam detail: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteExamDetails(ctx context.Context, examID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	res, err := s.db.Collection(examDetailsCollection).DeleteMany(ctx, bson.M{"_id": examID})
	if err != nil {
		return 0, fmt.Errorf("delete exam details: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) HealthCheck(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func mongoFilter(kind Kind, f Filter) (bson.M, error) {
	if err := f.validFor(kind); err != nil {
		return nil, err
	}
	if f.matchesAll() {
		return bson.M{}, nil
	}
	col := f.column(kind)
	if col == "id" {
		col = "_id"
	}
	ids := f.IDs
	if ids == nil {
		ids = []string{}
	}
	return bson.M{col: bson.M{"$in": ids}}, nil
}

func mapMongoError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
