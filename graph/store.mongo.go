package graph

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/senomas/librarygql/graph/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type authorDocument struct {
	ID   primitive.ObjectID `bson:"_id"`
	Name string             `bson:"name"`
	Born *int               `bson:"born,omitempty"`
}

type bookDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Title     string             `bson:"title"`
	Published int                `bson:"published"`
	Author    primitive.ObjectID `bson:"author"`
	Genres    []string           `bson:"genres"`
}

type userDocument struct {
	ID            primitive.ObjectID `bson:"_id"`
	Username      string             `bson:"username"`
	PasswordHash  string             `bson:"passwordHash"`
	FavoriteGenre string             `bson:"favoriteGenre"`
}

func (d *authorDocument) toModel() *model.Author {
	return &model.Author{ID: d.ID.Hex(), Name: d.Name, Born: d.Born}
}

func (d *bookDocument) toModel() *model.Book {
	genres := d.Genres
	if genres == nil {
		genres = []string{}
	}
	return &model.Book{
		ID:        d.ID.Hex(),
		Title:     d.Title,
		Published: d.Published,
		AuthorID:  d.Author.Hex(),
		Genres:    genres,
	}
}

func (d *userDocument) toModel() *model.User {
	return &model.User{
		ID:            d.ID.Hex(),
		Username:      d.Username,
		PasswordHash:  d.PasswordHash,
		FavoriteGenre: d.FavoriteGenre,
	}
}

// MongoStore keeps the catalog in three collections: books, authors, users.
type MongoStore struct {
	Client  *mongo.Client
	Books   *mongo.Collection
	Authors *mongo.Collection
	Users   *mongo.Collection
}

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		Client:  client,
		Books:   db.Collection("books"),
		Authors: db.Collection("authors"),
		Users:   db.Collection("users"),
	}
}

// EnsureIndexes creates the unique indexes the upsert and insert paths rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	if _, err := s.Authors.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "name", Value: 1}}, Options: unique}); err != nil {
		return errors.Wrap(err, "index authors.name")
	}
	if _, err := s.Books.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "title", Value: 1}}, Options: unique}); err != nil {
		return errors.Wrap(err, "index books.title")
	}
	if _, err := s.Books.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "author", Value: 1}}}); err != nil {
		return errors.Wrap(err, "index books.author")
	}
	if _, err := s.Books.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "genres", Value: 1}}}); err != nil {
		return errors.Wrap(err, "index books.genres")
	}
	if _, err := s.Users.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique}); err != nil {
		return errors.Wrap(err, "index users.username")
	}
	return nil
}

func translateMongo(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrRecordNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return errors.Wrapf(ErrDuplicateKey, "%s: %v", op, err)
	}
	return errors.Wrap(err, op)
}

func (s *MongoStore) CountBooks(ctx context.Context) (int, error) {
	count, err := s.Books.CountDocuments(ctx, bson.D{})
	return int(count), translateMongo(err, "count books")
}

func (s *MongoStore) CountAuthors(ctx context.Context) (int, error) {
	count, err := s.Authors.CountDocuments(ctx, bson.D{})
	return int(count), translateMongo(err, "count authors")
}

func (s *MongoStore) CountBooksByAuthor(ctx context.Context, authorID string) (int, error) {
	id, err := primitive.ObjectIDFromHex(authorID)
	if err != nil {
		return 0, nil
	}
	count, err := s.Books.CountDocuments(ctx, bson.M{"author": id})
	return int(count), translateMongo(err, "count author books")
}

// FindBooks matches genre by array membership and joins authors with one
// $in lookup per call.
func (s *MongoStore) FindBooks(ctx context.Context, filter model.BookFilter) ([]*model.Book, error) {
	query := bson.M{}
	if filter.Genre != nil {
		query["genres"] = *filter.Genre
	}
	cursor, err := s.Books.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, translateMongo(err, "find books")
	}
	var docs []*bookDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translateMongo(err, "decode books")
	}
	if len(docs) == 0 {
		return []*model.Book{}, nil
	}

	authorIDs := lo.Uniq(lo.Map(docs, func(d *bookDocument, _ int) primitive.ObjectID {
		return d.Author
	}))
	acursor, err := s.Authors.Find(ctx, bson.M{"_id": bson.M{"$in": authorIDs}})
	if err != nil {
		return nil, translateMongo(err, "find book authors")
	}
	var authors []*authorDocument
	if err := acursor.All(ctx, &authors); err != nil {
		return nil, translateMongo(err, "decode book authors")
	}
	byID := lo.SliceToMap(authors, func(a *authorDocument) (primitive.ObjectID, *model.Author) {
		return a.ID, a.toModel()
	})

	books := make([]*model.Book, 0, len(docs))
	for _, d := range docs {
		book := d.toModel()
		book.Author = byID[d.Author]
		books = append(books, book)
	}
	return books, nil
}

func (s *MongoStore) FindAuthors(ctx context.Context) ([]*model.Author, error) {
	cursor, err := s.Authors.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, translateMongo(err, "find authors")
	}
	var docs []*authorDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translateMongo(err, "decode authors")
	}
	return lo.Map(docs, func(d *authorDocument, _ int) *model.Author {
		return d.toModel()
	}), nil
}

// FindOrCreateAuthor upserts on the unique name index. Two concurrent upserts
// can both miss and one of them fails with a duplicate key; that one retries
// once and finds the winner.
func (s *MongoStore) FindOrCreateAuthor(ctx context.Context, name string) (*model.Author, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc authorDocument
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		update := bson.M{"$setOnInsert": bson.M{"_id": primitive.NewObjectID(), "name": name}}
		err = s.Authors.FindOneAndUpdate(ctx, bson.M{"name": name}, update, opts).Decode(&doc)
		if err == nil {
			return doc.toModel(), nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	return nil, translateMongo(err, "upsert author")
}

func (s *MongoStore) CreateBook(ctx context.Context, book *model.Book) error {
	authorID, err := primitive.ObjectIDFromHex(book.AuthorID)
	if err != nil {
		return errors.Wrapf(err, "author %q", book.AuthorID)
	}
	doc := bookDocument{
		ID:        primitive.NewObjectID(),
		Title:     book.Title,
		Published: book.Published,
		Author:    authorID,
		Genres:    book.Genres,
	}
	if _, err := s.Books.InsertOne(ctx, doc); err != nil {
		return translateMongo(err, "insert book")
	}
	book.ID = doc.ID.Hex()
	return nil
}

func (s *MongoStore) SetAuthorBorn(ctx context.Context, name string, born int) (*model.Author, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc authorDocument
	err := s.Authors.FindOneAndUpdate(ctx, bson.M{"name": name}, bson.M{"$set": bson.M{"born": born}}, opts).Decode(&doc)
	if err != nil {
		return nil, translateMongo(err, "update author")
	}
	return doc.toModel(), nil
}

func (s *MongoStore) CreateUser(ctx context.Context, user *model.User) error {
	doc := userDocument{
		ID:            primitive.NewObjectID(),
		Username:      user.Username,
		PasswordHash:  user.PasswordHash,
		FavoriteGenre: user.FavoriteGenre,
	}
	if _, err := s.Users.InsertOne(ctx, doc); err != nil {
		return translateMongo(err, "insert user")
	}
	user.ID = doc.ID.Hex()
	return nil
}

func (s *MongoStore) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var doc userDocument
	if err := s.Users.FindOne(ctx, bson.M{"username": username}).Decode(&doc); err != nil {
		return nil, translateMongo(err, "find user")
	}
	return doc.toModel(), nil
}

func (s *MongoStore) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrRecordNotFound
	}
	var doc userDocument
	if err := s.Users.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, translateMongo(err, "find user")
	}
	return doc.toModel(), nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}
