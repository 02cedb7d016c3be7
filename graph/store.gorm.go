package graph

import (
	"context"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/senomas/librarygql/graph/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type authorRecord struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
	Born *int
}

func (authorRecord) TableName() string { return "authors" }

type bookRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Title     string `gorm:"uniqueIndex;not null"`
	Published int    `gorm:"not null"`
	AuthorID  uint   `gorm:"index;not null"`
	Author    *authorRecord
	Genres    []*bookGenreRecord `gorm:"foreignKey:BookID"`
}

func (bookRecord) TableName() string { return "books" }

type bookGenreRecord struct {
	ID       uint   `gorm:"primaryKey"`
	BookID   uint   `gorm:"index;not null"`
	Position int    `gorm:"not null"`
	Name     string `gorm:"index;not null"`
}

func (bookGenreRecord) TableName() string { return "book_genres" }

type userRecord struct {
	ID            uint   `gorm:"primaryKey"`
	Username      string `gorm:"uniqueIndex;not null"`
	PasswordHash  string `gorm:"not null"`
	FavoriteGenre string `gorm:"not null"`
}

func (userRecord) TableName() string { return "users" }

var Models = []interface{}{&authorRecord{}, &bookRecord{}, &bookGenreRecord{}, &userRecord{}}

// GormStore keeps the catalog in a relational database. Genres live in their
// own table so membership filters stay portable across dialects.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models...)
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseID(id string) (uint, error) {
	v, err := strconv.ParseUint(id, 10, 0)
	if err != nil {
		return 0, ErrRecordNotFound
	}
	return uint(v), nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	emsg := err.Error()
	return strings.Contains(emsg, "duplicate key value violates unique constraint") ||
		strings.Contains(emsg, "UNIQUE constraint failed")
}

func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	if isDuplicateKey(err) {
		return errors.Wrapf(ErrDuplicateKey, "%s: %v", op, err)
	}
	return errors.Wrap(err, op)
}

func (r *authorRecord) toModel() *model.Author {
	return &model.Author{ID: formatID(r.ID), Name: r.Name, Born: r.Born}
}

func (r *bookRecord) toModel() *model.Book {
	book := &model.Book{
		ID:        formatID(r.ID),
		Title:     r.Title,
		Published: r.Published,
		AuthorID:  formatID(r.AuthorID),
		Genres: lo.Map(r.Genres, func(g *bookGenreRecord, _ int) string {
			return g.Name
		}),
	}
	if r.Author != nil {
		book.Author = r.Author.toModel()
	}
	return book
}

func (r *userRecord) toModel() *model.User {
	return &model.User{
		ID:            formatID(r.ID),
		Username:      r.Username,
		PasswordHash:  r.PasswordHash,
		FavoriteGenre: r.FavoriteGenre,
	}
}

func (s *GormStore) count(ctx context.Context, value interface{}, scope func(tx *gorm.DB) *gorm.DB) (int, error) {
	var count int64
	tx := s.DB.WithContext(ctx).Model(value)
	if scope != nil {
		tx = tx.Scopes(scope)
	}
	if result := tx.Count(&count); result.Error != nil {
		return 0, result.Error
	}
	return int(count), nil
}

func (s *GormStore) CountBooks(ctx context.Context) (int, error) {
	count, err := s.count(ctx, &bookRecord{}, nil)
	return count, translate(err, "count books")
}

func (s *GormStore) CountAuthors(ctx context.Context) (int, error) {
	count, err := s.count(ctx, &authorRecord{}, nil)
	return count, translate(err, "count authors")
}

func (s *GormStore) CountBooksByAuthor(ctx context.Context, authorID string) (int, error) {
	id, err := parseID(authorID)
	if err != nil {
		return 0, nil
	}
	count, err := s.count(ctx, &bookRecord{}, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("author_id = ?", id)
	})
	return count, translate(err, "count author books")
}

func (s *GormStore) FindBooks(ctx context.Context, filter model.BookFilter) ([]*model.Book, error) {
	tx := s.DB.WithContext(ctx).
		Preload("Author").
		Preload("Genres", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position")
		})
	if filter.Genre != nil {
		sq := s.DB.Model(&bookGenreRecord{}).Select("book_id").Where("name = ?", *filter.Genre)
		tx = tx.Where("id IN (?)", sq)
	}
	var records []*bookRecord
	if result := tx.Order("id").Find(&records); result.Error != nil {
		return nil, translate(result.Error, "find books")
	}
	return lo.Map(records, func(r *bookRecord, _ int) *model.Book {
		return r.toModel()
	}), nil
}

func (s *GormStore) FindAuthors(ctx context.Context) ([]*model.Author, error) {
	var records []*authorRecord
	if result := s.DB.WithContext(ctx).Order("id").Find(&records); result.Error != nil {
		return nil, translate(result.Error, "find authors")
	}
	return lo.Map(records, func(r *authorRecord, _ int) *model.Author {
		return r.toModel()
	}), nil
}

// FindOrCreateAuthor inserts with ON CONFLICT DO NOTHING against the unique
// name index, then reads back whichever row won.
func (s *GormStore) FindOrCreateAuthor(ctx context.Context, name string) (*model.Author, error) {
	record := authorRecord{Name: name}
	result := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return nil, translate(result.Error, "create author")
	}
	if result.RowsAffected == 1 && record.ID != 0 {
		return record.toModel(), nil
	}
	record = authorRecord{}
	if result := s.DB.WithContext(ctx).Where("name = ?", name).Take(&record); result.Error != nil {
		return nil, translate(result.Error, "find author")
	}
	return record.toModel(), nil
}

func (s *GormStore) CreateBook(ctx context.Context, book *model.Book) error {
	authorID, err := parseID(book.AuthorID)
	if err != nil {
		return errors.Wrapf(err, "author %q", book.AuthorID)
	}
	record := bookRecord{
		Title:     book.Title,
		Published: book.Published,
		AuthorID:  authorID,
		Genres: lo.Map(book.Genres, func(g string, i int) *bookGenreRecord {
			return &bookGenreRecord{Position: i, Name: g}
		}),
	}
	if result := s.DB.WithContext(ctx).Create(&record); result.Error != nil {
		return translate(result.Error, "create book")
	}
	book.ID = formatID(record.ID)
	return nil
}

func (s *GormStore) SetAuthorBorn(ctx context.Context, name string, born int) (*model.Author, error) {
	result := s.DB.WithContext(ctx).Model(&authorRecord{}).Where("name = ?", name).Update("born", born)
	if result.Error != nil {
		return nil, translate(result.Error, "update author")
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	var record authorRecord
	if result := s.DB.WithContext(ctx).Where("name = ?", name).Take(&record); result.Error != nil {
		return nil, translate(result.Error, "find author")
	}
	return record.toModel(), nil
}

func (s *GormStore) CreateUser(ctx context.Context, user *model.User) error {
	record := userRecord{
		Username:      user.Username,
		PasswordHash:  user.PasswordHash,
		FavoriteGenre: user.FavoriteGenre,
	}
	if result := s.DB.WithContext(ctx).Create(&record); result.Error != nil {
		return translate(result.Error, "create user")
	}
	user.ID = formatID(record.ID)
	return nil
}

func (s *GormStore) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var record userRecord
	if result := s.DB.WithContext(ctx).Where("username = ?", username).Take(&record); result.Error != nil {
		return nil, translate(result.Error, "find user")
	}
	return record.toModel(), nil
}

func (s *GormStore) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var record userRecord
	if result := s.DB.WithContext(ctx).Where("id = ?", uid).Take(&record); result.Error != nil {
		return nil, translate(result.Error, "find user")
	}
	return record.toModel(), nil
}

func (s *GormStore) Close(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
