package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/senomas/librarygql/graph/model"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/simukti/sqldb-logger/logadapter/zerologadapter"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ConfigType struct {
	Application     string
	Port            string
	MongoURI        string
	MongoDatabase   string
	PostgresDSN     string
	SQLitePath      string
	TokenSecret     string
	TokenTTL        time.Duration
	BcryptCost      int
	Logger          bool
	Populate        bool
	ShutdownTimeout time.Duration
}

var Config = ConfigType{
	Application:     "librarygql",
	Port:            "4000",
	BcryptCost:      10,
	ShutdownTimeout: 10 * time.Second,
}

func Of[E any](e E) *E {
	return &e
}

func JsonStr(v interface{}) string {
	rJSON, _ := json.MarshalIndent(v, "", "\t")
	return string(rJSON)
}

func GormLogger(enabled bool) logger.Interface {
	level := logger.Silent
	if enabled {
		level = logger.Info
	}
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
}

// OpenPostgres opens dsn through lib/pq. With cfg.Logger every statement is
// traced through zerolog.
func OpenPostgres(cfg ConfigType) (*gorm.DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if cfg.Logger {
		loggerAdapter := zerologadapter.New(zerolog.New(os.Stdout).With().Timestamp().Logger())
		sqlDB = sqldblogger.OpenDriver(cfg.PostgresDSN, sqlDB.Driver(), loggerAdapter)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping postgres")
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: GormLogger(cfg.Logger)})
	if err != nil {
		return nil, errors.Wrap(err, "open gorm postgres")
	}
	return db, nil
}

func OpenSQLite(cfg ConfigType) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{Logger: GormLogger(cfg.Logger), TranslateError: true})
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if sqlDB, err := db.DB(); err != nil {
		return nil, err
	} else {
		sqlDB.SetMaxOpenConns(1)
	}
	if result := db.Exec("PRAGMA foreign_keys = ON"); result.Error != nil {
		return nil, result.Error
	}
	return db, nil
}

func OpenMongo(ctx context.Context, cfg ConfigType) (*MongoStore, error) {
	database := cfg.MongoDatabase
	if database == "" {
		if cs, err := connstring.ParseAndValidate(cfg.MongoURI); err != nil {
			return nil, errors.Wrap(err, "parse MONGODB_URI")
		} else if cs.Database != "" {
			database = cs.Database
		} else {
			database = "library"
		}
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI).SetAppName(cfg.Application))
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "ping mongo")
	}
	store := NewMongoStore(client, database)
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

// Setup opens the configured store: MongoDB when MongoURI is set, otherwise
// postgres or sqlite through gorm.
func Setup(ctx context.Context, cfg ConfigType) (Store, error) {
	var store Store
	switch {
	case cfg.MongoURI != "":
		if s, err := OpenMongo(ctx, cfg); err != nil {
			return nil, err
		} else {
			store = s
		}
	case cfg.PostgresDSN != "" || cfg.SQLitePath != "":
		var db *gorm.DB
		var err error
		if cfg.PostgresDSN != "" {
			db, err = OpenPostgres(cfg)
		} else {
			db, err = OpenSQLite(cfg)
		}
		if err != nil {
			return nil, err
		}
		if err := Migrate(db); err != nil {
			return nil, errors.Wrap(err, "migrate")
		}
		store = NewGormStore(db)
	default:
		return nil, errors.New("MONGODB_URI is required (or DB_POSTGRES / DB_SQLITE)")
	}

	if cfg.Populate {
		if err := Populate(ctx, store); err != nil {
			_ = store.Close(ctx)
			return nil, errors.Wrap(err, "populate")
		}
	}
	return store, nil
}

type sampleBook struct {
	Title     string
	Author    string
	Published int
	Genres    []string
}

var sampleBooks = []sampleBook{
	{"Harry Potter and the Sorcerer's Stone", "J.K. Rowling", 1997, []string{"fantasy", "classic"}},
	{"Harry Potter and the Chamber of Secrets", "J.K. Rowling", 1998, []string{"fantasy"}},
	{"Harry Potter and the Book of Evil", "Lord Voldermort", 1998, []string{"horror"}},
	{"Harry Potter and the Snake Dictionary", "Salazar Slitherin", 990, []string{"reference", "horror"}},
}

// Populate seeds sample authors and books. Authors and books already present
// are left alone.
func Populate(ctx context.Context, store Store) error {
	for _, b := range sampleBooks {
		author, err := store.FindOrCreateAuthor(ctx, b.Author)
		if err != nil {
			return err
		}
		book := &model.Book{Title: b.Title, Published: b.Published, AuthorID: author.ID, Author: author, Genres: b.Genres}
		if err := store.CreateBook(ctx, book); err != nil && !errors.Is(err, ErrDuplicateKey) {
			return err
		}
	}
	if _, err := store.FindOrCreateAuthor(ctx, "Albus Dumbledore"); err != nil {
		return err
	}
	_, err := store.SetAuthorBorn(ctx, "Albus Dumbledore", 1881)
	return err
}
