package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/logging"
)

const notifyChannel = "room_documents"

const defaultCacheSize = 256

type roomDocument struct {
	ID        string `gorm:"primaryKey;size:32"`
	Body      []byte `gorm:"type:jsonb;not null"`
	Version   int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (roomDocument) TableName() string { return "room_documents" }

func (r roomDocument) document() (Document, error) {
	var st engine.State
	if err := json.Unmarshal(r.Body, &st); err != nil {
		return Document{}, fmt.Errorf("decode document %s: %w", r.ID, err)
	}
	return Document{ID: r.ID, State: st, Version: r.Version, UpdatedAt: r.UpdatedAt}, nil
}

// Postgres stores documents in a jsonb table. Writers lock the row, and every
// commit is announced with pg_notify so watchers in any process re-read it.
type Postgres struct {
	db     *gorm.DB
	pool   *pgxpool.Pool
	cache  *lru.ARCCache // id -> latest Document seen by this process
	logger *zap.SugaredLogger
}

type PostgresOptions struct {
	CacheSize int
}

var _ Backend = (*Postgres)(nil)

func NewPostgres(ctx context.Context, dsn string, opts PostgresOptions) (*Postgres, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&roomDocument{}); err != nil {
		return nil, fmt.Errorf("migrate room_documents: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open listen pool: %w", err)
	}

	cache, err := lru.NewARC(opts.CacheSize)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("new arc cache: %w", err)
	}

	return &Postgres{
		db:     db,
		pool:   pool,
		cache:  cache,
		logger: logging.FromContext(ctx).Named("docstore.postgres"),
	}, nil
}

func (p *Postgres) Create(ctx context.Context, doc Document) error {
	body, err := json.Marshal(doc.State)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	row := roomDocument{ID: doc.ID, Body: body, Version: doc.Version}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrExists
		}
		return fmt.Errorf("create document: %w", err)
	}
	doc.UpdatedAt = row.UpdatedAt
	p.remember(doc)
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (Document, error) {
	var row roomDocument
	if err := p.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Document{}, engine.ErrRoomNotFound
		}
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	doc, err := row.document()
	if err != nil {
		return Document{}, err
	}
	p.remember(doc)
	return doc, nil
}

func (p *Postgres) Update(ctx context.Context, id string, fn func(*Document) error) (Document, error) {
	var out Document
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row roomDocument
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return engine.ErrRoomNotFound
			}
			return err
		}
		doc, err := row.document()
		if err != nil {
			return err
		}
		if err := fn(&doc); err != nil {
			return err
		}

		doc.ID = id
		doc.Version = row.Version + 1
		doc.UpdatedAt = time.Now()
		body, err := json.Marshal(doc.State)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		if err := tx.Model(&row).Updates(map[string]any{
			"body":       body,
			"version":    doc.Version,
			"updated_at": doc.UpdatedAt,
		}).Error; err != nil {
			return err
		}
		// Delivered to listeners when the transaction commits.
		if err := tx.Exec("SELECT pg_notify(?, ?)", notifyChannel, payload(id, doc.Version)).Error; err != nil {
			return err
		}
		out = doc
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	p.remember(out)
	return out, nil
}

func (p *Postgres) Watch(ctx context.Context, id string) (<-chan Document, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}

	current, err := p.Get(ctx, id)
	if err != nil {
		conn.Release()
		return nil, err
	}

	ch := make(chan Document, 1)
	ch <- current

	go func() {
		defer close(ch)
		defer conn.Release()

		last := current.Version
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warnw("watch stopped", "room", id, "err", err)
				}
				return
			}
			nid, version, ok := parsePayload(n.Payload)
			if !ok || nid != id || version <= last {
				continue
			}

			doc, err := p.load(ctx, id, version)
			if err != nil {
				p.logger.Warnw("reload after notify failed", "room", id, "err", err)
				continue
			}
			if doc.Version <= last {
				continue
			}
			last = doc.Version
			offer(ch, doc)
		}
	}()
	return ch, nil
}

// load returns the cached document when it is at least version, otherwise
// reads it from the table.
func (p *Postgres) load(ctx context.Context, id string, version int) (Document, error) {
	if v, ok := p.cache.Get(id); ok {
		if doc := v.(Document); doc.Version >= version {
			doc.State = doc.State.Clone()
			return doc, nil
		}
	}
	return p.Get(ctx, id)
}

func (p *Postgres) remember(doc Document) {
	if v, ok := p.cache.Get(doc.ID); ok && v.(Document).Version > doc.Version {
		return
	}
	doc.State = doc.State.Clone()
	p.cache.Add(doc.ID, doc)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("close postgres: %w", err)
	}
	return sqlDB.Close()
}

func payload(id string, version int) string {
	return id + ":" + strconv.Itoa(version)
}

func parsePayload(s string) (string, int, bool) {
	id, v, ok := strings.Cut(s, ":")
	if !ok {
		return "", 0, false
	}
	version, err := strconv.Atoi(v)
	if err != nil {
		return "", 0, false
	}
	return id, version, true
}
