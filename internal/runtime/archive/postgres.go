package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
)

// PingTimeout bounds the connectivity check done by OpenPostgres.
var PingTimeout = 5 * time.Second

type recordModel struct {
	ID         string    `gorm:"primaryKey;size:64"`
	UID        string    `gorm:"index;not null"`
	Type       string    `gorm:"not null"`
	Category   string    `gorm:"index;not null"`
	How        string
	Payload    string    `gorm:"type:text;not null"`
	ReceivedAt time.Time `gorm:"index;not null"`
}

func (recordModel) TableName() string { return "cot_archive" }

func recordModelFrom(rec Record) recordModel {
	return recordModel{
		ID:         rec.ID,
		UID:        rec.UID,
		Type:       rec.Type,
		Category:   rec.Category,
		How:        rec.How,
		Payload:    rec.Payload,
		ReceivedAt: rec.ReceivedAt.UTC(),
	}
}

func (m recordModel) toRecord() Record {
	return Record{
		ID:         m.ID,
		UID:        m.UID,
		Type:       m.Type,
		Category:   m.Category,
		How:        m.How,
		Payload:    m.Payload,
		ReceivedAt: m.ReceivedAt.UTC(),
	}
}

// PostgresStore keeps records in the cot_archive table.
type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn, checks connectivity and migrates the table.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("archive: postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store, err := NewPostgresStore(db)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an open gorm handle and migrates the table.
func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(&recordModel{}); err != nil {
		return nil, fmt.Errorf("migrate cot_archive: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	row := recordModelFrom(rec)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", errspkg.ErrDuplicateRecord, rec.ID)
		}
		return fmt.Errorf("archive save %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	var row recordModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, fmt.Errorf("%w: %s", errspkg.ErrRecordNotFound, id)
		}
		return Record{}, fmt.Errorf("archive get %s: %w", id, err)
	}
	return row.toRecord(), nil
}

func (s *PostgresStore) List(ctx context.Context, q Query) ([]Record, error) {
	tx := s.db.WithContext(ctx).Model(&recordModel{})
	if q.UID != "" {
		tx = tx.Where("uid = ?", q.UID)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}

	var rows []recordModel
	if err := tx.Order("received_at ASC").Order("id ASC").Limit(q.limit()).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("archive list: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Store = (*PostgresStore)(nil)
