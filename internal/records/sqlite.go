package records

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// timestampLayout is fixed width so created_at sorts correctly as text
const timestampLayout = "2006-01-02 15:04:05.000000"

// SQLite implements the Store interface on an embedded SQLite database
type SQLite struct {
	db         *sql.DB
	timeSource TimeSource
}

// NewSQLite opens (creating if needed) the database at path and creates the tables
func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithTimeSource(path, defaultTimeSource{})
}

// NewSQLiteWithTimeSource opens the database with a custom clock for created_at
func NewSQLiteWithTimeSource(path string, timeSource TimeSource) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// one writer, one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &SQLite{db: db, timeSource: timeSource}, nil
}

// InsertReceipt appends a receipt row
func (s *SQLite) InsertReceipt(ctx context.Context, in ReceiptInput) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO receipts (store_name, total_amount, transaction_date, memo, image_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		in.StoreName, in.TotalAmount, in.TransactionDate, in.Memo, in.ImagePath, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting receipt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading receipt id: %w", err)
	}
	return id, nil
}

// InsertBusinessCard appends a business card row
func (s *SQLite) InsertBusinessCard(ctx context.Context, in BusinessCardInput) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO business_cards (name, company, title, phone, email, memo, image_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Name, in.Company, in.Title, in.Phone, in.Email, in.Memo, in.ImagePath, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting business card: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading business card id: %w", err)
	}
	return id, nil
}

// ListReceipts returns all receipts, newest first
func (s *SQLite) ListReceipts(ctx context.Context) ([]ReceiptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_name, total_amount, transaction_date, memo, image_path, created_at
		FROM receipts
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]ReceiptRecord, 0)
	for rows.Next() {
		var (
			r         ReceiptRecord
			text      [5]sql.NullString
			createdAt timestamp
		)
		if err := rows.Scan(&r.ID, &text[0], &text[1], &text[2], &text[3], &text[4], &createdAt); err != nil {
			return nil, fmt.Errorf("scanning receipt: %w", err)
		}
		r.StoreName, r.TotalAmount, r.TransactionDate = text[0].String, text[1].String, text[2].String
		r.Memo, r.ImagePath = text[3].String, text[4].String
		r.CreatedAt = createdAt.Time
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating receipts: %w", err)
	}
	return receipts, nil
}

// ListBusinessCards returns all business cards, newest first
func (s *SQLite) ListBusinessCards(ctx context.Context) ([]BusinessCardRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, company, title, phone, email, memo, image_path, created_at
		FROM business_cards
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying business cards: %w", err)
	}
	defer rows.Close()

	cards := make([]BusinessCardRecord, 0)
	for rows.Next() {
		var (
			c         BusinessCardRecord
			text      [7]sql.NullString
			createdAt timestamp
		)
		if err := rows.Scan(&c.ID, &text[0], &text[1], &text[2], &text[3], &text[4], &text[5], &text[6], &createdAt); err != nil {
			return nil, fmt.Errorf("scanning business card: %w", err)
		}
		c.Name, c.Company, c.Title, c.Phone, c.Email = text[0].String, text[1].String, text[2].String, text[3].String, text[4].String
		c.Memo, c.ImagePath = text[5].String, text[6].String
		c.CreatedAt = createdAt.Time
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating business cards: %w", err)
	}
	return cards, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) now() string {
	return s.timeSource.Now().UTC().Format(timestampLayout)
}

// timestamp scans created_at whether the driver hands back text or an already parsed time
type timestamp struct {
	time.Time
}

func (t *timestamp) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = x.UTC()
		return nil
	case string:
		return t.parse(x)
	case []byte:
		return t.parse(string(x))
	default:
		return fmt.Errorf("unsupported created_at type %T", v)
	}
}

func (t *timestamp) parse(s string) error {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("parsing created_at %q", s)
}
