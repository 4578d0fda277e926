package records

import (
	"context"
	"time"
)

// ReceiptRecord is a saved receipt. Records are never updated after insert.
type ReceiptRecord struct {
	ID              int64     `json:"id"`
	StoreName       string    `json:"store_name"`
	TotalAmount     string    `json:"total_amount"`
	TransactionDate string    `json:"transaction_date"`
	Memo            string    `json:"memo"`
	ImagePath       string    `json:"image_path"`
	CreatedAt       time.Time `json:"created_at"`
}

// BusinessCardRecord is a saved business card
type BusinessCardRecord struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Company   string    `json:"company"`
	Title     string    `json:"title"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Memo      string    `json:"memo"`
	ImagePath string    `json:"image_path"`
	CreatedAt time.Time `json:"created_at"`
}

// ReceiptInput holds the caller supplied columns of a receipt
type ReceiptInput struct {
	StoreName       string
	TotalAmount     string
	TransactionDate string
	Memo            string
	ImagePath       string
}

// BusinessCardInput holds the caller supplied columns of a business card
type BusinessCardInput struct {
	Name      string
	Company   string
	Title     string
	Phone     string
	Email     string
	Memo      string
	ImagePath string
}

// Store persists receipts and business cards.
// Inserts are durable when they return; lists are ordered newest first.
type Store interface {
	// InsertReceipt appends a receipt and returns its assigned ID
	InsertReceipt(ctx context.Context, in ReceiptInput) (int64, error)

	// InsertBusinessCard appends a business card and returns its assigned ID
	InsertBusinessCard(ctx context.Context, in BusinessCardInput) (int64, error)

	// ListReceipts returns all receipts, newest first
	ListReceipts(ctx context.Context) ([]ReceiptRecord, error)

	// ListBusinessCards returns all business cards, newest first
	ListBusinessCards(ctx context.Context) ([]BusinessCardRecord, error)

	// Close closes the database
	Close() error
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}
