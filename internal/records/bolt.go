package records

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	receiptsBucket      = "receipts"
	businessCardsBucket = "business_cards"
)

// BoltDB implements the Store interface using BoltDB.
// Each table is a bucket keyed by a big-endian sequence number.
type BoltDB struct {
	db         *bbolt.DB
	timeSource TimeSource
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	return NewBoltDBWithTimeSource(path, defaultTimeSource{})
}

// NewBoltDBWithTimeSource creates a BoltDB with a custom clock for created_at
func NewBoltDBWithTimeSource(path string, timeSource TimeSource) (*BoltDB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(receiptsBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(businessCardsBucket)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db, timeSource: timeSource}, nil
}

// InsertReceipt saves a receipt under the next id of the receipts bucket
func (b *BoltDB) InsertReceipt(_ context.Context, in ReceiptInput) (int64, error) {
	var id int64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptsBucket))
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating id: %w", err)
		}
		id = int64(seq)
		data, err := json.Marshal(ReceiptRecord{
			ID:              id,
			StoreName:       in.StoreName,
			TotalAmount:     in.TotalAmount,
			TransactionDate: in.TransactionDate,
			Memo:            in.Memo,
			ImagePath:       in.ImagePath,
			CreatedAt:       b.timeSource.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("marshaling receipt: %w", err)
		}
		return bucket.Put(itob(seq), data)
	})
	if err != nil {
		return 0, fmt.Errorf("inserting receipt: %w", err)
	}
	return id, nil
}

// InsertBusinessCard saves a business card under the next id of its bucket
func (b *BoltDB) InsertBusinessCard(_ context.Context, in BusinessCardInput) (int64, error) {
	var id int64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(businessCardsBucket))
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating id: %w", err)
		}
		id = int64(seq)
		data, err := json.Marshal(BusinessCardRecord{
			ID:        id,
			Name:      in.Name,
			Company:   in.Company,
			Title:     in.Title,
			Phone:     in.Phone,
			Email:     in.Email,
			Memo:      in.Memo,
			ImagePath: in.ImagePath,
			CreatedAt: b.timeSource.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("marshaling business card: %w", err)
		}
		return bucket.Put(itob(seq), data)
	})
	if err != nil {
		return 0, fmt.Errorf("inserting business card: %w", err)
	}
	return id, nil
}

// ListReceipts returns all receipts, newest first
func (b *BoltDB) ListReceipts(_ context.Context) ([]ReceiptRecord, error) {
	receipts := make([]ReceiptRecord, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(receiptsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r ReceiptRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			receipts = append(receipts, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// ids are already descending; this only matters if the clock went backwards
	sort.SliceStable(receipts, func(i, j int) bool {
		return receipts[i].CreatedAt.After(receipts[j].CreatedAt)
	})
	return receipts, nil
}

// ListBusinessCards returns all business cards, newest first
func (b *BoltDB) ListBusinessCards(_ context.Context) ([]BusinessCardRecord, error) {
	cards := make([]BusinessCardRecord, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(businessCardsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var card BusinessCardRecord
			if err := json.Unmarshal(v, &card); err != nil {
				return fmt.Errorf("unmarshaling business card: %w", err)
			}
			cards = append(cards, card)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].CreatedAt.After(cards[j].CreatedAt)
	})
	return cards, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func itob(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
