package records

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"
)

// failingStore fails every list call
type failingStore struct {
	Store
	err error
}

func (f failingStore) ListReceipts(context.Context) ([]ReceiptRecord, error) {
	return nil, f.err
}

var _ = Describe("ExportXLSX", func() {
	var (
		store *SQLite
		buf   *bytes.Buffer
		err   error
	)

	BeforeEach(func() {
		var openErr error
		store, openErr = NewSQLiteWithTimeSource(
			filepath.Join(GinkgoT().TempDir(), "records.db"),
			&mockTimeSource{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		)
		Expect(openErr).NotTo(HaveOccurred())
		buf = &bytes.Buffer{}
	})

	AfterEach(func() {
		store.Close()
	})

	JustBeforeEach(func() {
		err = ExportXLSX(context.Background(), store, buf)
	})

	When("records exist", func() {
		var workbook *excelize.File

		BeforeEach(func() {
			_, insertErr := store.InsertReceipt(context.Background(), ReceiptInput{StoreName: "Acme", TotalAmount: "12.50", Memo: "lunch"})
			Expect(insertErr).NotTo(HaveOccurred())
			_, insertErr = store.InsertReceipt(context.Background(), ReceiptInput{StoreName: "Cafe", TotalAmount: "4.00"})
			Expect(insertErr).NotTo(HaveOccurred())
			_, insertErr = store.InsertBusinessCard(context.Background(), BusinessCardInput{Name: "Kim", Company: "Acme"})
			Expect(insertErr).NotTo(HaveOccurred())
		})

		JustBeforeEach(func() {
			Expect(err).NotTo(HaveOccurred())
			var openErr error
			workbook, openErr = excelize.OpenReader(bytes.NewReader(buf.Bytes()))
			Expect(openErr).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			workbook.Close()
		})

		It("should contain one sheet per table", func() {
			Expect(workbook.GetSheetList()).To(Equal([]string{"영수증", "명함"}))
		})

		It("should write the receipt header and rows newest first", func() {
			rows, rowsErr := workbook.GetRows("영수증")
			Expect(rowsErr).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(3))
			Expect(rows[0]).To(Equal(receiptHeaders))
			Expect(rows[1][1]).To(Equal("Cafe"))
			Expect(rows[2][1]).To(Equal("Acme"))
			Expect(rows[2][4]).To(Equal("lunch"))
		})

		It("should widen the data columns", func() {
			width, widthErr := workbook.GetColWidth("영수증", "B")
			Expect(widthErr).NotTo(HaveOccurred())
			Expect(width).To(Equal(18.0))
			width, widthErr = workbook.GetColWidth("명함", "I")
			Expect(widthErr).NotTo(HaveOccurred())
			Expect(width).To(Equal(18.0))
		})

		It("should write the business cards", func() {
			rows, rowsErr := workbook.GetRows("명함")
			Expect(rowsErr).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
			Expect(rows[1][1]).To(Equal("Kim"))
			Expect(rows[1][2]).To(Equal("Acme"))
		})
	})

	When("the store is empty", func() {
		It("should still write both headers", func() {
			Expect(err).NotTo(HaveOccurred())
			workbook, openErr := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
			Expect(openErr).NotTo(HaveOccurred())
			defer workbook.Close()
			rows, _ := workbook.GetRows("명함")
			Expect(rows).To(HaveLen(1))
		})
	})

	When("listing fails", func() {
		var setupErr error

		JustBeforeEach(func() {
			setupErr = errors.New("disk error")
			err = ExportXLSX(context.Background(), failingStore{Store: store, err: setupErr}, buf)
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(setupErr))
		})
	})
})
