package records

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	receiptsSheet      = "영수증"
	businessCardsSheet = "명함"
	exportTimeLayout   = "2006-01-02 15:04:05"
)

var (
	receiptHeaders      = []string{"ID", "상호명", "총액", "거래일시", "메모", "이미지", "저장일시"}
	businessCardHeaders = []string{"ID", "이름", "회사", "직책", "전화번호", "이메일", "메모", "이미지", "저장일시"}
)

// ExportXLSX writes every saved receipt and business card to w as an Excel workbook,
// one sheet per table, newest first.
func ExportXLSX(ctx context.Context, store Store, w io.Writer) error {
	receipts, err := store.ListReceipts(ctx)
	if err != nil {
		return fmt.Errorf("listing receipts: %w", err)
	}
	cards, err := store.ListBusinessCards(ctx)
	if err != nil {
		return fmt.Errorf("listing business cards: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	// rename the default sheet rather than leaving an empty Sheet1 behind
	if err := f.SetSheetName(f.GetSheetName(0), receiptsSheet); err != nil {
		return fmt.Errorf("creating receipts sheet: %w", err)
	}
	if _, err := f.NewSheet(businessCardsSheet); err != nil {
		return fmt.Errorf("creating business cards sheet: %w", err)
	}

	receiptRows := make([][]any, 0, len(receipts))
	for _, r := range receipts {
		receiptRows = append(receiptRows, []any{
			r.ID, r.StoreName, r.TotalAmount, r.TransactionDate, r.Memo, r.ImagePath,
			r.CreatedAt.Local().Format(exportTimeLayout),
		})
	}
	if err := writeSheet(f, receiptsSheet, receiptHeaders, receiptRows); err != nil {
		return err
	}

	cardRows := make([][]any, 0, len(cards))
	for _, c := range cards {
		cardRows = append(cardRows, []any{
			c.ID, c.Name, c.Company, c.Title, c.Phone, c.Email, c.Memo, c.ImagePath,
			c.CreatedAt.Local().Format(exportTimeLayout),
		})
	}
	if err := writeSheet(f, businessCardsSheet, businessCardHeaders, cardRows); err != nil {
		return err
	}

	index, err := f.GetSheetIndex(receiptsSheet)
	if err == nil {
		f.SetActiveSheet(index)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("writing %s header: %w", sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+2, err)
		}
	}

	last, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "B", last, 18); err != nil {
		return fmt.Errorf("sizing %s columns: %w", sheet, err)
	}
	return nil
}
