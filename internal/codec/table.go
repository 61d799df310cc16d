// Package codec serializes the patients table to and from the
// single-sheet XLSX blob kept in remote storage. Column names double as
// record field names; schema-level validation of individual rows is the
// caller's responsibility.
package codec

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/Criser2013/adt-records/internal/conditions"
	"github.com/Criser2013/adt-records/internal/domain"
	"github.com/Criser2013/adt-records/internal/drive"
)

const sheetName = "Patients"

// EncodeTable serializes rows into a single-sheet XLSX blob using the
// fixed schema from domain.Columns(). Condition flags are written as
// 0/1 cells, the other-conditions flag as Yes/No.
func EncodeTable(rows []domain.PatientRecord) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo needs the file open; Close only on the error paths.

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, drive.WrapError(drive.KindSerializationFailed, "failed to create sheet", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headers := domain.Columns()
	if err := writeHeader(f, headers); err != nil {
		f.Close()
		return nil, drive.WrapError(drive.KindSerializationFailed, "failed to write header", err)
	}

	for rowIdx, rec := range rows {
		row := rowIdx + 2 // row 1 is the header
		for col, header := range headers {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, drive.WrapError(drive.KindSerializationFailed, "failed to convert coordinates", err)
			}
			if err := f.SetCellValue(sheetName, cell, cellValue(rec, header)); err != nil {
				f.Close()
				return nil, drive.WrapError(drive.KindSerializationFailed,
					fmt.Sprintf("failed to set cell %s", cell), err)
			}
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, drive.WrapError(drive.KindSerializationFailed, "failed to freeze header", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, drive.WrapError(drive.KindSerializationFailed, "failed to write workbook", err)
	}
	if err := f.Close(); err != nil {
		return nil, drive.WrapError(drive.KindSerializationFailed, "failed to close workbook", err)
	}
	return buf.Bytes(), nil
}

// DecodeTable parses the first sheet of blob into patient records.
// A zero-length blob is the empty table: a freshly created remote file
// has no content until the first upload.
func DecodeTable(blob []byte) ([]domain.PatientRecord, error) {
	if len(blob) == 0 {
		return []domain.PatientRecord{}, nil
	}

	f, err := excelize.OpenReader(bytes.NewReader(blob))
	if err != nil {
		return nil, drive.WrapError(drive.KindParseFailed, "not a well-formed workbook", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, drive.NewError(drive.KindParseFailed, "workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, drive.WrapError(drive.KindParseFailed, "failed to read rows", err)
	}
	if len(rows) < 2 {
		return []domain.PatientRecord{}, nil
	}

	headerMap := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		headerMap[h] = i
	}

	records := make([]domain.PatientRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, rowToRecord(row, headerMap))
	}
	return records, nil
}

func writeHeader(f *excelize.File, headers []string) error {
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return err
	}
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetName, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

func cellValue(rec domain.PatientRecord, header string) any {
	switch header {
	case domain.ColDocumentID:
		return rec.DocumentID
	case domain.ColFullName:
		return rec.FullName
	case domain.ColSex:
		return rec.Sex
	case domain.ColPhone:
		return rec.Phone
	case domain.ColBirthDate:
		return rec.BirthDate
	case domain.ColCreatedAt:
		return rec.CreatedAt
	case domain.ColOtherConditions:
		if rec.OtherConditions {
			return "Yes"
		}
		return "No"
	default:
		// Condition flag column.
		return rec.Conditions[header]
	}
}

func rowToRecord(row []string, headerMap map[string]int) domain.PatientRecord {
	cell := func(name string) string {
		idx, ok := headerMap[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	rec := domain.PatientRecord{
		DocumentID:      cell(domain.ColDocumentID),
		FullName:        cell(domain.ColFullName),
		Sex:             cell(domain.ColSex),
		Phone:           cell(domain.ColPhone),
		BirthDate:       cell(domain.ColBirthDate),
		CreatedAt:       cell(domain.ColCreatedAt),
		OtherConditions: cell(domain.ColOtherConditions) == "Yes",
		Conditions:      make(map[string]int, len(conditions.Vocabulary())),
	}
	for _, name := range conditions.Vocabulary() {
		if cell(name) == "1" {
			rec.Conditions[name] = 1
		} else {
			rec.Conditions[name] = 0
		}
	}
	return rec
}
