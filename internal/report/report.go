package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"agromarket/internal/models"
)

const sheetName = "Listings"

var header = []string{"ID", "Farmer", "Crop", "Quantity", "Price", "Fair Min", "Fair Max", "Location", "Trend", "Origin", "Updated At"}

func origin(l models.Listing) string {
	if l.IsLocal() {
		return string(models.OriginLocal)
	}
	return string(models.OriginRemote)
}

func updatedAt(l models.Listing) string {
	if l.UpdatedAt == 0 {
		return ""
	}
	return time.UnixMilli(l.UpdatedAt).UTC().Format(time.RFC3339)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes one row per listing after a header row.
func WriteCSV(w io.Writer, listings []models.Listing) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, l := range listings {
		row := []string{
			strconv.Itoa(l.ID),
			l.Farmer,
			l.Crop,
			l.Qty,
			formatFloat(l.Price),
			formatFloat(l.FairMin),
			formatFloat(l.FairMax),
			l.Location,
			strconv.Itoa(l.Trend),
			origin(l),
			updatedAt(l),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the listings as a single-sheet workbook.
func WriteXLSX(w io.Writer, listings []models.Listing) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("xlsx: new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("xlsx: drop default sheet: %w", err)
	}

	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &headerRow); err != nil {
		return fmt.Errorf("xlsx: write header: %w", err)
	}

	for i, l := range listings {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			l.ID, l.Farmer, l.Crop, l.Qty, l.Price, l.FairMin, l.FairMax,
			l.Location, l.Trend, origin(l), updatedAt(l),
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("xlsx: write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx: write workbook: %w", err)
	}
	return nil
}
