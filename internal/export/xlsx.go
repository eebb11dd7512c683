// Package export writes the catalog to spreadsheet files.
package export

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/tainan-eats/storedir/internal/model"
)

// SheetName is the name of the single sheet WriteXLSX produces.
const SheetName = "stores"

// Header lists the exported columns in order.
var Header = []string{
	"id", "name", "district", "rating", "reviews", "address",
	"phone", "lat", "lng", "status", "maps url",
}

// WriteXLSX saves stores to path as one sheet with a header row. Ratings are
// written as 0.0-5.0 decimals with one place.
func WriteXLSX(path string, stores []model.StoreRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	addStrings(sheet.AddRow(), Header)
	for _, s := range stores {
		row := sheet.AddRow()
		row.AddCell().SetString(s.ProviderID)
		row.AddCell().SetString(s.Name)
		row.AddCell().SetString(s.District)
		row.AddCell().SetString(formatRating(s.RatingTenths))
		row.AddCell().SetInt(s.ReviewCount)
		row.AddCell().SetString(s.Address)
		row.AddCell().SetString(s.Phone)
		row.AddCell().SetString(deref(s.Lat))
		row.AddCell().SetString(deref(s.Lng))
		row.AddCell().SetString(string(s.BusinessStatus))
		row.AddCell().SetString(s.MapsURL)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "export: save file")
	}
	return nil
}

// ReadXLSX reads back the rows of a file written by WriteXLSX, header
// included.
func ReadXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open file")
	}
	sheet, ok := f.Sheet[SheetName]
	if !ok {
		return nil, eris.Errorf("export: sheet %q not found", SheetName)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func addStrings(row *xlsx.Row, vals []string) {
	for _, v := range vals {
		row.AddCell().SetString(v)
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func formatRating(tenths *int) string {
	if tenths == nil {
		return ""
	}
	return strconv.FormatFloat(float64(*tenths)/10, 'f', 1, 64)
}
