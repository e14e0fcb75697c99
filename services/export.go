package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"review-insights-platform/internal/logger"
	"review-insights-platform/internal/store"
	"review-insights-platform/models"
)

// Export formats
const (
	ExportFormatJSON  = "json"
	ExportFormatExcel = "xlsx"
	ExportFormatBoth  = "zip"
)

const (
	reviewsSheet = "Reviews"
	summarySheet = "Summary"
)

// reviewHeaders are the columns of the reviews sheet. ImportXLSX reads the
// same headers back.
var reviewHeaders = []string{
	"ID", "Platform", "Product Name", "Comment", "Rating", "Timestamp",
	"Product URL", "Product Price", "Total Reviews", "Search Term",
}

// ExportFile is a rendered export ready to be streamed to a client
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
	RecordCount int
}

// ExportData is the JSON export document
type ExportData struct {
	ExportInfo ExportInfo            `json:"export_info"`
	Reviews    []models.ReviewRecord `json:"reviews"`
	Summary    ExportSummary         `json:"summary"`
}

type ExportInfo struct {
	ExportDate     time.Time `json:"export_date"`
	CollectionName string    `json:"collection_name"`
	TotalRecords   int       `json:"total_records"`
	Format         string    `json:"format"`
}

type ExportSummary struct {
	Platforms     map[string]int `json:"platforms"`
	Products      int            `json:"products"`
	WithComment   int            `json:"with_comment"`
	AverageRating float64        `json:"average_rating,omitempty"`
	FirstRecord   string         `json:"first_record,omitempty"`
	LastRecord    string         `json:"last_record,omitempty"`
}

// ImportResult reports what an import appended
type ImportResult struct {
	Rows    int `json:"rows"`
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// ExportService renders collections as spreadsheets or JSON and imports
// spreadsheets back into collections.
type ExportService struct {
	store store.CollectionStore
	now   func() time.Time
}

// NewExportService creates a new export service
func NewExportService(st store.CollectionStore) *ExportService {
	return &ExportService{store: st, now: time.Now}
}

// ExportCollection renders one collection in the requested format
func (es *ExportService) ExportCollection(ctx context.Context, name, format string) (*ExportFile, error) {
	records, err := es.store.Read(ctx, name, 0)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmptyCollection
	}

	data := &ExportData{
		ExportInfo: ExportInfo{
			ExportDate:     es.now().UTC(),
			CollectionName: name,
			TotalRecords:   len(records),
			Format:         format,
		},
		Reviews: records,
		Summary: summarize(records),
	}

	switch format {
	case ExportFormatJSON, "":
		body, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return &ExportFile{Filename: name + ".json", ContentType: "application/json", Data: body, RecordCount: len(records)}, nil

	case ExportFormatExcel, "excel":
		body, err := renderWorkbook(data)
		if err != nil {
			return nil, err
		}
		return &ExportFile{
			Filename:    name + ".xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        body,
			RecordCount: len(records),
		}, nil

	case ExportFormatBoth, "both":
		body, err := renderZip(name, data)
		if err != nil {
			return nil, err
		}
		return &ExportFile{Filename: name + ".zip", ContentType: "application/zip", Data: body, RecordCount: len(records)}, nil
	}
	return nil, &models.ValidationError{Field: "format", Message: fmt.Sprintf("unsupported format: %s", format)}
}

func summarize(records []models.ReviewRecord) ExportSummary {
	summary := ExportSummary{Platforms: map[string]int{}}
	products := map[string]struct{}{}
	var ratingSum float64
	var rated int
	var first, last time.Time

	for _, r := range records {
		platform := strings.ToLower(r.Platform)
		if platform == "" {
			platform = "unknown"
		}
		summary.Platforms[platform]++
		if r.ProductName != "" {
			products[r.ProductName] = struct{}{}
		}
		if r.Comment != nil && strings.TrimSpace(*r.Comment) != "" {
			summary.WithComment++
		}
		if r.Rating != nil {
			ratingSum += *r.Rating
			rated++
		}
		if ts := r.ParsedTimestamp(); !ts.IsZero() {
			if first.IsZero() || ts.Before(first) {
				first = ts
			}
			if ts.After(last) {
				last = ts
			}
		}
	}

	summary.Products = len(products)
	if rated > 0 {
		summary.AverageRating = ratingSum / float64(rated)
	}
	if !first.IsZero() {
		summary.FirstRecord = models.FormatTimestamp(first)
		summary.LastRecord = models.FormatTimestamp(last)
	}
	return summary
}

func renderWorkbook(data *ExportData) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Error closing Excel file", "error", err)
		}
	}()

	index, err := f.NewSheet(reviewsSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	header := make([]interface{}, len(reviewHeaders))
	for i, h := range reviewHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(reviewsSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	for i, r := range data.Reviews {
		row := []interface{}{
			r.ID, r.Platform, r.ProductName, derefString(r.Comment), derefFloat(r.Rating), r.Timestamp,
			r.ProductURL, derefFloat(firstPrice(r)), r.TotalReviews, r.SearchTerm,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(reviewsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(reviewHeaders))
	if err := f.SetColWidth(reviewsSheet, "A", lastCol, 18); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(reviewsSheet, "D", "D", 60); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	summaryRows := [][]interface{}{
		{"Export Information", ""},
		{"Collection", data.ExportInfo.CollectionName},
		{"Export Date", data.ExportInfo.ExportDate.Format("2006-01-02 15:04:05")},
		{"Total Records", data.ExportInfo.TotalRecords},
		{"", ""},
		{"Summary Statistics", ""},
		{"Products", data.Summary.Products},
		{"Records With Comment", data.Summary.WithComment},
		{"Average Rating", fmt.Sprintf("%.2f", data.Summary.AverageRating)},
		{"First Record", data.Summary.FirstRecord},
		{"Last Record", data.Summary.LastRecord},
		{"", ""},
		{"Platform", "Count"},
	}
	for _, platform := range slices.Sorted(maps.Keys(data.Summary.Platforms)) {
		summaryRows = append(summaryRows, []interface{}{platform, data.Summary.Platforms[platform]})
	}
	for i, row := range summaryRows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write summary: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

// renderZip bundles the JSON and Excel exports
func renderZip(name string, data *ExportData) ([]byte, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	excelData, err := renderWorkbook(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)
	for _, entry := range []struct {
		name string
		body []byte
	}{
		{name + ".json", jsonData},
		{name + ".xlsx", excelData},
	} {
		w, err := zipWriter.Create(entry.name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s in ZIP: %w", entry.name, err)
		}
		if _, err := w.Write(entry.body); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", entry.name, err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close ZIP writer: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportXLSX appends the rows of the first sheet of a workbook to a
// collection. Headers are matched case-insensitively against the export
// columns and the Turkish "Yorum"/"Puan"/"Tarih" columns. Rows without an ID
// get "<collection>_row<n>" so that re-importing the same file adds nothing.
func (es *ExportService) ImportXLSX(ctx context.Context, name, platform, productName string, r io.Reader) (*ImportResult, error) {
	if err := store.ValidateCollectionName(name); err != nil {
		return nil, err
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &models.ValidationError{Field: "file", Message: fmt.Sprintf("not a valid xlsx workbook: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &models.ValidationError{Field: "file", Message: "workbook has no sheets"}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) < 2 {
		return &ImportResult{}, nil
	}

	columns := map[string]int{}
	for i, h := range rows[0] {
		columns[importColumn(h)] = i
	}
	if _, ok := columns["comment"]; !ok {
		return nil, &models.ValidationError{Field: "file", Message: "workbook has no comment column"}
	}

	cell := func(row []string, key string) string {
		i, ok := columns[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	timestamp := models.FormatTimestamp(es.now())
	records := make([]models.ReviewRecord, 0, len(rows)-1)
	for n, row := range rows[1:] {
		text := cell(row, "comment")
		if text == "" {
			continue
		}
		rec := models.ReviewRecord{
			ID:             cell(row, "id"),
			CollectionName: name,
			Platform:       firstNonEmpty(cell(row, "platform"), platform),
			ProductName:    firstNonEmpty(cell(row, "product"), productName),
			Comment:        &text,
			Timestamp:      firstNonEmpty(cell(row, "timestamp"), timestamp),
			ProductURL:     cell(row, "url"),
			SearchTerm:     cell(row, "search"),
		}
		if rec.ID == "" {
			rec.ID = fmt.Sprintf("%s_row%d", name, n+2)
		}
		if v, err := strconv.ParseFloat(strings.ReplaceAll(cell(row, "rating"), ",", "."), 64); err == nil {
			rec.Rating = &v
		}
		if v, err := strconv.ParseFloat(cell(row, "price"), 64); err == nil {
			rec.ProductPrice = &v
		}
		records = append(records, rec)
	}

	res, err := es.store.Append(ctx, name, records)
	if err != nil {
		return nil, err
	}
	logger.Info("Imported workbook", "collection", name, "rows", len(records), "added", res.Added, "skipped", res.Skipped)
	return &ImportResult{Rows: len(records), Added: res.Added, Skipped: res.Skipped}, nil
}

func importColumn(header string) string {
	switch strings.ToLower(strings.TrimSpace(header)) {
	case "id":
		return "id"
	case "platform":
		return "platform"
	case "product name", "product", "ürün", "ürün adı":
		return "product"
	case "comment", "yorum":
		return "comment"
	case "rating", "puan":
		return "rating"
	case "timestamp", "tarih", "date":
		return "timestamp"
	case "product url", "url":
		return "url"
	case "product price", "price", "fiyat":
		return "price"
	case "search term":
		return "search"
	}
	return "-" + header
}

func firstPrice(r models.ReviewRecord) *float64 {
	if r.ProductPrice != nil {
		return r.ProductPrice
	}
	return r.Price
}

func derefString(s *string) interface{} {
	if s == nil {
		return ""
	}
	return *s
}

func derefFloat(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
