package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"review-insights-platform/internal/store"
	"review-insights-platform/models"
)

func rating(v float64) *float64 { return &v }

func newTestExportService(t *testing.T) (*ExportService, *store.FileStore) {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir(), 4)
	require.NoError(t, err)
	seedCollection(t, fs, "trendyol_reviews_saat", []models.ReviewRecord{
		{ID: "r1", Platform: "Trendyol", ProductName: "Saat", Comment: comment("Çok şık duruyor"), Rating: rating(5), Timestamp: "2024-04-01T10:00:00.000Z"},
		{ID: "r2", Platform: "trendyol", ProductName: "Saat", Comment: comment("Kayışı kısa"), Rating: rating(3), Timestamp: "2024-04-03T10:00:00.000Z"},
	})
	return NewExportService(fs), fs
}

func TestExportCollectionJSON(t *testing.T) {
	svc, _ := newTestExportService(t)

	file, err := svc.ExportCollection(context.Background(), "trendyol_reviews_saat", ExportFormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "trendyol_reviews_saat.json", file.Filename)
	assert.Equal(t, 2, file.RecordCount)

	var data ExportData
	require.NoError(t, json.Unmarshal(file.Data, &data))
	assert.Equal(t, 2, data.ExportInfo.TotalRecords)
	assert.Equal(t, map[string]int{"trendyol": 2}, data.Summary.Platforms)
	assert.Equal(t, 1, data.Summary.Products)
	assert.InDelta(t, 4.0, data.Summary.AverageRating, 0.001)
	assert.Equal(t, "2024-04-01T10:00:00.000Z", data.Summary.FirstRecord)
	assert.Equal(t, "2024-04-03T10:00:00.000Z", data.Summary.LastRecord)
}

func TestExportCollectionExcel(t *testing.T) {
	svc, _ := newTestExportService(t)

	file, err := svc.ExportCollection(context.Background(), "trendyol_reviews_saat", ExportFormatExcel)
	require.NoError(t, err)

	wb, err := excelize.OpenReader(bytes.NewReader(file.Data))
	require.NoError(t, err)
	defer wb.Close()

	assert.Equal(t, []string{reviewsSheet, summarySheet}, wb.GetSheetList())
	rows, err := wb.GetRows(reviewsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, reviewHeaders, rows[0])
	assert.Equal(t, "r1", rows[1][0])
	assert.Equal(t, "Çok şık duruyor", rows[1][3])
}

func TestExportCollectionZip(t *testing.T) {
	svc, _ := newTestExportService(t)

	file, err := svc.ExportCollection(context.Background(), "trendyol_reviews_saat", ExportFormatBoth)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(file.Data), int64(len(file.Data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"trendyol_reviews_saat.json", "trendyol_reviews_saat.xlsx"}, names)
}

func TestExportCollectionErrors(t *testing.T) {
	svc, _ := newTestExportService(t)

	_, err := svc.ExportCollection(context.Background(), "empty_collection", ExportFormatJSON)
	assert.ErrorIs(t, err, ErrEmptyCollection)

	_, err = svc.ExportCollection(context.Background(), "trendyol_reviews_saat", "pdf")
	var validation *models.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestImportXLSXRoundTrip(t *testing.T) {
	svc, fs := newTestExportService(t)

	file, err := svc.ExportCollection(context.Background(), "trendyol_reviews_saat", ExportFormatExcel)
	require.NoError(t, err)

	res, err := svc.ImportXLSX(context.Background(), "trendyol_reviews_saat_copy", "", "", bytes.NewReader(file.Data))
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Rows: 2, Added: 2}, res)

	records, err := fs.Read(context.Background(), "trendyol_reviews_saat_copy", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r1", records[0].ID)
	require.NotNil(t, records[0].Rating)
	assert.Equal(t, 5.0, *records[0].Rating)

	res, err = svc.ImportXLSX(context.Background(), "trendyol_reviews_saat_copy", "", "", bytes.NewReader(file.Data))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, res.Added)
}

func TestImportXLSXTurkishColumns(t *testing.T) {
	svc, fs := newTestExportService(t)

	wb := excelize.NewFile()
	require.NoError(t, wb.SetSheetRow("Sheet1", "A1", &[]interface{}{"Yorum", "Puan"}))
	require.NoError(t, wb.SetSheetRow("Sheet1", "A2", &[]interface{}{"Harika ürün, tavsiye ederim", "4,5"}))
	require.NoError(t, wb.SetSheetRow("Sheet1", "A3", &[]interface{}{"", "1"}))
	var buf bytes.Buffer
	require.NoError(t, wb.Write(&buf))

	res, err := svc.ImportXLSX(context.Background(), "n11_yorumlar", "N11", "Kulaklık", &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)

	records, err := fs.Read(context.Background(), "n11_yorumlar", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "n11_yorumlar_row2", records[0].ID)
	assert.Equal(t, "N11", records[0].Platform)
	assert.Equal(t, "Kulaklık", records[0].ProductName)
	require.NotNil(t, records[0].Rating)
	assert.Equal(t, 4.5, *records[0].Rating)
}

func TestImportXLSXRejectsGarbage(t *testing.T) {
	svc, _ := newTestExportService(t)

	_, err := svc.ImportXLSX(context.Background(), "n11_x", "", "", bytes.NewReader([]byte("not a zip")))
	var validation *models.ValidationError
	assert.ErrorAs(t, err, &validation)
}
