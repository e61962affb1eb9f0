package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/spacecat/sage/internal/captioning"
)

// Row is one caption in a dataset file, laid out the way image-folder
// dataset loaders expect (file_name + text)
type Row struct {
	FileName  string `parquet:"file_name"`
	Text      string `parquet:"text"`
	UpdatedAt int64  `parquet:"updated_at_ms"`
}

// CaptionWriter stores imported captions
type CaptionWriter interface {
	UpsertCaption(ctx context.Context, imageName, caption string) error
}

// Parquet writes every stored caption to a Parquet file at path
func Parquet(ctx context.Context, store CaptionLister, path string) (int, error) {
	records, err := store.GetAllCaptions(ctx)
	if err != nil {
		return 0, err
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, Row{
			FileName:  rec.ImageName,
			Text:      rec.Caption,
			UpdatedAt: rec.UpdatedAt.UnixMilli(),
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create export directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[Row](file)
	if _, err := writer.Write(rows); err != nil {
		return 0, fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize parquet file: %w", err)
	}

	slog.Info("Exported parquet dataset", "path", path, "rows", len(rows))
	return len(rows), nil
}

// LoadParquet reads caption rows back from a Parquet file
func LoadParquet(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	var rows []Row
	batch := make([]Row, 256)
	for {
		n, err := reader.Read(batch)
		rows = append(rows, batch[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return rows, nil
}

// ImportParquet upserts every row of a Parquet caption file into store
func ImportParquet(ctx context.Context, path string, store CaptionWriter) (int, error) {
	rows, err := LoadParquet(path)
	if err != nil {
		return 0, err
	}
	imported := 0
	for _, row := range rows {
		name := filepath.Base(row.FileName)
		if !captioning.IsPlainName(name) {
			continue
		}
		if err := store.UpsertCaption(ctx, name, row.Text); err != nil {
			return imported, err
		}
		imported++
	}
	slog.Info("Imported captions from parquet", "path", path, "rows", imported)
	return imported, nil
}
