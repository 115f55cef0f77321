package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"gorm.io/gorm"
)

// Exporter materialises CSV and Parquet mint reports for a time window and
// records each run in the index.
type Exporter struct {
	db        *gorm.DB
	outputDir string
	logger    *slog.Logger
	now       func() time.Time
}

// NewExporter builds an exporter writing under outputDir.
func NewExporter(db *gorm.DB, outputDir string, logger *slog.Logger) (*Exporter, error) {
	if db == nil {
		return nil, fmt.Errorf("auditd: database required")
	}
	if outputDir == "" {
		outputDir = "mint-audit-exports"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{db: db, outputDir: outputDir, logger: logger, now: time.Now}, nil
}

// Run exports every mint observed inside [start, end).
func (e *Exporter) Run(ctx context.Context, start, end time.Time) (*ExportRun, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("auditd: export window ends before it starts")
	}
	startedAt := e.now().UTC()
	runID := uuid.New()

	var records []MintRecord
	err := e.db.WithContext(ctx).
		Where("observed_at >= ? AND observed_at < ?", start.UTC(), end.UTC()).
		Order("sequence asc").
		Find(&records).Error
	if err != nil {
		metrics().exportRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("auditd: load mints: %w", err)
	}

	runDir := filepath.Join(e.outputDir, runID.String())
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		metrics().exportRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("auditd: create export dir: %w", err)
	}
	csvPath := filepath.Join(runDir, "mints.csv")
	if err := writeCSV(csvPath, records); err != nil {
		metrics().exportRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	parquetPath := filepath.Join(runDir, "mints.parquet")
	if err := writeParquet(parquetPath, records); err != nil {
		metrics().exportRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	run := ExportRun{
		ID:          runID,
		WindowStart: start.UTC(),
		WindowEnd:   end.UTC(),
		Rows:        len(records),
		CSVPath:     csvPath,
		ParquetPath: parquetPath,
		StartedAt:   startedAt,
		FinishedAt:  e.now().UTC(),
	}
	if err := e.db.WithContext(ctx).Create(&run).Error; err != nil {
		metrics().exportRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("auditd: record export run: %w", err)
	}
	metrics().exportRuns.WithLabelValues("ok").Inc()
	metrics().exportRows.Add(float64(len(records)))
	e.logger.Info("export complete",
		"run", runID.String(),
		"rows", len(records),
		"csv", csvPath,
		"parquet", parquetPath,
	)
	return &run, nil
}

var csvHeader = []string{
	"sequence", "observed_at", "collection", "minter", "fee_recipient",
	"payer", "quantity", "unit_price", "fee_bps", "drop_stage_index",
}

func writeCSV(path string, records []MintRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("auditd: create csv: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("auditd: write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			strconv.FormatUint(rec.Sequence, 10),
			rec.ObservedAt.UTC().Format(time.RFC3339),
			rec.Collection,
			rec.Minter,
			rec.FeeRecipient,
			rec.Payer,
			strconv.FormatUint(rec.Quantity, 10),
			rec.UnitPrice,
			strconv.FormatUint(uint64(rec.FeeBps), 10),
			strconv.FormatUint(uint64(rec.DropStageIndex), 10),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("auditd: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("auditd: flush csv: %w", err)
	}
	return nil
}

type parquetRow struct {
	Sequence       int64  `parquet:"name=sequence, type=INT64"`
	ObservedAt     string `parquet:"name=observed_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	Collection     string `parquet:"name=collection, type=BYTE_ARRAY, convertedtype=UTF8"`
	Minter         string `parquet:"name=minter, type=BYTE_ARRAY, convertedtype=UTF8"`
	FeeRecipient   string `parquet:"name=fee_recipient, type=BYTE_ARRAY, convertedtype=UTF8"`
	Payer          string `parquet:"name=payer, type=BYTE_ARRAY, convertedtype=UTF8"`
	Quantity       int64  `parquet:"name=quantity, type=INT64"`
	UnitPrice      string `parquet:"name=unit_price, type=BYTE_ARRAY, convertedtype=UTF8"`
	FeeBps         int32  `parquet:"name=fee_bps, type=INT32"`
	DropStageIndex int32  `parquet:"name=drop_stage_index, type=INT32"`
}

func writeParquet(path string, records []MintRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("auditd: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("auditd: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		row := &parquetRow{
			Sequence:       int64(rec.Sequence),
			ObservedAt:     rec.ObservedAt.UTC().Format(time.RFC3339),
			Collection:     rec.Collection,
			Minter:         rec.Minter,
			FeeRecipient:   rec.FeeRecipient,
			Payer:          rec.Payer,
			Quantity:       int64(rec.Quantity),
			UnitPrice:      rec.UnitPrice,
			FeeBps:         int32(rec.FeeBps),
			DropStageIndex: int32(rec.DropStageIndex),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("auditd: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("auditd: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("auditd: close parquet: %w", err)
	}
	return nil
}
