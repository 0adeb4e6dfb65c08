package writer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"moverscan/internal/storage"
	"moverscan/logger"
	"moverscan/models"
)

// CandleRecord is one parquet row of the raw capture. Absent candle fields
// stay null.
type CandleRecord struct {
	Symbol                   string   `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	SubTypes                 string   `parquet:"name=sub_types, type=BYTE_ARRAY, convertedtype=UTF8"`
	OpenTime                 *int64   `parquet:"name=open_time, type=INT64, repetitiontype=OPTIONAL"`
	Open                     *float64 `parquet:"name=open, type=DOUBLE, repetitiontype=OPTIONAL"`
	High                     *float64 `parquet:"name=high, type=DOUBLE, repetitiontype=OPTIONAL"`
	Low                      *float64 `parquet:"name=low, type=DOUBLE, repetitiontype=OPTIONAL"`
	Close                    *float64 `parquet:"name=close, type=DOUBLE, repetitiontype=OPTIONAL"`
	Volume                   *float64 `parquet:"name=volume, type=DOUBLE, repetitiontype=OPTIONAL"`
	CloseTime                *int64   `parquet:"name=close_time, type=INT64, repetitiontype=OPTIONAL"`
	QuoteAssetVolume         *float64 `parquet:"name=quote_asset_volume, type=DOUBLE, repetitiontype=OPTIONAL"`
	NumberOfTrades           *int64   `parquet:"name=number_of_trades, type=INT64, repetitiontype=OPTIONAL"`
	TakerBuyBaseAssetVolume  *float64 `parquet:"name=taker_buy_base_asset_volume, type=DOUBLE, repetitiontype=OPTIONAL"`
	TakerBuyQuoteAssetVolume *float64 `parquet:"name=taker_buy_quote_asset_volume, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// memoryFileWriter implements source.ParquetFile for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (m *memoryFileWriter) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memoryFileWriter) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memoryFileWriter) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memoryFileWriter) Read([]byte) (int, error)                  { return 0, nil }
func (m *memoryFileWriter) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memoryFileWriter) Close() error                              { return nil }
func (m *memoryFileWriter) Bytes() []byte                             { return m.buffer.Bytes() }

// CandleArchive writes the raw capture of a run as one parquet file.
type CandleArchive struct {
	store       *storage.Store
	compression string
	log         *logger.Log
}

func NewCandleArchive(store *storage.Store, compression string) *CandleArchive {
	return &CandleArchive{
		store:       store,
		compression: compression,
		log:         logger.GetLogger(),
	}
}

// ArchiveKey names the parquet object of a run.
func ArchiveKey(interval string, at time.Time, runID string) string {
	return fmt.Sprintf("archive/klines_%s_%s_%s.parquet", interval, at.UTC().Format("20060102150405"), runID)
}

// Write encodes captures and stores them under ArchiveKey. It returns the key.
func (a *CandleArchive) Write(ctx context.Context, runID, interval string, at time.Time, captures []models.FetchResult) (string, error) {
	log := a.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"run_id":    runID,
		"operation": "write_archive",
	})
	start := time.Now()

	data, rows, err := encodeCandles(captures, a.compression)
	if err != nil {
		return "", err
	}

	key := ArchiveKey(interval, at, runID)
	if err := a.store.Put(ctx, key, data); err != nil {
		return "", err
	}

	logger.LogPerformanceEntry(log, "archive_writer", "write_archive", time.Since(start), logger.Fields{
		"key":         key,
		"rows":        rows,
		"file_size":   len(data),
		"compression": a.compression,
	})
	log.WithFields(logger.Fields{"key": key, "rows": rows}).Info("candle archive written")
	return key, nil
}

func encodeCandles(captures []models.FetchResult, compression string) ([]byte, int, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(CandleRecord), 4)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch compression {
	case "snappy", "":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	rows := 0
	for _, capture := range captures {
		subTypes := strings.Join(capture.SubTypes, ",")
		for _, c := range capture.Klines {
			record := CandleRecord{
				Symbol:                   capture.Symbol,
				SubTypes:                 subTypes,
				OpenTime:                 optInt(c.OpenTime),
				Open:                     optFloat(c.Open),
				High:                     optFloat(c.High),
				Low:                      optFloat(c.Low),
				Close:                    optFloat(c.Close),
				Volume:                   optFloat(c.Volume),
				CloseTime:                optInt(c.CloseTime),
				QuoteAssetVolume:         optFloat(c.QuoteAssetVolume),
				NumberOfTrades:           optInt(c.NumberOfTrades),
				TakerBuyBaseAssetVolume:  optFloat(c.TakerBuyBaseAssetVolume),
				TakerBuyQuoteAssetVolume: optFloat(c.TakerBuyQuoteAssetVolume),
			}
			if err := pw.Write(record); err != nil {
				pw.WriteStop()
				return nil, 0, fmt.Errorf("failed to write parquet record: %w", err)
			}
			rows++
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), rows, nil
}

func optFloat(o models.OptFloat) *float64 {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

func optInt(o models.OptInt) *int64 {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}
