package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/brensch/csvevents/internal/mapping"
)

// ParquetEmitter writes one Parquet file per data type in testing mode.
// Every column is an optional UTF-8 string; missing fields are written as null.
type ParquetEmitter struct {
	dir      string
	stamp    string
	mappings mapping.FieldMappings
	logger   *slog.Logger
	writers  map[string]*parquetSink
}

type parquetSink struct {
	path    string
	fields  []string
	fw      source.ParquetFile
	pw      *writer.CSVWriter
	written int64
}

// NewParquetEmitter writes dir/output.<stamp>.<type>.parquet files, created
// on the first event of each type.
func NewParquetEmitter(dir, stamp string, mappings mapping.FieldMappings, logger *slog.Logger) *ParquetEmitter {
	if dir == "" {
		dir = "."
	}
	return &ParquetEmitter{
		dir:      dir,
		stamp:    stamp,
		mappings: mappings,
		logger:   logger,
		writers:  make(map[string]*parquetSink),
	}
}

// Columns returns the output columns for a data type in file order.
func (e *ParquetEmitter) Columns(dataType string) []string {
	fields := e.mappings.DestinationFields(dataType)
	for _, f := range fields {
		if f == AppNameField {
			return fields
		}
	}
	return append(fields, AppNameField)
}

// Path returns the file a data type is written to.
func (e *ParquetEmitter) Path(dataType string) string {
	return filepath.Join(e.dir, fmt.Sprintf("output.%s.%s.parquet", e.stamp, dataType))
}

func (e *ParquetEmitter) Emit(ctx context.Context, dataType string, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sink, err := e.sink(dataType)
	if err != nil {
		return err
	}
	rec := make([]*string, len(sink.fields))
	for i, f := range sink.fields {
		if v, ok := event[f]; ok {
			val := v
			rec[i] = &val
		}
	}
	if err := sink.pw.WriteString(rec); err != nil {
		return fmt.Errorf("write parquet row to %s: %w", sink.path, err)
	}
	sink.written++
	return nil
}

func (e *ParquetEmitter) sink(dataType string) (*parquetSink, error) {
	if s, ok := e.writers[dataType]; ok {
		return s, nil
	}
	fields := e.Columns(dataType)
	names := columnNames(fields)
	meta := make([]string, len(fields))
	for i, name := range names {
		meta[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", name)
	}
	path := e.Path(dataType)
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("create parquet file %s: %w", path, err)
	}
	pw, err := writer.NewCSVWriter(meta, fw, 4)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("create parquet writer %s: %w", path, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	e.logger.Debug("Created parquet writer.", slog.String("data_type", dataType), slog.String("path", path), slog.Any("columns", names))

	s := &parquetSink{path: path, fields: fields, fw: fw, pw: pw}
	e.writers[dataType] = s
	return s, nil
}

// Close finalizes every file that was opened.
func (e *ParquetEmitter) Close() error {
	var errs error
	for dataType, s := range e.writers {
		if err := s.pw.WriteStop(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("stop writer %s: %w", s.path, err))
		}
		if err := s.fw.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("close file %s: %w", s.path, err))
		}
		e.logger.Debug("Closed parquet writer.", slog.String("data_type", dataType), slog.Int64("rows", s.written))
	}
	e.writers = make(map[string]*parquetSink)
	return errs
}

// columnNames cleans every field with columnName and suffixes repeats
// (_2, _3, ...) so that no two columns share a name.
func columnNames(fields []string) []string {
	used := make(map[string]bool, len(fields))
	out := make([]string, len(fields))
	for i, f := range fields {
		base := columnName(f, i)
		name := base
		for n := 2; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}

// columnName makes a field name usable in a parquet schema string.
func columnName(field string, i int) string {
	clean := strings.NewReplacer(" ", "_", ".", "_", ";", "_", ",", "_", "=", "_").Replace(field)
	if clean == "" {
		clean = fmt.Sprintf("column_%d", i)
	}
	return clean
}
