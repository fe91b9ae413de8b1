// Package interactions loads source -> destination interaction tables and turns
// them into CSR adjacencies.
package interactions

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/parquet-go/parquet-go"

	"github.com/23skdu/contextrank/internal/csr"
	cerrors "github.com/23skdu/contextrank/internal/errors"
)

// InteractionRecord represents a single interaction row for Parquet serialization
type InteractionRecord struct {
	Src int32 `parquet:"src"`
	Dst int32 `parquet:"dst"`
}

// Schema is the Arrow schema of an interaction batch.
var Schema = arrow.NewSchema(
	[]arrow.Field{
		{Name: "src", Type: arrow.PrimitiveTypes.Int32},
		{Name: "dst", Type: arrow.PrimitiveTypes.Int32},
	},
	nil,
)

// NewRecord builds an interaction batch from parallel edge lists.
func NewRecord(mem memory.Allocator, src, dst []int32) (arrow.Record, error) {
	if len(src) != len(dst) {
		return nil, cerrors.Newf(cerrors.ErrorTypeValidation, "interactions.NewRecord",
			"len(src) = %d but len(dst) = %d", len(src), len(dst))
	}
	b := array.NewRecordBuilder(mem, Schema)
	defer b.Release()

	b.Field(0).(*array.Int32Builder).AppendValues(src, nil)
	b.Field(1).(*array.Int32Builder).AppendValues(dst, nil)
	return b.NewRecord(), nil
}

// WriteParquet writes one or more interaction batches to a Parquet writer.
// It uses a single parquet.Writer to ensure a valid file with one footer.
func WriteParquet(w io.Writer, records ...arrow.Record) error {
	pw := parquet.NewGenericWriter[InteractionRecord](w, parquet.Compression(&parquet.Zstd))

	for _, rec := range records {
		src, dst, err := columns(rec)
		if err != nil {
			_ = pw.Close()
			return err
		}
		rows := make([]InteractionRecord, len(src))
		for i := range rows {
			rows[i] = InteractionRecord{Src: src[i], Dst: dst[i]}
		}
		if _, err := pw.Write(rows); err != nil {
			_ = pw.Close()
			return cerrors.WrapStorageError(err, "interactions.WriteParquet", "write rows")
		}
	}
	if err := pw.Close(); err != nil {
		return cerrors.WrapStorageError(err, "interactions.WriteParquet", "close writer")
	}
	return nil
}

// ReadParquet reads an interaction Parquet file into an Arrow record
func ReadParquet(r io.ReaderAt, size int64, mem memory.Allocator) (arrow.Record, error) {
	const op = "interactions.ReadParquet"

	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, cerrors.WrapStorageError(err, op, "open parquet file")
	}

	pr := parquet.NewGenericReader[InteractionRecord](pf)
	defer pr.Close()

	rows := make([]InteractionRecord, pr.NumRows())
	n, err := pr.Read(rows)
	if err != nil && err != io.EOF {
		return nil, cerrors.WrapStorageError(err, op, "read rows")
	}
	rows = rows[:n]

	src := make([]int32, len(rows))
	dst := make([]int32, len(rows))
	for i, row := range rows {
		src[i] = row.Src
		dst[i] = row.Dst
	}
	return NewRecord(mem, src, dst)
}

// ToAdjacency coalesces an interaction batch into a CSR adjacency.
func ToAdjacency(rec arrow.Record, numSrc, numDst int) (*csr.Adjacency, error) {
	src, dst, err := columns(rec)
	if err != nil {
		return nil, err
	}
	return csr.FromEdges(src, dst, numSrc, numDst)
}

func columns(rec arrow.Record) (src, dst []int32, err error) {
	const op = "interactions.columns"

	if rec.NumCols() < 2 {
		return nil, nil, cerrors.Newf(cerrors.ErrorTypeValidation, op, "expected src and dst columns, got %d", rec.NumCols())
	}
	idx := map[string]int{}
	for i, f := range rec.Schema().Fields() {
		if f.Name == "src" || f.Name == "dst" {
			idx[f.Name] = i
		}
	}
	for _, name := range []string{"src", "dst"} {
		if _, ok := idx[name]; !ok {
			return nil, nil, cerrors.NewValidationError(op, fmt.Sprintf("missing %s column", name)).
				WithContext("column", name)
		}
	}

	srcCol, ok := rec.Column(idx["src"]).(*array.Int32)
	if !ok {
		return nil, nil, cerrors.NewValidationError(op, fmt.Sprintf("src column has type %s", rec.Column(idx["src"]).DataType()))
	}
	dstCol, ok := rec.Column(idx["dst"]).(*array.Int32)
	if !ok {
		return nil, nil, cerrors.NewValidationError(op, fmt.Sprintf("dst column has type %s", rec.Column(idx["dst"]).DataType()))
	}
	if srcCol.NullN() > 0 || dstCol.NullN() > 0 {
		return nil, nil, cerrors.NewValidationError(op, "interaction columns contain nulls")
	}
	return srcCol.Int32Values(), dstCol.Int32Values(), nil
}
