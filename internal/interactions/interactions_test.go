package interactions

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/23skdu/contextrank/internal/errors"
	"github.com/23skdu/contextrank/internal/logging"
)

func writeSplit(t *testing.T, dir, name string, src, dst []int32) {
	t.Helper()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec, err := NewRecord(mem, src, dst)
	require.NoError(t, err)
	defer rec.Release()

	f, err := os.Create(filepath.Join(dir, name+".parquet"))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, WriteParquet(f, rec))
}

func TestParquetRoundTrip(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	a, err := NewRecord(mem, []int32{0, 1}, []int32{3, 4})
	require.NoError(t, err)
	defer a.Release()
	b, err := NewRecord(mem, []int32{2}, []int32{5})
	require.NoError(t, err)
	defer b.Release()

	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, a, b))

	rec, err := ReadParquet(bytes.NewReader(buf.Bytes()), int64(buf.Len()), mem)
	require.NoError(t, err)
	defer rec.Release()

	assert.Equal(t, int64(3), rec.NumRows())
	assert.Equal(t, []int32{0, 1, 2}, rec.Column(0).(*array.Int32).Int32Values())
	assert.Equal(t, []int32{3, 4, 5}, rec.Column(1).(*array.Int32).Int32Values())
}

func TestToAdjacency(t *testing.T) {
	mem := memory.NewGoAllocator()
	rec, err := NewRecord(mem, []int32{1, 0, 1, 1}, []int32{2, 3, 0, 2})
	require.NoError(t, err)
	defer rec.Release()

	adj, err := ToAdjacency(rec, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 3, 3}, adj.RowPtr)
	assert.Equal(t, []int32{3, 0, 2}, adj.Col)

	_, err = ToAdjacency(rec, 1, 4)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeIndexOutOfRange))
}

func TestToAdjacency_WrongColumnType(t *testing.T) {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "src", Type: arrow.PrimitiveTypes.Int64},
		{Name: "dst", Type: arrow.PrimitiveTypes.Int32},
	}, nil)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).Append(1)
	b.Field(1).(*array.Int32Builder).Append(1)
	rec := b.NewRecord()
	defer rec.Release()

	_, err := ToAdjacency(rec, 2, 2)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeValidation))
}

func TestToAdjacency_MissingColumn(t *testing.T) {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "user", Type: arrow.PrimitiveTypes.Int32},
		{Name: "dst", Type: arrow.PrimitiveTypes.Int32},
	}, nil)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Int32Builder).Append(0)
	b.Field(1).(*array.Int32Builder).Append(1)
	rec := b.NewRecord()
	defer rec.Release()

	_, err := ToAdjacency(rec, 2, 2)
	require.Error(t, err)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeValidation))
	assert.Contains(t, err.Error(), "missing src column")
}

func TestNewRecord_LengthMismatch(t *testing.T) {
	_, err := NewRecord(memory.NewGoAllocator(), []int32{1}, nil)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeValidation))
}

func TestLoadSplits(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, SplitTrain, []int32{0, 0, 1}, []int32{1, 2, 0})
	writeSplit(t, dir, SplitVal, []int32{0, 2}, []int32{3, 1})
	writeSplit(t, dir, SplitTest, []int32{1}, []int32{3})

	splits, err := LoadSplits(context.Background(), dir, 3, 4, logging.DiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, splits.Train.NumEdges())
	assert.Equal(t, 2, splits.Val.NumEdges())
	assert.Equal(t, 1, splits.Test.NumEdges())

	hist, err := splits.TestHistory()
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 3, 4, 5}, hist.RowPtr)
	assert.Equal(t, []int32{1, 2, 3, 0, 1}, hist.Col)
}

func TestLoadSplits_Errors(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, SplitTrain, []int32{0}, []int32{1})
	writeSplit(t, dir, SplitVal, []int32{0}, []int32{1})

	// test split missing
	_, err := LoadSplits(context.Background(), dir, 3, 4, logging.DiscardLogger())
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeStorage))

	// destination outside the catalog
	writeSplit(t, dir, SplitTest, []int32{0}, []int32{9})
	_, err = LoadSplits(context.Background(), dir, 3, 4, logging.DiscardLogger())
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeIndexOutOfRange))
}
