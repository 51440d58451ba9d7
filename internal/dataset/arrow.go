package dataset

import (
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	emberrors "github.com/23skdu/embedview/internal/errors"
)

// loadArrowStream reads the Arrow IPC stream format (.arrows, .ipc).
func loadArrowStream(path string) (*FeatureDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, emberrors.WrapDatasetMalformed(err, path, "cannot open arrow bundle")
	}
	defer func() { _ = f.Close() }()

	rdr, err := ipc.NewReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, emberrors.WrapDatasetMalformed(err, path, "cannot decode arrow stream")
	}
	defer rdr.Release()

	ds := &FeatureDataset{}
	for rdr.Next() {
		if err := appendRecord(ds, rdr.Record()); err != nil {
			return nil, emberrors.WrapDatasetMalformed(err, path, "invalid arrow record")
		}
	}
	if err := rdr.Err(); err != nil {
		return nil, emberrors.WrapDatasetMalformed(err, path, "cannot decode arrow stream")
	}
	return ds, nil
}

// loadArrowFile reads the Arrow IPC file format (.arrow, .feather), the random
// access layout starting with the ARROW1 magic.
func loadArrowFile(path string) (*FeatureDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, emberrors.WrapDatasetMalformed(err, path, "cannot open arrow bundle")
	}
	defer func() { _ = f.Close() }()

	rdr, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, emberrors.WrapDatasetMalformed(err, path, "cannot decode arrow file")
	}
	defer func() { _ = rdr.Close() }()

	ds := &FeatureDataset{}
	for i := 0; i < rdr.NumRecords(); i++ {
		rec, err := rdr.Record(i)
		if err != nil {
			return nil, emberrors.WrapDatasetMalformed(err, path, "cannot decode arrow file")
		}
		if err := appendRecord(ds, rec); err != nil {
			return nil, emberrors.WrapDatasetMalformed(err, path, "invalid arrow record")
		}
	}
	return ds, nil
}

func appendRecord(ds *FeatureDataset, rec arrow.Record) error {
	features, err := column(rec, ColumnFeatures)
	if err != nil {
		return err
	}
	labels, err := stringColumn(rec, ColumnLabels)
	if err != nil {
		return err
	}
	paths, err := stringColumn(rec, ColumnImagePaths)
	if err != nil {
		return err
	}

	list, ok := features.(array.ListLike)
	if !ok {
		return fmt.Errorf("column %q: expected list of floats, got %s", ColumnFeatures, features.DataType())
	}

	rows := int(rec.NumRows())
	for i := 0; i < rows; i++ {
		switch {
		case list.IsNull(i):
			return fmt.Errorf("column %q: null at row %d", ColumnFeatures, i)
		case labels.IsNull(i):
			return fmt.Errorf("column %q: null at row %d", ColumnLabels, i)
		case paths.IsNull(i):
			return fmt.Errorf("column %q: null at row %d", ColumnImagePaths, i)
		}
		start, end := list.ValueOffsets(i)
		vec, err := floats(list.ListValues(), int(start), int(end))
		if err != nil {
			return fmt.Errorf("column %q: %w", ColumnFeatures, err)
		}
		ds.Features = append(ds.Features, vec)
		ds.Labels = append(ds.Labels, labels.Value(i))
		ds.ImagePaths = append(ds.ImagePaths, paths.Value(i))
	}
	return nil
}

func column(rec arrow.Record, name string) (arrow.Array, error) {
	idx := rec.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil, fmt.Errorf("missing column %q", name)
	}
	return rec.Column(idx[0]), nil
}

func stringColumn(rec arrow.Record, name string) (*array.String, error) {
	col, err := column(rec, name)
	if err != nil {
		return nil, err
	}
	s, ok := col.(*array.String)
	if !ok {
		return nil, fmt.Errorf("column %q: expected utf8, got %s", name, col.DataType())
	}
	return s, nil
}

func floats(values arrow.Array, start, end int) ([]float64, error) {
	out := make([]float64, end-start)
	for j := start; j < end; j++ {
		if values.IsNull(j) {
			return nil, fmt.Errorf("null element at offset %d", j)
		}
	}
	switch v := values.(type) {
	case *array.Float64:
		for j := start; j < end; j++ {
			out[j-start] = v.Value(j)
		}
	case *array.Float32:
		for j := start; j < end; j++ {
			out[j-start] = float64(v.Value(j))
		}
	default:
		return nil, fmt.Errorf("unsupported element type %s", values.DataType())
	}
	return out, nil
}
