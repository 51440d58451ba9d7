package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	emberrors "github.com/23skdu/embedview/internal/errors"
)

// bundleRow represents a single row for Parquet serialization
type bundleRow struct {
	Features  []float64 `parquet:"features,list"`
	Label     string    `parquet:"labels"`
	ImagePath string    `parquet:"image_paths"`
}

func loadParquet(path string) (*FeatureDataset, error) {
	osf, err := os.Open(path)
	if err != nil {
		return nil, emberrors.WrapDatasetMalformed(err, path, "cannot open parquet bundle")
	}
	defer func() { _ = osf.Close() }()

	info, err := osf.Stat()
	if err != nil {
		return nil, emberrors.WrapDatasetMalformed(err, path, "cannot stat parquet bundle")
	}
	f, err := parquet.OpenFile(osf, info.Size())
	if err != nil {
		return nil, emberrors.WrapDatasetMalformed(err, path, "cannot decode parquet bundle")
	}
	if err := checkSchema(f.Schema()); err != nil {
		return nil, emberrors.WrapDatasetMalformed(err, path, "invalid parquet schema")
	}

	rows, err := readRows(f)
	if err != nil {
		return nil, emberrors.WrapDatasetMalformed(err, path, "cannot decode parquet bundle")
	}

	ds := &FeatureDataset{
		Features:   make([][]float64, len(rows)),
		Labels:     make([]string, len(rows)),
		ImagePaths: make([]string, len(rows)),
	}
	for i, row := range rows {
		ds.Features[i] = row.Features
		ds.Labels[i] = row.Label
		ds.ImagePaths[i] = row.ImagePath
	}
	return ds, nil
}

// checkSchema requires the three bundle columns. Without it the generic reader
// would fill an absent column with zero values.
func checkSchema(schema *parquet.Schema) error {
	for _, name := range []string{ColumnLabels, ColumnImagePaths} {
		leaf, ok := schema.Lookup(name)
		if !ok {
			return fmt.Errorf("missing column %q", name)
		}
		if kind := leaf.Node.Type().Kind(); kind != parquet.ByteArray || leaf.MaxRepetitionLevel != 0 {
			return fmt.Errorf("column %q: expected string, got %s", name, leaf.Node.Type())
		}
	}

	for _, p := range schema.Columns() {
		if len(p) == 0 || p[0] != ColumnFeatures {
			continue
		}
		leaf, ok := schema.Lookup(p...)
		if !ok {
			break
		}
		kind := leaf.Node.Type().Kind()
		if leaf.MaxRepetitionLevel != 1 || (kind != parquet.Double && kind != parquet.Float) {
			return fmt.Errorf("column %q: expected list of floats, got %s", ColumnFeatures, leaf.Node.Type())
		}
		return nil
	}
	return fmt.Errorf("missing column %q", ColumnFeatures)
}

func readRows(f *parquet.File) ([]bundleRow, error) {
	r := parquet.NewGenericReader[bundleRow](f)
	defer func() { _ = r.Close() }()

	rows := make([]bundleRow, f.NumRows())
	read := 0
	for read < len(rows) {
		n, err := r.Read(rows[read:])
		read += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, io.ErrNoProgress
		}
	}
	return rows[:read], nil
}

func saveParquet(path string, ds *FeatureDataset) error {
	rows := make([]bundleRow, ds.Len())
	for i := range rows {
		rows[i] = bundleRow{
			Features:  ds.Features[i],
			Label:     ds.Labels[i],
			ImagePath: ds.ImagePaths[i],
		}
	}
	return parquet.WriteFile(path, rows, parquet.Compression(&parquet.Zstd))
}
