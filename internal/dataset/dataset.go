// Package dataset loads the persisted feature bundle served by embedview.
//
// A bundle carries three index-aligned sequences: feature vectors, labels and
// absolute image paths. The on-disk encoding is selected by file extension:
// Parquet (one row per point), the Arrow IPC file format (.arrow, .feather) or
// the Arrow IPC stream format (.arrows, .ipc).
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	emberrors "github.com/23skdu/embedview/internal/errors"
)

// Column names shared by every bundle encoding.
const (
	ColumnFeatures   = "features"
	ColumnLabels     = "labels"
	ColumnImagePaths = "image_paths"
)

// ErrLengthMismatch is returned by Save when the three sequences differ in length.
var ErrLengthMismatch = errors.New("features, labels and image_paths must have equal length")

// FeatureDataset is the immutable input of the embedding pipeline.
type FeatureDataset struct {
	Features   [][]float64
	Labels     []string
	ImagePaths []string
}

// Len returns the number of points.
func (d *FeatureDataset) Len() int {
	return len(d.Features)
}

// Dim returns the dimensionality of the first feature vector, or 0 for an empty dataset.
func (d *FeatureDataset) Dim() int {
	if len(d.Features) == 0 {
		return 0
	}
	return len(d.Features[0])
}

// Format identifies a bundle encoding.
type Format string

const (
	FormatParquet Format = "parquet"
	// FormatArrowFile is the Arrow IPC file format, also written as Feather v2.
	FormatArrowFile Format = "arrow_file"
	// FormatArrowStream is the Arrow IPC stream format.
	FormatArrowStream Format = "arrow_stream"
)

// FormatFor picks the bundle encoding from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		return FormatParquet, nil
	case ".arrow", ".feather":
		return FormatArrowFile, nil
	case ".arrows", ".ipc":
		return FormatArrowStream, nil
	default:
		return "", fmt.Errorf("unsupported bundle extension %q", filepath.Ext(path))
	}
}

// Load reads the bundle at path.
//
// A missing path yields a dataset_not_found error; anything that cannot be
// decoded into the three sequences yields dataset_malformed. Lengths are not
// cross-checked here: the producer guarantees them and both encodings are
// row-aligned by construction.
func Load(path string) (*FeatureDataset, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, emberrors.NewDatasetNotFound(path)
		}
		return nil, emberrors.WrapDatasetMalformed(err, path, "cannot stat bundle")
	}

	format, err := FormatFor(path)
	if err != nil {
		return nil, emberrors.WrapDatasetMalformed(err, path, "unknown bundle format")
	}

	switch format {
	case FormatArrowFile:
		return loadArrowFile(path)
	case FormatArrowStream:
		return loadArrowStream(path)
	default:
		return loadParquet(path)
	}
}

// Save writes ds to path as a Parquet bundle. It is the Go counterpart of the
// offline producer and refuses sequences of unequal length.
func Save(path string, ds *FeatureDataset) error {
	if len(ds.Features) != len(ds.Labels) || len(ds.Labels) != len(ds.ImagePaths) {
		return fmt.Errorf("%w: features=%d labels=%d image_paths=%d",
			ErrLengthMismatch, len(ds.Features), len(ds.Labels), len(ds.ImagePaths))
	}
	return saveParquet(path, ds)
}
