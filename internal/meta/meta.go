// Package meta assembles the per-point records served to the 3D viewer.
package meta

import "github.com/23skdu/embedview/internal/embedding"

// PointRecord is one plotted point.
type PointRecord struct {
	Idx    int     `json:"idx"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Label  string  `json:"label"`
	ImgURL string  `json:"img_url"`
}

// Assemble zips coordinates, labels and image paths into records whose Idx is
// the input position. Inputs are expected to have equal length; extra entries
// in longer inputs are ignored.
func Assemble(coords []embedding.Coordinate, labels, imagePaths []string) []PointRecord {
	n := min(len(coords), len(labels), len(imagePaths))
	records := make([]PointRecord, n)
	for i := 0; i < n; i++ {
		records[i] = PointRecord{
			Idx:    i,
			X:      coords[i][0],
			Y:      coords[i][1],
			Z:      coords[i][2],
			Label:  labels[i],
			ImgURL: ImageURL(imagePaths[i]),
		}
	}
	return records
}
