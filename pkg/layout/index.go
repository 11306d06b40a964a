// Package layout associates text runs on a page with the images placed on it.
package layout

import "github.com/xhad/pdfalt/internal/models"

// Partition splits runs into those entirely above and entirely below the
// image rectangle. A run whose bottom edge is strictly less than the image's
// top edge is above; a run whose top edge is strictly greater than the
// image's bottom edge is below. Runs that overlap the image vertically, or
// touch it exactly, belong to neither set and are dropped. Input order is
// preserved in both results.
func Partition(image models.Rectangle, runs []models.TextRun) (above, below []models.TextRun) {
	for _, run := range runs {
		switch {
		case run.Rect.Y1 < image.Y0:
			above = append(above, run)
		case run.Rect.Y0 > image.Y1:
			below = append(below, run)
		}
	}
	return above, below
}
