// Package barcode converts a live video source into barcode detections,
// balancing detection latency against battery and CPU cost.
package barcode

import (
	"image"
	"time"
)

// Format is a barcode symbology. Only the common retail symbologies are
// supported; everything else is out of scope.
type Format string

const (
	FormatEAN13   Format = "EAN-13"
	FormatUPCA    Format = "UPC-A"
	FormatEAN8    Format = "EAN-8"
	FormatUPCE    Format = "UPC-E"
	FormatCode128 Format = "CODE-128"
	FormatCode39  Format = "CODE-39"
)

// Result is an immutable successful detection. Confidence is a fixed
// reliability estimate for the detection channel, not a measured value.
type Result struct {
	Text       string
	Format     Format
	Timestamp  time.Time
	Confidence int
}

// Outcome is the three-way result of a decode attempt. Not finding a code
// is expected absence, distinct from a genuine decode failure; collapsing
// the two would corrupt retry and logging policy.
type Outcome int

const (
	// OutcomeDetected means a code was read.
	OutcomeDetected Outcome = iota
	// OutcomeNotFound means no code is present in the frame. Normal.
	OutcomeNotFound
	// OutcomeError means the attempt failed abnormally (corrupt frame,
	// engine fault).
	OutcomeError
)

// Detection is a tagged decode result.
type Detection struct {
	Outcome Outcome
	// Result is set only when Outcome is OutcomeDetected.
	Result *Result
	// Err is set only when Outcome is OutcomeError.
	Err error
}

// Decoder is the decode engine boundary. Implementations hold native
// resources and must support an explicit Reset, not just dereferencing.
type Decoder interface {
	Decode(img image.Image) Detection
	Reset()
}
