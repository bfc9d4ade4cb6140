package barcode

import (
	"fmt"
	"image"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
)

// channelConfidence is the fixed reliability estimate for camera-based
// barcode detection.
const channelConfidence = 95

// ZxingDecoder decodes retail barcode symbologies with the zxing engine.
type ZxingDecoder struct {
	readers []gozxing.Reader
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewZxingDecoder builds a decoder restricted to the supported retail
// symbologies.
func NewZxingDecoder() *ZxingDecoder {
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_POSSIBLE_FORMATS: []gozxing.BarcodeFormat{
			gozxing.BarcodeFormat_EAN_13,
			gozxing.BarcodeFormat_UPC_A,
			gozxing.BarcodeFormat_EAN_8,
			gozxing.BarcodeFormat_UPC_E,
			gozxing.BarcodeFormat_CODE_128,
			gozxing.BarcodeFormat_CODE_39,
		},
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	return &ZxingDecoder{
		readers: []gozxing.Reader{
			oned.NewMultiFormatUPCEANReader(hints),
			oned.NewCode128Reader(),
			oned.NewCode39Reader(),
		},
		hints: hints,
	}
}

// Decode attempts each reader against the frame. The engine signals "no
// code found" through typed exceptions; those are folded into the normal
// not-found outcome rather than surfaced as errors.
func (d *ZxingDecoder) Decode(img image.Image) Detection {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Detection{Outcome: OutcomeError, Err: fmt.Errorf("failed to binarize frame: %w", err)}
	}

	for _, reader := range d.readers {
		res, err := reader.Decode(bmp, d.hints)
		if err == nil {
			return Detection{
				Outcome: OutcomeDetected,
				Result: &Result{
					Text:       res.GetText(),
					Format:     mapFormat(res.GetBarcodeFormat()),
					Timestamp:  time.Now(),
					Confidence: channelConfidence,
				},
			}
		}
		if _, expected := err.(gozxing.ReaderException); !expected {
			return Detection{Outcome: OutcomeError, Err: fmt.Errorf("decode failed: %w", err)}
		}
	}
	return Detection{Outcome: OutcomeNotFound}
}

// Reset clears reader state between sessions.
func (d *ZxingDecoder) Reset() {
	for _, reader := range d.readers {
		reader.Reset()
	}
}

func mapFormat(f gozxing.BarcodeFormat) Format {
	switch f {
	case gozxing.BarcodeFormat_EAN_13:
		return FormatEAN13
	case gozxing.BarcodeFormat_UPC_A:
		return FormatUPCA
	case gozxing.BarcodeFormat_EAN_8:
		return FormatEAN8
	case gozxing.BarcodeFormat_UPC_E:
		return FormatUPCE
	case gozxing.BarcodeFormat_CODE_128:
		return FormatCode128
	case gozxing.BarcodeFormat_CODE_39:
		return FormatCode39
	default:
		return Format(f.String())
	}
}
