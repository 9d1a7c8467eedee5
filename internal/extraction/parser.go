package extraction

import (
	"strings"

	"github.com/taxdesk/taxdesk/internal/extraction/ocr"
)

// ParseFields flattens vendor predictions into a label → text map. Entries
// without a label are skipped, missing text becomes the empty string, and a
// repeated label keeps the last value in vendor response order.
func ParseFields(predictions []ocr.Prediction) map[string]string {
	fields := make(map[string]string, len(predictions))
	for _, p := range predictions {
		if p.Label == "" {
			continue
		}
		fields[p.Label] = strings.TrimSpace(p.OcrText)
	}
	return fields
}

// flattenPredictions gathers every page's predictions from a vendor response.
func flattenPredictions(results []ocr.SubmitResult) []ocr.Prediction {
	var out []ocr.Prediction
	for _, r := range results {
		out = append(out, r.Predictions...)
	}
	return out
}
