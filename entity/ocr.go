package entity

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"larder/lib/validate"
)

type OcrMode string

const (
	OcrModeStandard OcrMode = "standard"
	OcrModeAccurate OcrMode = "accurate"
)

// Normalize maps anything that is not an explicit "accurate" to the standard model.
func (m OcrMode) Normalize() OcrMode {
	if strings.EqualFold(string(m), string(OcrModeAccurate)) {
		return OcrModeAccurate
	}
	return OcrModeStandard
}

type OcrRequest struct {
	ImageBase64 string  `json:"imageBase64" validate:"required"`
	Mode        OcrMode `json:"mode,omitempty"`
}

func (o *OcrRequest) Bind(_ *http.Request) error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	// browsers hand over data URLs; the provider wants the bare payload
	if i := strings.Index(o.ImageBase64, ";base64,"); i >= 0 && strings.HasPrefix(o.ImageBase64, "data:") {
		o.ImageBase64 = o.ImageBase64[i+len(";base64,"):]
	}
	o.Mode = o.Mode.Normalize()
	return nil
}

// WordsResult is one recognized text region. Location is passed through from
// the provider untouched.
type WordsResult struct {
	Words    string          `json:"words"`
	Location json.RawMessage `json:"location,omitempty"`
}

type OcrResult struct {
	WordsResult []WordsResult `json:"words_result"`
}
