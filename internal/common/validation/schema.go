package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// MaxOffsetMinutes bounds timing offsets to one year either side of the reference timestamp.
const MaxOffsetMinutes = 525600

// settingsPatchSchema describes a partial AutomationSetting update.
var settingsPatchSchema = fmt.Sprintf(`{
	"type": "object",
	"additionalProperties": false,
	"minProperties": 1,
	"properties": {
		"enabled": {"type": "boolean"},
		"businessHoursOnly": {"type": "boolean"},
		"timingOffsetMinutes": {
			"type": "integer",
			"minimum": -%d,
			"maximum": %d
		}
	}
}`, MaxOffsetMinutes, MaxOffsetMinutes)

var settingsPatchLoader = gojsonschema.NewStringLoader(settingsPatchSchema)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (r *ValidationResult) Error() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// ValidateSettingsPatch validates a raw JSON settings patch document.
func ValidateSettingsPatch(doc []byte) (*ValidationResult, error) {
	result, err := gojsonschema.Validate(settingsPatchLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}

// ValidateSettingsPatchValue marshals v and validates it against the patch schema.
func ValidateSettingsPatchValue(v interface{}) (*ValidationResult, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal patch: %w", err)
	}
	return ValidateSettingsPatch(doc)
}
