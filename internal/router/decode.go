package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrMalformedPayload = errors.New("malformed payload")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode unmarshals the raw payload into v and checks its validate tags.
// Both failures wrap ErrMalformedPayload.
func Decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrMalformedPayload, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
