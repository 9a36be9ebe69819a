package services

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse is the JSON error envelope for every handler.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"` // per-field validation detail
}

// ValidationHelper wraps a shared validator instance.
type ValidationHelper struct {
	validate *validator.Validate
}

func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{validate: validator.New()}
}

func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validate.Struct(s)
}

// SendErrorResponse writes a JSON error, expanding validator errors into
// per-field details when present.
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{Error: message}
	if fieldErrs, ok := validationErr.(validator.ValidationErrors); ok {
		resp.Details = make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			resp.Details[fe.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", fe.Tag())
		}
	}

	json.NewEncoder(w).Encode(resp)
}
