package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"lms-agent/config"
	"lms-agent/model"
)

// InputValidator performs structural and security validation of inbound chat bodies.
type InputValidator struct {
	maxBodyBytes int64
	maxMessage   int
	maxRun       int
	validate     *validator.Validate
}

func NewInputValidator(server config.ServerConfig, cfg config.ValidationConfig) *InputValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return &InputValidator{
		maxBodyBytes: server.MaxBodyBytes,
		maxMessage:   cfg.MaxMessageLength,
		maxRun:       cfg.MaxRepeatedRun,
		validate:     v,
	}
}

// Validate checks the raw body shape. It never panics and itemises every field problem it can.
func (v *InputValidator) Validate(raw []byte) (res model.BodyValidation) {
	defer func() {
		if r := recover(); r != nil {
			res = model.BodyValidation{Errors: []model.FieldError{{Field: "body", Message: "request body could not be read"}}}
		}
	}()

	if int64(len(raw)) > v.maxBodyBytes {
		return failed(model.FieldError{Field: "body", Message: fmt.Sprintf("payload exceeds %d bytes", v.maxBodyBytes)})
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return failed(model.FieldError{Field: "body", Message: "request body is required"})
	}

	var req model.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return failed(decodeError(err))
	}

	var errs []model.FieldError
	if err := v.validate.Struct(&req); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return failed(model.FieldError{Field: "body", Message: "request body is invalid"})
		}
		for _, fe := range ves {
			errs = append(errs, model.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
	}
	if n := utf8.RuneCountInString(req.Message); n > v.maxMessage {
		errs = append(errs, model.FieldError{
			Field:   "message",
			Message: fmt.Sprintf("must be at most %d characters", v.maxMessage),
		})
	}
	if len(errs) > 0 {
		return model.BodyValidation{Errors: errs}
	}
	return model.BodyValidation{Success: true, Request: &req}
}

// ValidateSecurity screens the message for injection markers and returns the sanitized copy.
func (v *InputValidator) ValidateSecurity(message string) model.ValidationResult {
	threats := detectThreats(message, v.maxRun)
	return model.ValidationResult{
		Safe:             len(threats) == 0,
		SanitizedMessage: Sanitize(message),
		ThreatsDetected:  threats,
	}
}

func failed(fe model.FieldError) model.BodyValidation {
	return model.BodyValidation{Errors: []model.FieldError{fe}}
}

func decodeError(err error) model.FieldError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return model.FieldError{Field: "body", Message: "must be a JSON object"}
		}
		return model.FieldError{Field: typeErr.Field, Message: "must be a " + typeErr.Type.String()}
	}
	return model.FieldError{Field: "body", Message: "malformed JSON"}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "is invalid"
	}
}
