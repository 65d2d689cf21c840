package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_REJECTED"
	CodeReferential   Code = "REFERENTIAL_FAILURE"
	CodeTransient     Code = "TRANSIENT_STORAGE_FAILURE"
	CodePermanent     Code = "PERMANENT_STORAGE_FAILURE"
	CodeConfiguration Code = "CONFIGURATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeInternal      Code = "INTERNAL_ERROR"
)

type Metadata struct {
	// Retryable marks failures the retry controller may attempt again.
	Retryable bool
	// RecordLevel failures are counted and skipped; they never abort a stage.
	RecordLevel bool
	// Fatal failures halt the owning stage and the run.
	Fatal bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		Retryable:   false,
		RecordLevel: true,
	},
	CodeReferential: {
		Retryable:   false,
		RecordLevel: true,
	},
	CodeTransient: {
		Retryable: true,
	},
	CodePermanent: {
		Fatal: true,
	},
	CodeConfiguration: {
		Fatal: true,
	},
	CodeNotFound: {
		Retryable: false,
	},
	CodeConflict: {
		Retryable: false,
	},
	CodeInternal: {
		Retryable: true,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsRecordLevel reports whether the error should be counted and skipped
// rather than propagated as a stage failure.
func IsRecordLevel(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.Code()).RecordLevel
}

// IsFatal reports whether the error must halt the owning stage.
func IsFatal(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.Code()).Fatal
}
