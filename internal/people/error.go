package people

import (
	"errors"
	"fmt"

	"smartid-backend/internal/platform/db"
)

type DomainError struct {
	Code    string
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.cause }

const (
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeUnavailable     = "UNAVAILABLE"
	ErrCodeInternal        = "INTERNAL"
)

// ErrNotFound: errors.Is で判定できるように NotFound 系はこれを包む
var ErrNotFound = errors.New("person not found")

func NewNotFoundError(msg string) error {
	return &DomainError{Code: ErrCodeNotFound, Message: msg, cause: ErrNotFound}
}

func NewInvalidArgumentError(msg string) error {
	return &DomainError{Code: ErrCodeInvalidArgument, Message: msg}
}

func NewConflictError(msg string) error {
	return &DomainError{Code: ErrCodeConflict, Message: msg}
}

// wrapStorage: DB エラーを到達不能 / その他に分ける
func wrapStorage(op string, err error) error {
	var de *DomainError
	if errors.As(err, &de) {
		return err
	}
	if db.IsUnavailable(err) {
		return &DomainError{Code: ErrCodeUnavailable, Message: "storage unavailable", cause: fmt.Errorf("%s: %w", op, err)}
	}
	return &DomainError{Code: ErrCodeInternal, Message: op + " failed", cause: err}
}

func ToHTTPStatus(err error) int {
	var de *DomainError
	if errors.As(err, &de) {
		switch de.Code {
		case ErrCodeInvalidArgument:
			return 400
		case ErrCodeNotFound:
			return 404
		case ErrCodeConflict:
			return 409
		case ErrCodeUnavailable:
			return 503
		}
	}
	return 500
}

type errorDTO struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	var de *DomainError
	if errors.As(err, &de) {
		return errorBody(de.Code, de.Message)
	}
	return errorBody(ErrCodeInternal, err.Error())
}
