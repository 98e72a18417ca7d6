package attendance

import (
	"context"
	"errors"
	"fmt"

	"smartid-backend/internal/platform/db"
)

// ===== Error model =====
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeInvalidTime     Code = "INVALID_TIMESTAMP"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeInternal        Code = "INTERNAL"
)

var (
	// ストレージに届かない。再試行は呼び出し側の責任
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	// occurred_at が未来すぎる、または入場時刻より前
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// 同一人物の同日入場を同時に作ろうとして負けた。RecordScan 内で1回だけ再試行する
	errConcurrentCreationLost = errors.New("concurrent creation lost")
	// 条件付き UPDATE が0行（他のリクエストが先に退出させた）
	errAlreadyClosed = errors.New("record already closed")
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func (e *APIError) Unwrap() error { return e.err }

func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func invalidTimestamp(msg string) *APIError {
	return &APIError{Code: CodeInvalidTime, Message: msg, err: ErrInvalidTimestamp}
}

func unavailable(op string, cause error) *APIError {
	return &APIError{
		Code:    CodeUnavailable,
		Message: "storage unavailable",
		err:     fmt.Errorf("%s: %w: %w", op, ErrPersistenceUnavailable, cause),
	}
}

// storageErr: store から返ったエラーを分類する。キャンセルはそのまま返す
func storageErr(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if db.IsUnavailable(err) {
		return unavailable(op, err)
	}
	return &APIError{Code: CodeInternal, Message: op + " failed", err: err}
}

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument, CodeInvalidTime:
			return 400
		case CodeNotFound:
			return 404
		case CodeConflict:
			return 409
		case CodeUnavailable:
			return 503
		default:
			return 500
		}
	}
	if errors.Is(err, context.Canceled) {
		// nginx 流儀の 499 (client closed request)
		return 499
	}
	return 500
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	var api *APIError
	if errors.As(err, &api) {
		return errorBody(api.Code, api.Message)
	}
	return errorBody(CodeInternal, err.Error())
}

// HTTPStatus: 台帳を呼ぶ他パッケージのハンドラ用
func HTTPStatus(err error) int { return toHTTPStatus(err) }
