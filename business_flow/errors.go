// Package businessflow contains the core business logic and use cases for link creation and resolution workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Captcha-related errors
	ErrCaptchaMissing      = errors.New("captcha token or answer missing")
	ErrCaptchaInvalidToken = errors.New("captcha token is unknown or already consumed")
	ErrCaptchaExpired      = errors.New("captcha has expired")
	ErrCaptchaFailed       = errors.New("captcha verification failed")

	// API key errors
	ErrAPIMissing    = errors.New("api parameters missing")
	ErrAPIInvalidKey = errors.New("api key is invalid")

	// Access verification errors
	ErrAccessMissing = errors.New("no access credential supplied")
	ErrBanned        = errors.New("caller is banned")

	// URL errors
	ErrURLRequired      = errors.New("url is required")
	ErrURLInvalidFormat = errors.New("url format is invalid")
	ErrURLBanned        = errors.New("url is not allowed")

	// Alias errors
	ErrAliasInvalidCharacters = errors.New("alias contains invalid characters")
	ErrAliasBanned            = errors.New("alias is not allowed")
	ErrAliasAlreadyExists     = errors.New("alias already exists")

	// Persistence errors
	ErrLinkNotFound         = errors.New("link not found")
	ErrDatabaseInsertFailed = errors.New("failed to persist link")
)

// Error codes exposed to clients. The code selects both the HTTP status and
// the localized message.
const (
	CodeCaptchaMissing          = "CAPTCHA_MISSING"
	CodeCaptchaInvalidToken     = "CAPTCHA_INVALID_TOKEN"
	CodeCaptchaExpired          = "CAPTCHA_EXPIRED"
	CodeCaptchaFailed           = "CAPTCHA_FAILED"
	CodeAPIMissing              = "API_MISSING"
	CodeAPIInvalidKey           = "API_INVALID_KEY"
	CodeAccessMissing           = "ACCESS_MISSING"
	CodeBanned                  = "YOU_ARE_BANNED"
	CodeURLRequired             = "URL_REQUIRED"
	CodeURLInvalidFormat        = "URL_INVALID_FORMAT"
	CodeURLBanned               = "URL_BANNED"
	CodeAliasInvalidCharacters  = "ALIAS_INVALID_CHARACTERS"
	CodeAliasBanned             = "ALIAS_BANNED"
	CodeAliasAlreadyExists      = "ALIAS_ALREADY_EXISTS"
	CodeDatabaseInsertFailed    = "DATABASE_INSERT_FAILED"
	CodeInternalServerError     = "INTERNAL_SERVER_ERROR"
)

// errorMessages holds the client-facing localized message per code
var errorMessages = map[string]string{
	CodeCaptchaMissing:         "CAPTCHA情報が不足しています",
	CodeCaptchaInvalidToken:    "無効なCAPTCHAトークンです",
	CodeCaptchaExpired:         "CAPTCHAの有効期限が切れています",
	CodeCaptchaFailed:          "CAPTCHAの認証に失敗しました",
	CodeAPIMissing:             "パラメーターが不足しています",
	CodeAPIInvalidKey:          "無効なAPIキーです",
	CodeAccessMissing:          "アクセス方法が間違っています",
	CodeBanned:                 "このIPアドレスでのアクセスは禁止されています",
	CodeURLRequired:            "URLは必須です",
	CodeURLInvalidFormat:       "無効なURL形式です",
	CodeURLBanned:              "このURLは短縮できません",
	CodeAliasInvalidCharacters: "カスタムIDに無効な文字が含まれています",
	CodeAliasBanned:            "このカスタムIDは利用できません",
	CodeAliasAlreadyExists:     "このカスタムIDは既に使用されています",
	CodeDatabaseInsertFailed:   "短縮リンクの作成に失敗しました",
	CodeInternalServerError:    "サーバー内部でエラーが発生しました",
}

// MessageForCode returns the localized message for a code, falling back to a
// generic message for unknown codes.
func MessageForCode(code string) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return "不明なエラーが発生しました。"
}

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: MessageForCode(code),
		Err:     err,
	}
}

// AsBusinessError extracts a BusinessError from an error chain
func AsBusinessError(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

func IsCaptchaMissing(err error) bool {
	return errors.Is(err, ErrCaptchaMissing)
}

func IsCaptchaInvalidToken(err error) bool {
	return errors.Is(err, ErrCaptchaInvalidToken)
}

func IsCaptchaExpired(err error) bool {
	return errors.Is(err, ErrCaptchaExpired)
}

func IsCaptchaFailed(err error) bool {
	return errors.Is(err, ErrCaptchaFailed)
}

func IsBanned(err error) bool {
	return errors.Is(err, ErrBanned)
}

func IsURLBanned(err error) bool {
	return errors.Is(err, ErrURLBanned)
}

func IsAliasAlreadyExists(err error) bool {
	return errors.Is(err, ErrAliasAlreadyExists)
}

func IsLinkNotFound(err error) bool {
	return errors.Is(err, ErrLinkNotFound)
}
