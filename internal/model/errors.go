package model

import "fmt"

// APIError はクライアントへ返すドメインエラーを表す。
// Codeはハンドラー層でHTTPステータスへ変換される。
type APIError struct {
	Code    string            // エラーコード
	Message string            // エラーメッセージ
	Fields  map[string]string // フィールド単位の検証エラー（検証エラー時のみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeInvalidFilter      = "INVALID_FILTER"
	ErrCodeTodoNotFound       = "TODO_NOT_FOUND"
	ErrCodeMemberNotFound     = "MEMBER_NOT_FOUND"
	ErrCodeDuplicateAccount   = "DUPLICATE_ACCOUNT"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeProviderNotFound   = "PROVIDER_NOT_FOUND"
)

// NewValidationError はフィールド単位の検証エラーを生成する。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:    ErrCodeValidation,
		Message: "入力値が正しくありません。",
		Fields:  fields,
	}
}

// NewInvalidFilterError は無効なフィルタエラーを生成する。
func NewInvalidFilterError(filter string) *APIError {
	return &APIError{
		Code:    ErrCodeInvalidFilter,
		Message: fmt.Sprintf("無効なフィルタです: %s（all、active、completed のいずれかを指定してください）", filter),
	}
}

// NewTodoNotFoundError はTodo未検出エラーを生成する。
func NewTodoNotFoundError(id int64) *APIError {
	return &APIError{
		Code:    ErrCodeTodoNotFound,
		Message: fmt.Sprintf("Todo not found: %d", id),
	}
}

// NewMemberNotFoundError はメンバー未検出エラーを生成する。
func NewMemberNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeMemberNotFound,
		Message: "会員情報が見つかりません。",
	}
}

// NewDuplicateAccountError は登録済みメールアドレスでのサインアップエラーを生成する。
func NewDuplicateAccountError() *APIError {
	return &APIError{
		Code:    ErrCodeDuplicateAccount,
		Message: "既に登録されているメールアドレスです。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:    ErrCodeUnauthorized,
		Message: "ログインしているユーザーが見つかりません。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// 存在しないメールアドレスとパスワード誤りを区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidCredentials,
		Message: "認証に失敗しました。",
	}
}

// NewInvalidTokenError は無効なリフレッシュトークンエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidToken,
		Message: "無効なRefresh Tokenです。",
	}
}

// NewForbiddenError は所有権違反エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:    ErrCodeForbidden,
		Message: "このTodoに対する権限がありません。",
	}
}

// NewInvalidRequestError はリクエストボディやパスパラメータの解析エラーを生成する。
func NewInvalidRequestError(fields map[string]string) *APIError {
	return &APIError{
		Code:    ErrCodeInvalidRequest,
		Message: "リクエストの形式が正しくありません。",
		Fields:  fields,
	}
}

// NewProviderNotFoundError は未対応・未設定のIdPが指定されたエラーを生成する。
func NewProviderNotFoundError(provider string) *APIError {
	return &APIError{
		Code:    ErrCodeProviderNotFound,
		Message: fmt.Sprintf("対応していないプロバイダです: %s", provider),
	}
}
