package dashboard

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession 表示没有已认证的用户，看板尚未就绪。
	ErrNoSession = errors.New("no authenticated session")
	// ErrUsernameTaken 表示用户名已被其他用户占用。
	ErrUsernameTaken = errors.New("username already taken")
	// ErrPortfolioNotFound 表示公开作品集的用户名不存在。
	ErrPortfolioNotFound = errors.New("portfolio not found")
)

// ValidationError 在请求发出前就被拦截的输入错误。
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// MutationError 包装写操作时存储层返回的传输/权限错误。
type MutationError struct {
	Entity string
	Op     string
	Err    error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }
