package dashboard

import (
	"context"
	"log/slog"
	"regexp"
)

// UsernameStatus 是用户名检查的结论。前端把除 available 以外的结果都显示为“不可用”。
type UsernameStatus string

const (
	UsernameAvailable     UsernameStatus = "available"
	UsernameTaken         UsernameStatus = "taken"
	UsernameInvalidFormat UsernameStatus = "invalid_format"
	UsernameCheckFailed   UsernameStatus = "check_failed"
)

// UsernameCheck 是一次检查的结果。
type UsernameCheck struct {
	Username string         `json:"username"`
	Status   UsernameStatus `json:"status"`
	Reason   string         `json:"reason,omitempty"`
}

// Available 报告用户名能否使用。
func (c UsernameCheck) Available() bool { return c.Status == UsernameAvailable }

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,30}$`)

// ValidateUsernameFormat 校验长度 3-30，仅允许字母、数字、连字符与下划线。
func ValidateUsernameFormat(username string) error {
	if !usernamePattern.MatchString(username) {
		return invalid("username", "must be 3-30 characters of letters, digits, '-' or '_'")
	}
	return nil
}

// UsernameLookup 查询除 excludeUserID 以外是否有资料占用了该用户名（区分大小写）。
type UsernameLookup interface {
	UsernameTaken(ctx context.Context, username string, excludeUserID uint) (bool, error)
}

// UsernameChecker 检查用户名可用性。
type UsernameChecker struct {
	lookup UsernameLookup
	logger *slog.Logger
}

func NewUsernameChecker(lookup UsernameLookup, logger *slog.Logger) *UsernameChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsernameChecker{lookup: lookup, logger: logger}
}

// Check 对候选用户名给出带标签的结论；当前用户自己的用户名不算被占用。
func (c *UsernameChecker) Check(ctx context.Context, userID uint, candidate string) UsernameCheck {
	result := UsernameCheck{Username: candidate}
	if err := ValidateUsernameFormat(candidate); err != nil {
		result.Status = UsernameInvalidFormat
		result.Reason = err.Error()
		return result
	}

	taken, err := c.lookup.UsernameTaken(ctx, candidate, userID)
	if err != nil {
		c.logger.Warn("username availability check failed",
			slog.String("username", candidate),
			slog.Uint64("user_id", uint64(userID)),
			slog.Any("error", err),
		)
		result.Status = UsernameCheckFailed
		result.Reason = "availability could not be verified"
		return result
	}
	if taken {
		result.Status = UsernameTaken
		return result
	}
	result.Status = UsernameAvailable
	return result
}
