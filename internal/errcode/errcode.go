package errcode

// 推送给前端的错误码约定：
// - 0：无错误
// - 4xxx：用户侧可处理的错误（例如作品集还没有用户名）
// - 5xxx：系统错误（需要中断流程）
const (
	OK               = 0
	PortfolioMissing = 4004
	SystemError      = 5000
	RenderFailed     = 5001
	UploadFailed     = 5002
)

// Message 返回错误码的默认提示。
func Message(code int) string {
	switch code {
	case OK:
		return ""
	case PortfolioMissing:
		return "set a username before exporting your portfolio"
	case RenderFailed:
		return "failed to render portfolio"
	case UploadFailed:
		return "failed to store exported file"
	default:
		return "internal error"
	}
}
