package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：请求或数据问题，重试无效
// - 5xxx：系统错误或脚本失败
const (
	OK              = 0
	NoAPIKey        = 4001
	JobForbidden    = 4003
	ResourceMissing = 4004
	SystemError     = 5000
	ScriptFailed    = 5002
)
