package domain

import "errors"

var (
	// ErrNotFound 存储中不存在目标记录。
	ErrNotFound = errors.New("record not found")

	// ErrNoMailbox 用户没有活动邮箱，操作在触达服务商之前被拒绝。
	ErrNoMailbox = errors.New("no active mailbox")

	// ErrNoDomains 服务商当前没有可用域名，无法生成地址。
	ErrNoDomains = errors.New("no domains available")

	// ErrProvider 服务商调用失败（网络错误或非 2xx 响应），
	// 细节只进日志，对调用方折叠为这一个错误。
	ErrProvider = errors.New("provider request failed")

	// ErrSessionNotSaved 邮箱在服务商侧已创建成功，但本地会话写入失败。
	ErrSessionNotSaved = errors.New("session not saved")
)
