package xreload

import "errors"

var (
	// ErrReloadBuildFailure 重建失败，代理继续使用上一个实例。
	// 具体原因通过 errors.Is / errors.As 获取（通常是 *xbind.BindError）。
	ErrReloadBuildFailure = errors.New("xreload: reload build failure")

	// ErrClosed 代理已关闭。
	ErrClosed = errors.New("xreload: proxy closed")

	// ErrNilSection 配置节点为 nil。
	ErrNilSection = errors.New("xreload: nil section")

	// ErrNilBuilder 构建函数为 nil。
	ErrNilBuilder = errors.New("xreload: nil builder")

	// ErrNilWrapper 转发包装函数为 nil。
	ErrNilWrapper = errors.New("xreload: nil wrapper")
)
