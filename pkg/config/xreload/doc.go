// Package xreload 提供配置驱动的热重载代理。
//
// [Proxy] 从 xconf 配置节点构建一个实例，并在节点所属配置重新加载时
// 重建实例、原子替换：
//
//	p, err := xreload.New[*Client](cfg.Section("client"))
//	...
//	c := p.Current() // 每次调用读取一次，不会在调用中途被替换
//
// # 重建
//
// 变更信号来自 xconf 的 ChangeToken，在投递信号的 goroutine 中同步执行重建。
// 同一代理的重建串行执行；被监听子树内容未变化时跳过重建。
// 一次成功的重建依次执行：
//
//  1. OnReloading 回调（旧实例仍在服务）
//  2. 构建新实例；调用方修改过、新配置未提及的标量字段从旧实例复制（见 xbind.CarryOver）
//  3. 原子替换，Generation 加 1
//  4. OnReloaded 回调
//  5. 旧实例实现 io.Closer 时关闭
//
// 重建失败时旧实例继续服务，错误包装为 [ErrReloadBuildFailure]，
// 记录日志并通知 OnReloadFailed 订阅者；[Proxy.ForceReload] 同步返回该错误。
//
// # 转发包装
//
// [Create] 返回能力接口类型的值，由一个嵌入 *Proxy[T] 的转发包装实现，
// 每个方法在入口读取一次 Current()。包装可以用 cmd/xproxygen 生成。
// [Inspect] 从能力接口值取回 [Reloadable] 检查接口。
//
// # 可观测性
//
// WithMeterProvider 启用 xreload.reload.total、xreload.reload.duration
// 和 xreload.generation 指标；每次重建在 xreload.Reload span 中执行。
package xreload
