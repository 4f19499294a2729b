// Package xconf 提供配置加载、配置树视图和变更通知，基于 koanf 实现。
//
// # 设计理念
//
// xconf 是 xbind/xreload 的配置存储：负责文件、字节和远程来源（etcd、K8s ConfigMap、Redis）数据的加载、
// 反序列化和热重载，并把结果暴露为层级化的 [Section] 视图。
// 不负责配置治理（必选字段校验、默认值注入、环境变量覆盖）。
//
//   - 工厂函数：New, NewFromBytes, NewFromEtcd, NewFromConfigMap, NewFromRedis
//   - Client() 暴露底层 koanf 实例
//   - Root()/Section() 返回配置树视图，ReloadToken() 返回变更令牌
//
// # 支持的格式
//
//   - YAML（默认，推荐）：.yaml, .yml
//   - JSON：.json
//   - etcd：前缀下的键按 "/" 拆分为路径，值为原始字符串
//   - ConfigMap/Redis：值是完整的 YAML 或 JSON 文档
//
// # 配置树
//
// 每次加载都会生成一棵不可变的配置树：
//   - 标量被还原为字符串叶子值，null 是没有值的叶子
//   - 映射的键按字典序成为子节点
//   - 序列的元素成为名为 "0".."n-1" 的子节点（列表节点）
//
// Section 默认是实时视图：每次访问读取最新的树。
// Snapshot() 返回固定在当前树上的视图，适合需要一致性读取的场景（如一次完整的绑定）。
// 子节点查找不区分大小写。
//
// # 变更令牌
//
// ChangeToken 至多触发一次。每次成功的 Reload/Load 会先原子替换配置状态
// 并换上新令牌，然后在锁外按注册顺序同步执行旧令牌的回调。
// 订阅方需在回调中重新获取 ReloadToken() 并注册，才能收到下一次通知。
//
// # 并发安全
//
// 所有方法都是并发安全的：
//   - Reload()/Load() 通过 sync.Mutex 序列化，防止配置回退；
//     新状态通过 atomic.Pointer 原子替换
//   - Client()/Section 读取通过 atomic.Load 获取当前状态（无锁）
//
// Client() 返回的指针在 Reload() 后仍然有效，但指向旧配置（快照语义）。
//
// # 配置监视
//
//   - 文件：[Watch] 基于 fsnotify，监视目录、内置防抖、支持 vim/emacs 原子写入
//   - etcd：[WatchEtcd] 基于 etcd watch
//   - ConfigMap：[WatchConfigMap] 基于 K8s watch，事件内容直接应用
//   - Redis：[WatchRedis] 订阅 pub/sub 频道，收到消息后重新读取
//   - 其他：[Poll] 按 cron 计划周期性 Reload
//   - 字节：调用方通过 Load 推送新内容
//
// 远程读取带超时，失败时使用 retry-go 重试，可通过 [WithRemoteBreaker] 启用 gobreaker 熔断。
// 键缺失和解析失败不重试，也不计入熔断。
//
// # 根配置持有者
//
// [Holder] 提供只允许赋值一次的根配置容器，需要显式创建并传递，
// 替代进程级全局单例。
package xconf
