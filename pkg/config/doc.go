// Package config 提供配置加载、强类型绑定和热重载相关的子包。
//
// 子包列表：
//   - xconf: 配置树，支持 YAML/JSON 文件、字节数据和 etcd，变更通过一次性 ChangeToken 通知
//   - xbind: 把配置节点绑定为强类型对象图，支持多态类型提示、构造函数选择和自定义转换
//   - xreload: 配置变化时重建实例并原子替换的热重载代理
//
// 典型用法：
//
//	cfg, _ := xconf.New("config.yaml")
//	w, _ := xconf.Watch(cfg, nil)
//	w.StartAsync()
//	defer w.Stop()
//
//	client, _ := xreload.New[*Client](cfg.Section("client"))
//	defer client.Close()
package config
