// Package xbind 把 xconf 配置树绑定为强类型的 Go 对象图。
//
// # 基本用法
//
//	type Server struct {
//		Host    string
//		Port    int
//		Timeout time.Duration `xbind:"timeout,alias=read-timeout"`
//	}
//
//	srv, err := xbind.Bind[Server](cfg.Section("server"))
//
// 配置键与成员名的匹配不区分大小写，并忽略 '-'、'_'、'.' 和空格：
// "ThingOne"、"thing-one"、"thing_one" 都匹配字段 ThingOne。
// 配置中存在而目标中没有的键被忽略（Debug 级别日志）。
//
// # 类型解析
//
// 接口或需要多态的成员按以下顺序决定具体类型：
//
//  1. 节点中的类型提示："type" 子节点的值是 [Catalog.Name] 登记的名称；
//     存在 "value" 子节点时由它提供数据，否则其余兄弟节点提供数据
//  2. 成员元数据：标签 type=、[ParamSpec.Type]、[Catalog.MemberDefault]
//  3. [TypeRegistry] 的成员级条目
//  4. [Catalog.Default] 的类型级默认
//  5. [TypeRegistry] 的类型级条目
//  6. 目标类型本身（非接口时）
//
// 未登记的 "type" 值在目标有 type 成员时按普通成员绑定，否则报告 UnknownTypeName。
//
// # 值转换
//
// 叶子值依次尝试：成员元数据的转换函数、[Catalog.Converter]、
// [ConverterRegistry]、枚举（[Catalog.Enum]，支持 "A, B" / "A|B" 组合标志）、
// 内置转换（数值、bool、string、time.Duration、time.Time、uuid.UUID、
// *url.URL、[]byte（base64）、以及实现 encoding.TextUnmarshaler 的类型）。
// null 或空字符串得到零值。
//
// # 集合
//
//   - 切片/数组：列表节点按下标顺序；单个叶子值视为单元素集合
//   - map[K]V：键控分支；K 为整数时也接受列表节点
//   - map[K]struct{} / map[K]bool（列表或叶子节点时）：集合
//   - 带 Add(E)/Append(E) 方法的收集器：已有实例先 Clear() 再追加
//
// 只支持一维数组，元素数超过数组长度时报告 TooManyElements。
//
// # 构造函数
//
// [Catalog.Constructor] 为类型登记一个或多个构造函数。绑定时按以下顺序选择：
// 所有参数都能由配置键或 [Resolver] 提供者优先，其次是缺失参数都有缺省值者；
// 同级内按配置键匹配数、总匹配数降序，参数少者优先，仍然并列时保持登记顺序。
// 未被构造函数参数使用的配置键再绑定到可写字段。
//
// 没有登记构造函数的结构体使用零值构造；[Catalog.Sealed] 关闭这一点，
// 此时缺少构造函数报告 NoPublicConstructorsFound。
//
// # 错误
//
// 所有失败返回 *[BindError]，携带配置路径、期望类型和失败原因；
// 使用 errors.Is 匹配错误类别（[ErrShapeMismatch] 等），[ReasonOf] 取得具体原因。
// 绑定失败不会返回部分构建的对象。
//
// # 并发安全
//
// [Catalog] 在第一次绑定时冻结，之后只读，可在多个 goroutine 中并发绑定。
// 每次绑定读取配置节点的快照，不受同时发生的重载影响。
package xbind
