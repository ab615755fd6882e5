// Package xconf 提供统一的配置加载和解析功能，基于 koanf 实现。
//
// # 设计理念
//
// xconf 定位为最小化配置加载器，负责文件/字节数据的加载、反序列化
// 和热重载。不负责配置治理（必选字段校验、默认值注入、环境变量覆盖），
// 这些能力由上层按需实现。
//
//   - 工厂函数：New（文件，按扩展名检测格式）、NewFromBytes（显式格式）
//   - Client() 暴露底层 koanf 实例，基础读取操作直接用它
//   - 增值功能：原子快照 Reload、类型安全的 Unmarshal、文件监视
//
// # 支持的格式
//
//   - YAML（推荐）：.yaml, .yml
//   - JSON：.json
//
// # 并发安全
//
// koanf 实例作为不可变快照保存在 atomic.Pointer 中：
//   - Client() / Unmarshal() 无锁读取当前快照
//   - Reload() 在锁内读取并解析，成功后才原子替换；
//     解析失败时在用配置不受影响
//
// Client() 返回的指针在 Reload() 后仍然可用，但指向旧快照。
// 每次需要时重新调用 Client()，不要长期缓存返回的指针。
//
// # 配置监视
//
// 基于 fsnotify 的文件变更监视和自动重载：监视目录（兼容
// vim/emacs 的原子写入）、内置防抖、并发安全。
// 从字节数据创建的 Config 不支持监视。
// Stop() 返回后不再有回调执行。
package xconf
