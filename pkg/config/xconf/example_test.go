package xconf_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/omeyang/xbind/pkg/config/xconf"
)

// ExampleNew 演示从文件加载配置并读取节点。
func ExampleNew() {
	tmpDir, err := os.MkdirTemp("", "xconf-example")
	if err != nil {
		fmt.Printf("failed to create temp dir: %v\n", err)
		return
	}
	defer func() { _ = os.RemoveAll(tmpDir) }() //nolint:errcheck // cleanup temp dir, error is irrelevant

	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
cache:
  name: sessions
  backends: [redis, memory]
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		fmt.Printf("failed to write config file: %v\n", err)
		return
	}

	cfg, err := xconf.New(configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return
	}

	cache := cfg.Section("cache")
	name, _ := cache.Get("name")
	fmt.Println("name:", name)
	for _, b := range cache.Section("backends").Children() {
		v, _ := b.Value()
		fmt.Printf("backend %s: %s\n", b.Key(), v)
	}

	// Output:
	// name: sessions
	// backend 0: redis
	// backend 1: memory
}

// ExampleConfig_Unmarshal 演示通过 koanf 反序列化到结构体。
func ExampleConfig_Unmarshal() {
	cfg, err := xconf.NewFromBytes([]byte(`{"database": {"host": "localhost", "port": 5432}}`), xconf.FormatJSON)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return
	}

	type DatabaseConfig struct {
		Host string `koanf:"host"`
		Port int    `koanf:"port"`
	}

	var db DatabaseConfig
	if err := cfg.Unmarshal("database", &db); err != nil {
		fmt.Printf("failed to unmarshal config: %v\n", err)
		return
	}
	fmt.Printf("%s:%d\n", db.Host, db.Port)

	// Output:
	// localhost:5432
}

// ExampleConfig_ReloadToken 演示订阅变更令牌。
func ExampleConfig_ReloadToken() {
	cfg, err := xconf.NewFromBytes([]byte("feature:\n  enabled: false\n"), xconf.FormatYAML)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return
	}

	feature := cfg.Section("feature")
	cfg.ReloadToken().RegisterChangeCallback(func() {
		v, _ := feature.Get("enabled")
		fmt.Println("changed, enabled:", v)
	})

	if err := cfg.Load([]byte("feature:\n  enabled: true\n")); err != nil {
		fmt.Printf("failed to load: %v\n", err)
		return
	}
	fmt.Println("new token changed:", cfg.ReloadToken().HasChanged())

	// Output:
	// changed, enabled: true
	// new token changed: false
}

// ExampleHolder 演示只允许赋值一次的根配置。
func ExampleHolder() {
	var holder xconf.Holder

	cfg, _ := xconf.NewFromBytes([]byte("app: demo"), xconf.FormatYAML)
	fmt.Println(holder.Set(cfg))
	fmt.Println(holder.Set(cfg))

	v, _ := holder.MustGet().Root().Get("app")
	fmt.Println(v)

	// Output:
	// <nil>
	// xconf: holder already set
	// demo
}
