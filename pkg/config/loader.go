package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		// 如果用户指定了文件，直接使用
		viper.SetConfigFile(cfgFile)
	} else {
		// 否则按优先级搜索
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：
		// 1. 当前目录
		viper.AddConfigPath(".")
		// 2. 当前目录下的 .cv
		viper.AddConfigPath(".cv")
		// 3. 用户主目录下的 .cv
		viper.AddConfigPath(filepath.Join(home, ".cv"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (CV_SERVER_ADDR, CV_REDIS_URL 等)
	viper.SetEnvPrefix("CV")
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错 (可能全靠环境变量/默认值)，格式错才是错
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("⚠️  No config file found, using defaults/env vars")
		} else {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	} else {
		fmt.Println("🔧 Using config file:", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	// HTTP 服务
	viper.SetDefault("server.addr", ":8000")

	// 切块参数 (请求可以覆盖 chunk_size，但会被 clamp 到 [min, max])
	viper.SetDefault("chunk.default_size", 1<<20) // 1 MiB
	viper.SetDefault("chunk.min_size", 1<<10)     // 1 KiB
	viper.SetDefault("chunk.max_size", 10<<20)    // 10 MiB

	// 编码行为
	viper.SetDefault("codec.hex_uppercase", false)

	// 输入目录 (扫描和上传的落脚点)
	wd, _ := os.Getwd()
	viper.SetDefault("input.dir", filepath.Join(wd, "input"))

	// 缓存存储
	viper.SetDefault("storage.type", "disk") // disk | s3
	viper.SetDefault("storage.path", filepath.Join(wd, ".cv", "cache"))
	viper.SetDefault("storage.s3.endpoint", "http://localhost:9000")
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.s3.bucket", "chunkvault")

	// Redis 存在性缓存 (默认关闭)
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.ttl", "24h")

	// 注册表数据库 (默认 sqlite 内存库，随时可 Scan 重建)
	viper.SetDefault("registry.driver", "sqlite")
	viper.SetDefault("registry.sqlite_path", "")
	viper.SetDefault("registry.host", "localhost")
	viper.SetDefault("registry.port", 5432)
	viper.SetDefault("registry.sslmode", "disable")
}
