// pkg/app/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"chunkvault/pkg/cachestore"
	rediscache "chunkvault/pkg/cachestore/cache"
	"chunkvault/pkg/cachestore/disk"
	"chunkvault/pkg/cachestore/s3"
	"chunkvault/pkg/codec"
	"chunkvault/pkg/registry"
	"chunkvault/pkg/service"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务
type App struct {
	Store    cachestore.Store
	Registry *registry.Registry
	Codecs   *codec.Registry

	Chunks *service.ChunkService
	Info   *service.InfoService

	InputDir string
	Log      *slog.Logger
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// 1. 缓存存储后端 (disk / s3)
	store, err := initStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init cache store: %w", err)
	}

	// 2. 可选的 Redis 存在性缓存装饰层
	if viper.GetBool("redis.enabled") {
		ttl := viper.GetDuration("redis.ttl")
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		cached, err := rediscache.NewCachedStore(store, rediscache.Config{
			RedisURL: viper.GetString("redis.url"),
			TTL:      ttl,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init redis cache layer: %w", err)
		}
		store = cached
		fmt.Println("⚡ Redis existence cache enabled")
	}

	// 3. 注册表数据库
	regDB, err := registry.NewDB(ctx, registry.Config{
		Driver:     viper.GetString("registry.driver"),
		SQLitePath: viper.GetString("registry.sqlite_path"),
		Host:       viper.GetString("registry.host"),
		Port:       viper.GetInt("registry.port"),
		User:       viper.GetString("registry.user"),
		Password:   viper.GetString("registry.password"),
		DBName:     viper.GetString("registry.dbname"),
		SSLMode:    viper.GetString("registry.sslmode"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init registry database: %w", err)
	}
	reg := registry.NewRegistry(regDB)

	// 4. 编码表 (hex 大小写进程级固定，保证同一缓存区风格一致)
	codecs := codec.NewRegistry(codec.Options{
		HexUppercase: viper.GetBool("codec.hex_uppercase"),
	})

	return &App{
		Store:    store,
		Registry: reg,
		Codecs:   codecs,
		Chunks:   service.NewChunkService(reg, store, codecs, log),
		Info:     service.NewInfoService(reg, store, codecs, log),
		InputDir: viper.GetString("input.dir"),
		Log:      log,
	}, nil
}

// initStore 按配置选择缓存后端
func initStore(ctx context.Context) (cachestore.Store, error) {
	switch storageType := viper.GetString("storage.type"); storageType {
	case "", "disk":
		path := viper.GetString("storage.path")
		if path == "" {
			return nil, fmt.Errorf("storage path not set")
		}
		return disk.NewAdapter(path)

	case "s3":
		bucket := viper.GetString("storage.s3.bucket")
		if bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required")
		}
		return s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          bucket,
			AccessKeyID:     viper.GetString("storage.s3.access_key"),
			SecretAccessKey: viper.GetString("storage.s3.secret_key"),
		})

	default:
		return nil, fmt.Errorf("unsupported storage type: %q", storageType)
	}
}
