package commands

import (
	"fmt"
	"os"

	"chunkvault/pkg/app"
	"chunkvault/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	CV *app.App
)

var rootCmd = &cobra.Command{
	Use:   "cv",
	Short: "ChunkVault: adaptive multi-codec chunking and cache service",
	// 【关键】PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 统一初始化 App
		var err error
		CV, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize chunkvault: %w", err)
		}
		return nil
	},
}

// Execute 是入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// 在初始化时，加载配置
	cobra.OnInitialize(initConfig)

	// 1. 定义全局参数 --config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cv/config.yaml)")

	// 2. 常用配置项绑定到 Viper
	// 这样用户既可以在 yaml 里写，也可以用命令行参数覆盖
	rootCmd.PersistentFlags().String("storage-path", "", "Directory for the encoding cache")
	rootCmd.PersistentFlags().String("input-dir", "", "Directory with source files")

	for flag, key := range map[string]string{
		"storage-path": "storage.path",
		"input-dir":    "input.dir",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Println("Failed to bind flag:", err)
			os.Exit(1)
		}
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}
}
