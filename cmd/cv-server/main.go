package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chunkvault/pkg/app"
	"chunkvault/pkg/config"
	"chunkvault/pkg/server"

	"github.com/spf13/viper"
)

func main() {
	// 1. Load Config
	cfgFile := flag.String("config", "", "config file (default is $HOME/.cv/config.yaml)")
	flag.Parse()

	if err := config.Load(*cfgFile); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	// 2. Init Core Application
	ctx := context.Background()
	application, err := app.NewApp(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to initialize app: %v", err)
	}
	fmt.Println("✅ ChunkVault Core initialized.")

	// 3. 启动时扫描输入目录，重建注册表
	if records, err := application.Chunks.ScanInput(ctx, application.InputDir); err != nil {
		// 输入目录还不存在不算致命，等上传或下次扫描
		fmt.Printf("⚠️  Initial scan skipped: %v\n", err)
	} else {
		fmt.Printf("📂 Registered %d file(s) from %s\n", len(records), application.InputDir)
	}

	// 4. Setup HTTP Server
	srv := &http.Server{
		Addr:    viper.GetString("server.addr"),
		Handler: server.NewServer(application, server.Limits{
			Default: viper.GetInt64("chunk.default_size"),
			Min:     viper.GetInt64("chunk.min_size"),
			Max:     viper.GetInt64("chunk.max_size"),
		}).Handler(),
	}

	// 5. Start Server (Async)
	go func() {
		fmt.Printf("🚀 HTTP Server listening on %s...\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Failed to serve: %v", err)
		}
	}()

	// 6. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\n⚠️  Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	fmt.Println("👋 Server stopped.")
}
