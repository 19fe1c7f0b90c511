package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IamMikeHelsel/2DG-sub000/config"
	"github.com/IamMikeHelsel/2DG-sub000/gamemap"
	"github.com/IamMikeHelsel/2DG-sub000/identity"
	"github.com/IamMikeHelsel/2DG-sub000/persist"
	"github.com/IamMikeHelsel/2DG-sub000/server"
)

// 入口：加载配置 → 打开存储 → 启动 HTTP + WebSocket 服务与房间管理器
func main() {
	var (
		addr       string
		configPath string
	)
	flag.StringVar(&addr, "addr", "", "server listen address, e.g. :8080 (overrides config)")
	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Addr = addr
	}
	// 使用第三方 zap 日志库写入滚动日志文件
	if err := server.InitLogger(cfg.Log); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	if err := run(cfg, configPath); err != nil {
		server.Log.Errorw("server stopped with error", "err", err)
		server.SyncLogger()
		os.Exit(1)
	}
}

func run(cfg config.Config, configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := persist.OpenBolt(cfg.Storage.BoltPath)
	if err != nil {
		return err
	}
	defer store.Close()
	audit, err := persist.OpenSQLiteAudit(cfg.Storage.AuditPath, 0)
	if err != nil {
		return err
	}
	defer audit.Close()

	joinBase, err := store.MaxJoinOrder()
	if err != nil {
		return err
	}
	roles, err := cfg.AdminRoles()
	if err != nil {
		return err
	}
	launch := cfg.Launch
	if launch.IsZero() {
		// 未配置时沿用首次启动时间，重启不会改变 beta 窗口
		if launch, err = store.LaunchTime(time.Now()); err != nil {
			return err
		}
	}
	ids := identity.New(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	rooms := server.NewRoomManager(ctx, server.RoomOptions{
		Map:           gamemap.Options{Width: cfg.Map.Width, Height: cfg.Map.Height, Seed: cfg.Map.Seed},
		Tunables:      cfg.Room,
		Launch:        launch,
		Roles:         roles,
		Store:         store,
		Bans:          store,
		AuditSink:     audit,
		JoinOrderBase: joinBase,
	}, nil)
	// 先预创建一个默认房间，便于快速试跑
	if _, err := rooms.GetOrCreateRoom(cfg.DefaultRoom); err != nil {
		return err
	}

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, server.Log, func(c config.Config) {
				if err := rooms.ApplyTunables(c.Room); err != nil {
					server.Log.Warnw("reloaded tunables rejected", "err", err)
				}
			})
			if err != nil {
				server.Log.Warnw("config watch stopped", "err", err)
			}
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", &server.WSHandler{
		Manager:      rooms,
		DefaultRoom:  cfg.DefaultRoom,
		Verifier:     ids,
		RequireToken: cfg.Auth.Required,
	})
	mux.HandleFunc("/auth/guest", server.GuestTokenHandler(ids))
	// 管理与监控接口
	mux.HandleFunc("/admin/config", rooms.HandleAdminConfig)
	mux.HandleFunc("/admin/audit", rooms.HandleAudit)
	mux.HandleFunc("/debug/rooms", rooms.HandleRoomsDebug)
	mux.Handle("/metrics", rooms.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		server.Log.Infow("listening", "addr", cfg.Addr, "room", cfg.DefaultRoom)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 优雅退出（Ctrl+C）
	select {
	case <-ctx.Done():
	case err := <-errCh:
		rooms.Close()
		return err
	}
	server.Log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		server.Log.Warnw("http shutdown", "err", err)
	}
	rooms.Close()
	return nil
}
