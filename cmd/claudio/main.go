package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zhouzirui/claudio/internal/config"
	"github.com/zhouzirui/claudio/internal/handler"
	"github.com/zhouzirui/claudio/internal/handler/tools"
	"github.com/zhouzirui/claudio/internal/service/ai"
	"github.com/zhouzirui/claudio/internal/service/listen"
	"github.com/zhouzirui/claudio/internal/service/session"
)

const (
	serverName    = "claudio"
	serverVersion = "0.1.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdio 传输占用 stdout，日志统一输出到 stderr
	log.SetOutput(os.Stderr)

	// Load .env file
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	client, err := newClient(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("failed to initialize %s client: %v", cfg.AI.Provider, err)
	}
	log.Printf("audio provider %s initialized successfully", cfg.AI.Provider)

	// 会话淘汰时在后台删除远端已上传的音频文件
	var audioSvc *listen.Service
	registry := session.NewRegistry(session.Config{
		MaxSessions: cfg.Session.MaxSessions,
		IdleTTL:     cfg.Session.IdleTTL,
		OnEvict:     func(s session.Session) { audioSvc.ReleaseSession(s) },
	})
	audioSvc = listen.NewService(client, registry, listen.Config{})

	mcpServer := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	tools.New(audioSvc).Register(mcpServer)

	switch cfg.Server.Transport {
	case config.TransportHTTP:
		mcpHandler := server.NewStreamableHTTPServer(mcpServer, server.WithEndpointPath(cfg.Server.Path))
		router := handler.NewRouter(mcpHandler, cfg.Server.Path, audioSvc)
		startServer(ctx, cfg.Server, router)
	default:
		if err := serveStdio(ctx, mcpServer); err != nil {
			log.Printf("stdio server error: %v", err)
		}
	}

	// 等待后台删除任务结束再退出
	audioSvc.WaitReleases()
}

func newClient(ctx context.Context, cfg config.AIConfig) (ai.Client, error) {
	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return ai.NewEinoClient(chatModel), nil
	default:
		client, err := ai.NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func serveStdio(ctx context.Context, mcpServer *server.MCPServer) error {
	stdio := server.NewStdioServer(mcpServer)
	stdio.SetErrorLogger(log.New(os.Stderr, "[mcp] ", log.LstdFlags))

	log.Printf("%s serving MCP over stdio", serverName)
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("%s serving MCP over http on %s%s", serverName, serverCfg.Addr, serverCfg.Path)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
