// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/saas-dashboard/internal/account"
	"github.com/yourusername/saas-dashboard/internal/auth"
	"github.com/yourusername/saas-dashboard/internal/config"
	"github.com/yourusername/saas-dashboard/internal/session"
	"github.com/yourusername/saas-dashboard/internal/stats"
	"github.com/yourusername/saas-dashboard/internal/storage"
	"github.com/yourusername/saas-dashboard/internal/token"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization", // ベアラートークン用
	}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	statsManager, err := setupRoutes(router, cfg)
	if err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	// 統計再計算ワーカーの起動
	statsManager.StartWorkers()

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "saas-dashboard-api",
		"version": "0.1.0",
	})
}

// setupRoutes は各ストア・マネージャーを組み立て、APIグループの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config) (*stats.Manager, error) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)

	accounts := account.NewStore(rdb)
	registry := session.NewRegistry(rdb)

	issuer, err := token.NewIssuer(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	uploader, err := storage.NewLocal(cfg.UploadDir, cfg.PublicBaseURL, cfg.MaxUploadSize)
	if err != nil {
		return nil, err
	}

	statsManager, err := setupStats(cfg, rdb, accounts, registry)
	if err != nil {
		return nil, err
	}

	authManager := auth.NewManager(accounts, registry, issuer, statsManager, log.Default())
	authHandler := auth.NewHandler(authManager, uploader, log.Default())
	accountHandler := account.NewHandler(accounts, log.Default())
	dashboardHandler := stats.NewHandler(statsManager, registry, accounts, log.Default())

	// アップロード済みプロフィール画像の配信
	router.Static("/uploads", cfg.UploadDir)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			// ログアウトはトークン署名のみ検証する（失効済みでも 404 を返すため）
			authRoutes.POST("/logout", authHandler.Logout)

			profile := authRoutes.Group("", authHandler.RequireAuth())
			{
				profile.GET("/active-sessions", authHandler.ActiveSessions)
				profile.GET("/profile", authHandler.Profile)
				profile.PUT("/profile", authHandler.UpdateProfile)
				profile.PUT("/profile/skills", authHandler.AddSkill)
				profile.PUT("/profile/image", authHandler.UploadAvatar)
			}
		}

		api.GET("/users", accountHandler.Users)
		api.GET("/total-users", accountHandler.TotalUsers)

		dashboard := api.Group("/dashboard", authHandler.RequireAuth())
		{
			dashboard.GET("/data", dashboardHandler.Data)
			dashboard.GET("/session-history", dashboardHandler.SessionHistory)
			dashboard.GET("/revenue-history", dashboardHandler.RevenueHistory)
			dashboard.GET("/session-stats", dashboardHandler.SessionStats)
		}

		api.GET("/protected", authHandler.RequireAuth(), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"message": "You have access to this protected route!",
			})
		})
	}

	return statsManager, nil
}
