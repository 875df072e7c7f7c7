// agendahubサーバーのエントリポイント。
// アジェンダのライフサイクル管理・通知の保存とREST API・
// WebSocketとWeb Pushによるリアルタイム配信を1プロセスで提供する。
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/agendahub/internal/config"
	"github.com/nao1215/agendahub/internal/dispatcher"
	"github.com/nao1215/agendahub/internal/lifecycle"
	"github.com/nao1215/agendahub/internal/notification"
	"github.com/nao1215/agendahub/internal/push"
	"github.com/nao1215/agendahub/internal/realtime"
	"github.com/nao1215/agendahub/internal/storage"
	"github.com/nao1215/agendahub/pkg/event"
	"github.com/nao1215/agendahub/pkg/middleware"
)

// overdueSweepInterval は期限超過アラートスイープの実行間隔。
const overdueSweepInterval = 10 * time.Minute

func main() {
	configPath := flag.String("config", "", "設定ファイル（YAML）のパス")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("データベースの初期化に失敗: %v", err)
	}
	defer db.Close()

	bus := event.NewBus()
	defer bus.Close()

	// 永続化層。
	notificationStore := notification.NewStore(db)
	pushStore := push.NewStore(db)

	// 状態機械と配信基盤。
	machine := lifecycle.NewMachine(lifecycle.NewStore(db), bus, cfg.ExtensionCap)
	registry := realtime.NewRegistry(cfg.SessionSendTimeout)
	defer registry.Close()
	sender := push.NewSender(pushStore, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)

	// イベント → 通知レコード → WebSocket + Web Push のディスパッチャー。
	dispatcher.New(notificationStore, registry, sender).Subscribe(bus)

	// 期限超過アラートのバックグラウンドスイープ。
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go machine.StartOverdueSweeper(sweepCtx, overdueSweepInterval)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	api := router.Group("/api/v1")
	api.Use(middleware.JWTAuth(cfg.JWTSecret))
	{
		lifecycle.NewServer(machine).RegisterRoutes(api)
		notification.NewServer(notificationStore, cfg.NotificationHorizon()).RegisterRoutes(api)
		push.NewServer(pushStore, cfg.VAPIDPublicKey).RegisterRoutes(api)

		// WebSocket接続。ブラウザはヘッダーを付けられないためtokenクエリパラメータで認証する。
		wsHandler := realtime.NewHandler(registry, notificationStore, cfg.AllowedOrigins)
		api.GET("/ws", wsHandler.Handle())
	}

	// ヘルスチェック
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "agendahub"})
	})

	log.Printf("agendahubサーバーを起動します: :%s", cfg.Port)
	if err := router.Run(fmt.Sprintf(":%s", cfg.Port)); err != nil {
		log.Fatalf("サーバーの起動に失敗: %v", err)
	}
}
