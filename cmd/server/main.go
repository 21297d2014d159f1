package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"creditpay/internal/config"
	"creditpay/internal/gateway"
	"creditpay/internal/handler"
	"creditpay/internal/infrastructure/cache"
	"creditpay/internal/infrastructure/database"
	"creditpay/internal/infrastructure/lock"
	"creditpay/internal/infrastructure/mq"
	"creditpay/internal/job"
	"creditpay/internal/service"
	"creditpay/pkg/idgen"
)

func main() {
	// 加载配置
	cfg := config.LoadConfig("config/config.yaml")

	// 初始化 ID 生成器
	idgen.Init(1)

	// 初始化 MySQL
	db := database.InitMySQL(&cfg.MySQL)

	// 初始化 Redis
	redisClient := cache.InitRedis(&cfg.Redis)
	locks := lock.NewRedisFactory(redisClient)

	// 初始化 Kafka
	producer := mq.InitKafka(&cfg.Kafka)
	defer producer.Close()

	// 外部支付网关客户端
	gw := gateway.NewHTTPClient(&cfg.Gateway)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动发件箱发送任务
	outboxSender := job.NewOutboxSender(db, producer, cfg)
	go outboxSender.Start(ctx)

	// 启动定时任务调度器
	scheduler := job.NewScheduler(
		&cfg.Cron,
		job.NewSettlementJob(service.NewSettlementService(db, cfg), locks),
		job.NewExpiryJob(service.NewCreditService(db), locks),
		job.NewStatisticsJob(service.NewStatisticsService(db), locks),
	)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("定时任务调度器启动失败: %v", err)
	}
	defer scheduler.Stop()

	// 设置路由
	router := handler.SetupRouter(db, locks, gw, cfg)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}
