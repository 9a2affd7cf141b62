package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"robosim/backend/common/config"
	"robosim/backend/common/database"
	"robosim/backend/common/logger"
	commonRedis "robosim/backend/common/redis"
	"robosim/backend/internal/client"
	"robosim/backend/internal/executor"
	"robosim/backend/internal/router"
	"robosim/backend/internal/scheduler"
	"robosim/backend/internal/statesync"
	"robosim/backend/internal/storage"
	"robosim/backend/internal/svc"

	"github.com/gofiber/fiber/v2"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig("config/config.yml")
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化日志
	logger.Init(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	})
	defer logger.Sync()
	logger.Info("日志初始化完成")

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer database.Close()
	db := database.GetDB()

	// 初始化Redis (实时状态镜像)
	if err := commonRedis.Init(&cfg.Redis); err != nil {
		log.Fatalf("初始化Redis失败: %v", err)
	}
	defer commonRedis.Close()
	rdb := commonRedis.GetClient()

	// 状态同步层：数据库为准，Redis为实时镜像
	durable := statesync.NewGormStore(db)
	if err := durable.AutoMigrate(); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	live := statesync.NewRedisLiveStore(rdb)
	stateSync := statesync.NewSync(durable, live,
		time.Duration(cfg.Executor.LiveTTLSeconds)*time.Second)
	view := statesync.NewView(live, durable)

	// 基础设施客户端
	podClient := client.NewHTTPPodClient(cfg.PodControl.BaseURL,
		time.Duration(cfg.PodControl.TimeoutSeconds)*time.Second)
	agentClient := client.NewHTTPAgentClient(
		time.Duration(cfg.PodControl.TimeoutSeconds)*time.Second,
		cfg.PodControl.AgentPort)
	bagStore, err := storage.NewMinioBagStore(context.Background(), &cfg.ObjectStore)
	if err != nil {
		log.Fatalf("初始化对象存储失败: %v", err)
	}

	// 执行引擎
	engine := executor.NewEngine(podClient, agentClient, stateSync,
		executor.NewRunRegistry(),
		time.Duration(cfg.Executor.PollIntervalSeconds)*time.Second,
		time.Duration(cfg.Executor.StartTimeoutSeconds)*time.Second)

	// 初始化服务上下文
	svc.Init(&svc.ServiceContext{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Pods:   podClient,
		Agents: agentClient,
		Bags:   bagStore,
		Sync:   stateSync,
		View:   view,
		Engine: engine,
	})

	// 定时调度器
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(
			time.Duration(cfg.Scheduler.SweepIntervalSeconds) * time.Second)
		if err != nil {
			log.Fatalf("初始化调度器失败: %v", err)
		}
		if err := sched.Start(); err != nil {
			log.Fatalf("启动调度器失败: %v", err)
		}
	}

	// 创建Fiber应用
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	})

	// 设置路由
	router.Setup(app)

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Printf("服务器启动在 http://%s", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务器...")

	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			log.Printf("停止调度器失败: %v", err)
		}
	}

	if err := app.Shutdown(); err != nil {
		log.Printf("服务器关闭失败: %v", err)
	}
	log.Println("服务器已关闭")
}
