package svc

import (
	"robosim/backend/common/config"
	"robosim/backend/internal/client"
	"robosim/backend/internal/executor"
	"robosim/backend/internal/statesync"
	"robosim/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ServiceContext 全局服务上下文
type ServiceContext struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client

	Pods    client.PodClient
	Agents  client.AgentClient
	Bags    storage.BagStore
	Sync    *statesync.Sync
	View    *statesync.View
	Engine  *executor.Engine
}

var Ctx *ServiceContext

// Init 初始化服务上下文
func Init(ctx *ServiceContext) {
	Ctx = ctx
}
