package ctx

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Context carries the shared infrastructure handles.
type Context struct {
	MySQLIns *gorm.DB
	RedisIns *redis.Client
	Ctx      context.Context
	Log      *zap.SugaredLogger
}

func NewContext(ctx context.Context, mysql *gorm.DB, redisIns *redis.Client, log *zap.SugaredLogger) *Context {
	return &Context{
		MySQLIns: mysql,
		RedisIns: redisIns,
		Ctx:      ctx,
		Log:      log,
	}
}

func (c *Context) GetCtx() context.Context {
	return c.Ctx
}

func (c *Context) GetMySQLIns() *gorm.DB {
	return c.MySQLIns
}

func (c *Context) GetRedis() *redis.Client {
	return c.RedisIns
}
