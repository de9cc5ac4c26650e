package types

import (
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

type Environment struct {
	RedisClient *redis.Client
	Cron        *cron.Cron
	TaskClient  *asynq.Client
	S3Client    *s3.Client
	S3Uploader  *manager.Uploader
}

func NewEnvironment(redisClient *redis.Client) *Environment {
	cr := cron.New()
	return &Environment{
		RedisClient: redisClient,
		Cron:        cr,
	}
}
