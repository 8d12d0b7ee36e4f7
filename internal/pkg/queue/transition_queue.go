// Copyright 2025 Citadel Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-citadel/citadel/pkg/log"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// TaskTypeTransition is the one task type this queue carries.
const TaskTypeTransition = "secret:transition"

const transitionQueue = "transitions"

// TransitionPayload references a stored transition row; the queue never
// carries key material.
type TransitionPayload struct {
	TransitionId string `json:"transitionId"`
}

// TransitionHandler processes one dequeued transition. Returning an error
// redelivers the task; handlers must be idempotent.
type TransitionHandler interface {
	Process(ctx context.Context, transitionId string) error
}

// Config for the transition queue.
type Config struct {
	RedisClient     redis.UniversalClient
	MaxRetry        int
	ShutdownTimeout int // seconds
}

// TransitionQueue is the durable, at-least-once channel between transition
// requests and the background re-encryption worker. Concurrency is pinned to
// one: a node never runs two transition steps at once.
type TransitionQueue struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	config *Config
}

func NewTransitionQueue(cfg *Config) (*TransitionQueue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("queue config is required")
	}
	if cfg.RedisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	redisOpt := &redisConnOptWrapper{client: cfg.RedisClient}

	shutdownTimeout := 10 * time.Second
	if cfg.ShutdownTimeout > 0 {
		shutdownTimeout = time.Duration(cfg.ShutdownTimeout) * time.Second
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     1,
		Queues:          map[string]int{transitionQueue: 1},
		Logger:          &asynqLoggerAdapter{},
		RetryDelayFunc:  asynq.DefaultRetryDelayFunc,
		ShutdownTimeout: shutdownTimeout,
	})

	return &TransitionQueue{
		client: asynq.NewClient(redisOpt),
		server: server,
		mux:    asynq.NewServeMux(),
		config: cfg,
	}, nil
}

// EnqueueTransition publishes one transition id for asynchronous processing.
func (q *TransitionQueue) EnqueueTransition(transitionId string) error {
	data, err := sonic.Marshal(&TransitionPayload{TransitionId: transitionId})
	if err != nil {
		return fmt.Errorf("marshal transition payload: %w", err)
	}

	maxRetry := q.config.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 10
	}

	task := asynq.NewTask(TaskTypeTransition, data)
	info, err := q.client.Enqueue(task,
		asynq.Queue(transitionQueue),
		asynq.MaxRetry(maxRetry),
	)
	if err != nil {
		return fmt.Errorf("enqueue transition: %w", err)
	}

	log.Infow("transition enqueued",
		"transition_id", transitionId,
		"task_id", info.ID,
	)
	return nil
}

// RegisterHandler binds the worker-side handler. Must be called before Start.
func (q *TransitionQueue) RegisterHandler(handler TransitionHandler) {
	q.mux.HandleFunc(TaskTypeTransition, func(ctx context.Context, task *asynq.Task) error {
		var payload TransitionPayload
		if err := sonic.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal transition payload: %w", err)
		}
		return handler.Process(ctx, payload.TransitionId)
	})
}

// Start runs the single consumer loop until Stop.
func (q *TransitionQueue) Start() error {
	return q.server.Start(q.mux)
}

// Stop drains in-flight work and closes both ends. An interrupted transition
// is redelivered on the next start.
func (q *TransitionQueue) Stop() {
	q.server.Shutdown()
	if err := q.client.Close(); err != nil {
		log.Warnf("failed to close queue client: %v", err)
	}
}

// redisConnOptWrapper adapts an existing redis client to asynq.RedisConnOpt.
type redisConnOptWrapper struct {
	client redis.UniversalClient
}

func (r *redisConnOptWrapper) MakeRedisClient() interface{} {
	return r.client
}
