package queue

import (
	"github.com/hibiken/asynq"

	"salesflow/core/config"
	"salesflow/core/constants"
	"salesflow/core/logger"
)

// Queue bundles the asynq client, worker server and periodic scheduler
// around one redis connection.
type Queue struct {
	Client    *asynq.Client
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
}

func New(cfg config.RedisConfig) *Queue {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	return &Queue{
		Client: asynq.NewClient(redisOpt),
		server: asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: constants.QueueConcurrency,
			Queues:      map[string]int{"default": 1},
		}),
		scheduler: asynq.NewScheduler(redisOpt, nil),
		mux:       asynq.NewServeMux(),
	}
}

func (q *Queue) HandleFunc(taskType string, handler asynq.HandlerFunc) {
	q.mux.HandleFunc(taskType, handler)
}

// Schedule registers a cron-style periodic task.
func (q *Queue) Schedule(cronSpec string, task *asynq.Task) error {
	_, err := q.scheduler.Register(cronSpec, task)
	return err
}

// Start runs the worker server and scheduler in background goroutines.
func (q *Queue) Start() error {
	if err := q.scheduler.Start(); err != nil {
		return err
	}
	go func() {
		if err := q.server.Run(q.mux); err != nil {
			logger.Error("Queue:Server:Error", "error", err)
		}
	}()
	return nil
}

func (q *Queue) Shutdown() {
	q.scheduler.Shutdown()
	q.server.Shutdown()
	if err := q.Client.Close(); err != nil {
		logger.Warn("Queue:Close:Error", "error", err)
	}
}
