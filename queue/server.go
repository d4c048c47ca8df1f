package queue

import (
	"context"
	"log"

	"github.com/hibiken/asynq"
)

// NewServer builds the worker pool. Export jobs get a lower weight than
// per-file processing so one long archive does not starve ingestion.
func NewServer(opt asynq.RedisConnOpt, queue, exportQueue string, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 1
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue:       3,
			exportQueue: 1,
		},
		Logger:   stdLogger{},
		LogLevel: asynq.InfoLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.Printf("queue: ERROR task %s failed: %v", task.Type(), err)
		}),
	})
}

// stdLogger routes asynq's internal logging through the standard logger.
type stdLogger struct{}

func logWith(prefix string, args []interface{}) {
	log.Print(append([]interface{}{prefix}, args...)...)
}

func (stdLogger) Debug(args ...interface{}) { logWith("asynq: DEBUG ", args) }
func (stdLogger) Info(args ...interface{})  { logWith("asynq: ", args) }
func (stdLogger) Warn(args ...interface{})  { logWith("asynq: WARNING ", args) }
func (stdLogger) Error(args ...interface{}) { logWith("asynq: ERROR ", args) }

func (stdLogger) Fatal(args ...interface{}) {
	log.Fatal(append([]interface{}{"asynq: FATAL "}, args...)...)
}

// RedisOpt builds the asynq connection options from plain settings.
func RedisOpt(addr, password string, db int) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: addr, Password: password, DB: db}
}
