package worker

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/MatiRivarola/impostor-backend/internal/repository"
	"github.com/MatiRivarola/impostor-backend/internal/service"
	"github.com/MatiRivarola/impostor-backend/internal/tasks"
)

// WorkerServer 封装 Asynq Worker Server 的启动和关闭逻辑。
type WorkerServer struct {
	server      *asynq.Server
	log         *logrus.Entry
	rooms       *service.RoomService
	archiveRepo repository.ArchiveRepository
	broadcaster service.Broadcaster
}

// NewWorkerServer 创建 WorkerServer 实例。broadcaster 可为 nil。
func NewWorkerServer(redisOpt asynq.RedisClientOpt, rooms *service.RoomService, archiveRepo repository.ArchiveRepository, broadcaster service.Broadcaster, logger *logrus.Logger) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	return &WorkerServer{
		server:      server,
		log:         logEntry,
		rooms:       rooms,
		archiveRepo: archiveRepo,
		broadcaster: broadcaster,
	}
}

// Start 运行 Worker Server；应在单独的 goroutine 中调用。
func (ws *WorkerServer) Start() {
	mux := asynq.NewServeMux()

	cleanupHandler := NewPlayerCleanupHandler(ws.rooms, ws.broadcaster)
	mux.HandleFunc(tasks.TypePlayerCleanup, cleanupHandler.ProcessTask)

	// 归档数据库可选；未配置时丢弃归档任务
	if ws.archiveRepo != nil {
		archiveHandler := NewGameArchiveHandler(ws.archiveRepo)
		mux.HandleFunc(tasks.TypeGameArchive, archiveHandler.ProcessTask)
	} else {
		mux.HandleFunc(tasks.TypeGameArchive, func(ctx context.Context, t *asynq.Task) error {
			ws.log.Debug("Game archive task dropped, database not configured")
			return nil
		})
	}

	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(mux); err != nil {
		if !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Fatalf("Could not run worker server: %v", err)
		} else {
			ws.log.Info("Worker server stopped.")
		}
	}
}

// Shutdown 优雅地关闭 Worker Server。
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}
