package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/MatiRivarola/impostor-backend/internal/repository"
	"github.com/MatiRivarola/impostor-backend/internal/tasks"
)

// GameArchiveHandler 把终局归档记录写入 MySQL。
type GameArchiveHandler struct {
	archiveRepo repository.ArchiveRepository
}

// NewGameArchiveHandler 创建 Handler 实例。
func NewGameArchiveHandler(archiveRepo repository.ArchiveRepository) *GameArchiveHandler {
	return &GameArchiveHandler{archiveRepo: archiveRepo}
}

// ProcessTask 实现 asynq.Handler 接口。
func (h *GameArchiveHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.GameArchivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("Failed to unmarshal archive payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"task_type": t.Type(),
		"room_code": payload.Record.RoomCode,
		"winner":    payload.Record.Winner,
	})

	if err := h.archiveRepo.Save(ctx, &payload.Record); err != nil {
		logCtx.WithError(err).Error("Failed to save game archive record")
		return fmt.Errorf("failed to save game record for room %s: %w", payload.Record.RoomCode, err)
	}

	logCtx.Info("Game archive record saved")
	return nil
}
