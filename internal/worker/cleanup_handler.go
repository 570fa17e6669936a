package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/MatiRivarola/impostor-backend/internal/service"
	"github.com/MatiRivarola/impostor-backend/internal/tasks"
)

// PlayerCleanupHandler 处理延迟的玩家清理任务。
// 调度时刻的断线不代表触发时刻仍然离线，所以这里只是复查，
// 真正的活性判断由 service 层基于当前存储状态做出。
type PlayerCleanupHandler struct {
	rooms       *service.RoomService
	broadcaster service.Broadcaster
}

// NewPlayerCleanupHandler 创建 Handler 实例。
func NewPlayerCleanupHandler(rooms *service.RoomService, broadcaster service.Broadcaster) *PlayerCleanupHandler {
	return &PlayerCleanupHandler{rooms: rooms, broadcaster: broadcaster}
}

// ProcessTask 实现 asynq.Handler 接口。
func (h *PlayerCleanupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.PlayerCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("Failed to unmarshal cleanup payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"task_type": t.Type(),
		"room_code": payload.RoomCode,
		"player_id": payload.PlayerID,
	})

	result, err := h.rooms.RemoveExpired(ctx, payload.RoomCode, payload.PlayerID)
	if err != nil {
		// 房间或玩家已经不在了，任务目的已达成
		if errors.Is(err, service.ErrRoomNotFound) || errors.Is(err, service.ErrPlayerNotFound) {
			logCtx.Debug("Cleanup target already gone")
			return nil
		}
		logCtx.WithError(err).Error("Player cleanup failed")
		return err
	}

	if result == nil {
		logCtx.Debug("Player reconnected within window, cleanup skipped")
		return nil
	}

	logCtx.WithFields(logrus.Fields{
		"room_destroyed": result.RoomDestroyed,
		"new_host_id":    result.NewHostID,
	}).Info("Expired player removed")

	if h.broadcaster != nil && !result.RoomDestroyed && result.Room != nil {
		h.broadcaster.BroadcastEvent(payload.RoomCode, "player_left", map[string]interface{}{
			"playerId": payload.PlayerID,
		})
		h.broadcaster.BroadcastRoomState(payload.RoomCode, result.Room)
	}
	return nil
}
