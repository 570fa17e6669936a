package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/MatiRivarola/impostor-backend/internal/domain"
)

// 任务类型常量
const (
	// TypePlayerCleanup 在重连窗口结束后触发一次玩家活性复查。
	TypePlayerCleanup = "player:cleanup"

	// TypeGameArchive 把一局已结束游戏的结果写入 MySQL 归档。
	TypeGameArchive = "game:archive"
)

// PlayerCleanupPayload 是玩家清理任务的数据结构。
// 只携带定位信息；触发时的活性判断必须基于当时的存储状态。
type PlayerCleanupPayload struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

// GameArchivePayload 是终局归档任务的数据结构。
type GameArchivePayload struct {
	Record domain.GameRecord `json:"record"`
}

// Client 包装 asynq 客户端，实现 service.Scheduler。
type Client struct {
	client *asynq.Client
}

// NewClient 创建任务投递客户端。
func NewClient(redisOpt asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpt)}
}

// SchedulePlayerCleanup 在 delay 之后投递一次玩家清理复查。
func (c *Client) SchedulePlayerCleanup(ctx context.Context, roomCode string, playerID string, delay time.Duration) error {
	payload, err := json.Marshal(PlayerCleanupPayload{RoomCode: roomCode, PlayerID: playerID})
	if err != nil {
		return fmt.Errorf("failed to marshal cleanup payload: %w", err)
	}
	task := asynq.NewTask(TypePlayerCleanup, payload)
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(delay),
		asynq.Queue("default"),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue cleanup task: %w", err)
	}
	return nil
}

// ScheduleGameArchive 投递一条终局归档任务。
func (c *Client) ScheduleGameArchive(ctx context.Context, record *domain.GameRecord) error {
	payload, err := json.Marshal(GameArchivePayload{Record: *record})
	if err != nil {
		return fmt.Errorf("failed to marshal archive payload: %w", err)
	}
	task := asynq.NewTask(TypeGameArchive, payload)
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue("low"),
		asynq.MaxRetry(5),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue archive task: %w", err)
	}
	return nil
}

// Close 关闭底层的 asynq 客户端连接。
func (c *Client) Close() error {
	return c.client.Close()
}
