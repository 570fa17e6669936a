package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/MatiRivarola/impostor-backend/internal/domain"
)

// Broadcaster 抽象了向房间/单个连接投递事件的传输层能力。
// 由 hub 实现；service 层只依赖这个最小接口。
type Broadcaster interface {
	// BroadcastRoomState 向房间内每个客户端投递按观察者脱敏后的房间状态。
	BroadcastRoomState(code string, room *domain.Room)

	// BroadcastEvent 向房间内全部客户端投递同一事件。
	BroadcastEvent(code string, event string, payload interface{})
}

// Scheduler 抽象了延迟后台任务的投递能力，由 asynq 客户端包装实现。
type Scheduler interface {
	// SchedulePlayerCleanup 在 delay 之后触发一次玩家清理检查。
	// 任务触发时必须重新检查活性，而不是信任当初的调度。
	SchedulePlayerCleanup(ctx context.Context, roomCode string, playerID string, delay time.Duration) error

	// ScheduleGameArchive 异步归档一局已结束的游戏。
	ScheduleGameArchive(ctx context.Context, record *domain.GameRecord) error
}

// lockedRand 用互斥锁保护 *rand.Rand，允许多房间并发使用同一随机源。
// 锁只覆盖被包装的那一个实例：同一个 *rand.Rand 不得再传给其他服务。
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLockedRand(rng *rand.Rand) *lockedRand {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &lockedRand{rng: rng}
}

// do 在持锁状态下执行需要随机源的函数。
func (l *lockedRand) do(fn func(rng *rand.Rand)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.rng)
}
