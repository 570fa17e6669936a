package repository

import (
	"context"
	"time"

	"github.com/MatiRivarola/impostor-backend/internal/domain"
)

// RoomRepository 定义了房间热状态的存储和检索操作。
//
// 玩家集合的唯一权威表示是按玩家键存储的 hash；房间记录只保存房间级
// 标量字段。GetRoom 负责把两者组合成调用时刻的一致快照。连接引用 →
// 玩家的映射是派生索引，可随时重建，绝不能当作第二份事实来源。
//
// 仓库本身不保证并发写之间的串行化，这由 service 层的按房间锁负责。
type RoomRepository interface {
	// GetRoom 返回房间记录及其完整玩家集合的一致快照。
	// 房间不存在时返回 ErrRoomNotFound。
	GetRoom(ctx context.Context, code string) (*domain.Room, error)

	// SaveRoom 保存房间级标量字段和全部玩家记录，并刷新 TTL。
	SaveRoom(ctx context.Context, room *domain.Room) error

	// RoomExists 检查房间码是否已被占用。
	RoomExists(ctx context.Context, code string) (bool, error)

	// SavePlayer 写入单个玩家记录。
	SavePlayer(ctx context.Context, code string, player *domain.Player) error

	// DeletePlayer 删除玩家记录及其连接索引项。
	DeletePlayer(ctx context.Context, code string, playerID string) error

	// PlayerCount 返回房间当前的玩家数。
	PlayerCount(ctx context.Context, code string) (int, error)

	// BindConn / UnbindConn 维护连接引用 → 玩家的派生索引。
	BindConn(ctx context.Context, code string, connID string, playerID string) error
	UnbindConn(ctx context.Context, code string, connID string) error

	// FindPlayerByConn 通过连接引用在指定房间内查找玩家 ID。
	// 找不到时返回 ErrPlayerNotFound。
	FindPlayerByConn(ctx context.Context, code string, connID string) (string, error)

	// ListActiveRoomCodes 枚举当前活跃的房间码。
	ListActiveRoomCodes(ctx context.Context) ([]string, error)

	// SaveVote 记录一票；同一投票者后投的覆盖先投的。
	SaveVote(ctx context.Context, code string, vote *domain.Vote) error

	// GetVotes 返回本轮已记录的全部投票。
	GetVotes(ctx context.Context, code string) ([]domain.Vote, error)

	// DeleteVote 删除指定投票者的一票；票不存在时不报错。
	DeleteVote(ctx context.Context, code string, voterID string) error

	// ClearVotes 整体清空本轮投票。
	ClearVotes(ctx context.Context, code string) error

	// SetExpiry 刷新房间全部键的 TTL。
	SetExpiry(ctx context.Context, code string, ttl time.Duration) error

	// DeleteRoom 删除房间的全部键并将其移出活跃集合。
	DeleteRoom(ctx context.Context, code string) error
}

// ArchiveRepository 定义了终局归档记录的持久化操作。
type ArchiveRepository interface {
	// Save 写入一条归档记录。
	Save(ctx context.Context, record *domain.GameRecord) error

	// Recent 返回最近 limit 条归档记录，按结束时间倒序。
	Recent(ctx context.Context, limit int) ([]domain.GameRecord, error)
}
