package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/MatiRivarola/impostor-backend/internal/domain"
	"github.com/MatiRivarola/impostor-backend/internal/repository"
)

// RedisRoomRepository 是 RoomRepository 接口的 Redis 实现。
//
// 键布局：
//
//	<prefix>room:<code>          房间级标量字段 + 玩家顺序 (JSON string)
//	<prefix>room:<code>:players  hash playerID → Player JSON（玩家集合的权威表示）
//	<prefix>room:<code>:conns    hash connID → playerID（派生索引，可重建）
//	<prefix>room:<code>:votes    hash voterID → Vote JSON
//	<prefix>active_rooms         set of codes
type RedisRoomRepository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisRoomRepository 创建 RedisRoomRepository 实例。
// ttl 是房间全部键的过期时间，每次 SaveRoom 都会刷新。
func NewRedisRoomRepository(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisRoomRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisRoomRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "imp:"
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisRoomRepository{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// --- Key Generation Helpers ---

func (r *RedisRoomRepository) roomKey(code string) string {
	return fmt.Sprintf("%sroom:%s", r.keyPrefix, code)
}

func (r *RedisRoomRepository) playersKey(code string) string {
	return fmt.Sprintf("%sroom:%s:players", r.keyPrefix, code)
}

func (r *RedisRoomRepository) connsKey(code string) string {
	return fmt.Sprintf("%sroom:%s:conns", r.keyPrefix, code)
}

func (r *RedisRoomRepository) votesKey(code string) string {
	return fmt.Sprintf("%sroom:%s:votes", r.keyPrefix, code)
}

func (r *RedisRoomRepository) activeRoomsKey() string {
	return r.keyPrefix + "active_rooms"
}

// storedRoom 是房间记录的持久化形态。
// Players 不在这里序列化（权威表示是 players hash），
// 只保留 PlayerOrder 以便恢复加入/洗牌顺序。
type storedRoom struct {
	domain.Room
	PlayerOrder []string `json:"playerOrder"`
}

// --- RoomRepository Interface Implementation ---

// GetRoom 组合房间记录与玩家 hash，返回调用时刻的一致快照。
func (r *RedisRoomRepository) GetRoom(ctx context.Context, code string) (*domain.Room, error) {
	raw, err := r.client.Get(ctx, r.roomKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("redis: failed to get room %s: %w", code, err)
	}

	var stored storedRoom
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("redis: failed to unmarshal room %s: %w", code, err)
	}

	playerMap, err := r.client.HGetAll(ctx, r.playersKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get players for room %s: %w", code, err)
	}

	room := stored.Room
	room.Players = make([]domain.Player, 0, len(playerMap))
	for _, id := range stored.PlayerOrder {
		raw, ok := playerMap[id]
		if !ok {
			// 顺序表里的玩家已被单独删除，跳过即可
			continue
		}
		var p domain.Player
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			logrus.WithFields(logrus.Fields{"room_code": code, "player_id": id}).
				WithError(err).Warn("Redis: failed to unmarshal player record, skipping")
			continue
		}
		room.Players = append(room.Players, p)
		delete(playerMap, id)
	}
	// 防御：hash 里存在但不在顺序表中的玩家追加到末尾
	for id, raw := range playerMap {
		var p domain.Player
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			logrus.WithFields(logrus.Fields{"room_code": code, "player_id": id}).
				WithError(err).Warn("Redis: failed to unmarshal stray player record, skipping")
			continue
		}
		room.Players = append(room.Players, p)
	}
	return &room, nil
}

// SaveRoom 保存房间标量字段与全部玩家记录，同步顺序表并刷新 TTL。
func (r *RedisRoomRepository) SaveRoom(ctx context.Context, room *domain.Room) error {
	stored := storedRoom{Room: *room}
	stored.Players = nil
	stored.PlayerOrder = make([]string, 0, len(room.Players))
	for _, p := range room.Players {
		stored.PlayerOrder = append(stored.PlayerOrder, p.ID)
	}

	roomBytes, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal room %s: %w", room.Code, err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.roomKey(room.Code), roomBytes, r.ttl)
	for i := range room.Players {
		p := room.Players[i]
		playerBytes, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("redis: failed to marshal player %s: %w", p.ID, err)
		}
		pipe.HSet(ctx, r.playersKey(room.Code), p.ID, playerBytes)
	}
	pipe.SAdd(ctx, r.activeRoomsKey(), room.Code)
	pipe.Expire(ctx, r.playersKey(room.Code), r.ttl)
	pipe.Expire(ctx, r.connsKey(room.Code), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to save room %s: %w", room.Code, err)
	}

	// 清理 hash 中已不属于玩家集合的残留条目
	ids, err := r.client.HKeys(ctx, r.playersKey(room.Code)).Result()
	if err != nil {
		return fmt.Errorf("redis: failed to list player keys for room %s: %w", room.Code, err)
	}
	current := make(map[string]bool, len(room.Players))
	for _, p := range room.Players {
		current[p.ID] = true
	}
	for _, id := range ids {
		if !current[id] {
			if err := r.client.HDel(ctx, r.playersKey(room.Code), id).Err(); err != nil {
				return fmt.Errorf("redis: failed to prune stale player %s in room %s: %w", id, room.Code, err)
			}
		}
	}
	return nil
}

// RoomExists 检查房间码是否已被占用。
func (r *RedisRoomRepository) RoomExists(ctx context.Context, code string) (bool, error) {
	n, err := r.client.Exists(ctx, r.roomKey(code)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to check existence of room %s: %w", code, err)
	}
	return n > 0, nil
}

// SavePlayer 写入单个玩家记录。
func (r *RedisRoomRepository) SavePlayer(ctx context.Context, code string, player *domain.Player) error {
	playerBytes, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal player %s: %w", player.ID, err)
	}
	if err := r.client.HSet(ctx, r.playersKey(code), player.ID, playerBytes).Err(); err != nil {
		return fmt.Errorf("redis: failed to save player %s in room %s: %w", player.ID, code, err)
	}
	return nil
}

// DeletePlayer 删除玩家记录及其在连接索引中的条目。
func (r *RedisRoomRepository) DeletePlayer(ctx context.Context, code string, playerID string) error {
	raw, err := r.client.HGet(ctx, r.playersKey(code), playerID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: failed to read player %s in room %s: %w", playerID, code, err)
	}
	pipe := r.client.Pipeline()
	pipe.HDel(ctx, r.playersKey(code), playerID)
	if err == nil {
		var p domain.Player
		if uerr := json.Unmarshal([]byte(raw), &p); uerr == nil && p.ConnID != "" {
			pipe.HDel(ctx, r.connsKey(code), p.ConnID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to delete player %s in room %s: %w", playerID, code, err)
	}
	return nil
}

// PlayerCount 返回房间当前玩家数。
func (r *RedisRoomRepository) PlayerCount(ctx context.Context, code string) (int, error) {
	n, err := r.client.HLen(ctx, r.playersKey(code)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to count players in room %s: %w", code, err)
	}
	return int(n), nil
}

// BindConn 在派生索引中登记连接引用 → 玩家映射。
func (r *RedisRoomRepository) BindConn(ctx context.Context, code string, connID string, playerID string) error {
	if err := r.client.HSet(ctx, r.connsKey(code), connID, playerID).Err(); err != nil {
		return fmt.Errorf("redis: failed to bind conn %s in room %s: %w", connID, code, err)
	}
	return nil
}

// UnbindConn 移除连接索引中的条目。
func (r *RedisRoomRepository) UnbindConn(ctx context.Context, code string, connID string) error {
	if err := r.client.HDel(ctx, r.connsKey(code), connID).Err(); err != nil {
		return fmt.Errorf("redis: failed to unbind conn %s in room %s: %w", connID, code, err)
	}
	return nil
}

// FindPlayerByConn 通过连接引用查找玩家 ID。
func (r *RedisRoomRepository) FindPlayerByConn(ctx context.Context, code string, connID string) (string, error) {
	playerID, err := r.client.HGet(ctx, r.connsKey(code), connID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repository.ErrPlayerNotFound
		}
		return "", fmt.Errorf("redis: failed to find player by conn %s in room %s: %w", connID, code, err)
	}
	return playerID, nil
}

// ListActiveRoomCodes 枚举活跃房间码。
func (r *RedisRoomRepository) ListActiveRoomCodes(ctx context.Context) ([]string, error) {
	codes, err := r.client.SMembers(ctx, r.activeRoomsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to list active rooms: %w", err)
	}
	return codes, nil
}

// SaveVote 记录一票，同一投票者覆盖写。
func (r *RedisRoomRepository) SaveVote(ctx context.Context, code string, vote *domain.Vote) error {
	voteBytes, err := json.Marshal(vote)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal vote by %s: %w", vote.VoterID, err)
	}
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, r.votesKey(code), vote.VoterID, voteBytes)
	pipe.Expire(ctx, r.votesKey(code), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to save vote by %s in room %s: %w", vote.VoterID, code, err)
	}
	return nil
}

// GetVotes 返回本轮全部投票。
func (r *RedisRoomRepository) GetVotes(ctx context.Context, code string) ([]domain.Vote, error) {
	voteMap, err := r.client.HGetAll(ctx, r.votesKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get votes for room %s: %w", code, err)
	}
	votes := make([]domain.Vote, 0, len(voteMap))
	for voterID, raw := range voteMap {
		var v domain.Vote
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			logrus.WithFields(logrus.Fields{"room_code": code, "voter_id": voterID}).
				WithError(err).Warn("Redis: failed to unmarshal vote, skipping")
			continue
		}
		votes = append(votes, v)
	}
	return votes, nil
}

// DeleteVote 删除指定投票者的一票。
func (r *RedisRoomRepository) DeleteVote(ctx context.Context, code string, voterID string) error {
	if err := r.client.HDel(ctx, r.votesKey(code), voterID).Err(); err != nil {
		return fmt.Errorf("redis: failed to delete vote by %s in room %s: %w", voterID, code, err)
	}
	return nil
}

// ClearVotes 整体清空投票。
func (r *RedisRoomRepository) ClearVotes(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, r.votesKey(code)).Err(); err != nil {
		return fmt.Errorf("redis: failed to clear votes for room %s: %w", code, err)
	}
	return nil
}

// SetExpiry 刷新房间全部键的 TTL。
func (r *RedisRoomRepository) SetExpiry(ctx context.Context, code string, ttl time.Duration) error {
	pipe := r.client.Pipeline()
	pipe.Expire(ctx, r.roomKey(code), ttl)
	pipe.Expire(ctx, r.playersKey(code), ttl)
	pipe.Expire(ctx, r.connsKey(code), ttl)
	pipe.Expire(ctx, r.votesKey(code), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to refresh expiry for room %s: %w", code, err)
	}
	return nil
}

// DeleteRoom 删除房间的全部键并移出活跃集合。
func (r *RedisRoomRepository) DeleteRoom(ctx context.Context, code string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.roomKey(code))
	pipe.Del(ctx, r.playersKey(code))
	pipe.Del(ctx, r.connsKey(code))
	pipe.Del(ctx, r.votesKey(code))
	pipe.SRem(ctx, r.activeRoomsKey(), code)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to delete room %s: %w", code, err)
	}
	return nil
}
