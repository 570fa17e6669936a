package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MatiRivarola/impostor-backend/internal/domain"
	"github.com/MatiRivarola/impostor-backend/internal/repository"
)

// PresenceService 处理连接断开与重连：活性时间戳、房主接力、
// 延迟清理调度。断线不等于离开——玩家在重连窗口内保留座位。
type PresenceService struct {
	repo      repository.RoomRepository
	rooms     *RoomService
	locks     *RoomLocks
	tokens    *TokenService
	scheduler Scheduler
	settings  Settings
	now       func() time.Time
}

// NewPresenceService 创建 PresenceService 实例。
func NewPresenceService(repo repository.RoomRepository, rooms *RoomService, locks *RoomLocks, tokens *TokenService, scheduler Scheduler, settings Settings) *PresenceService {
	if repo == nil {
		panic("RoomRepository cannot be nil for PresenceService")
	}
	if rooms == nil {
		panic("RoomService cannot be nil for PresenceService")
	}
	if locks == nil {
		panic("RoomLocks cannot be nil for PresenceService")
	}
	if tokens == nil {
		panic("TokenService cannot be nil for PresenceService")
	}
	return &PresenceService{
		repo:      repo,
		rooms:     rooms,
		locks:     locks,
		tokens:    tokens,
		scheduler: scheduler,
		settings:  settings,
		now:       time.Now,
	}
}

// DisconnectResult 描述一次断线处理的结果。
type DisconnectResult struct {
	Room     *domain.Room
	PlayerID string
	// NewHostID 非空表示断线触发了房主接力。
	NewHostID string
}

// HandleDisconnect 处理传输层上报的连接断开。
// 玩家被标记为离线但保留座位；清理任务在重连窗口之后触发时
// 会重新检查活性。断线者是房主时，房主身份交给最近在线的其他玩家。
func (s *PresenceService) HandleDisconnect(ctx context.Context, code string, connID string) (*DisconnectResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_code": code, "conn_id": connID})

	s.locks.Lock(code)
	defer s.locks.Unlock(code)

	playerID, err := s.repo.FindPlayerByConn(ctx, code, connID)
	if err != nil {
		if errors.Is(err, repository.ErrPlayerNotFound) || errors.Is(err, repository.ErrRoomNotFound) {
			// 连接从未完成加入，或房间已销毁
			return nil, ErrPlayerNotFound
		}
		logCtx.WithError(err).Error("Repository error resolving disconnected conn")
		return nil, ErrInternalServer
	}

	room, err := s.rooms.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	player := room.FindPlayer(playerID)
	if player == nil {
		return nil, ErrPlayerNotFound
	}

	now := s.now().UnixMilli()
	player.ConnID = ""
	player.LastSeen = now
	room.LastActivity = now

	result := &DisconnectResult{Room: room, PlayerID: playerID}

	// 房主掉线：接力给仍然在线的玩家；无人在线则留空，待重连者认领
	if room.HostID == playerID {
		next := s.firstConnected(room, playerID)
		room.HostID = next
		result.NewHostID = next
		logCtx.WithFields(logrus.Fields{"player_id": playerID, "new_host_id": next}).Info("Host disconnected, host transferred")
	}

	if err := s.repo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to save room after disconnect")
		return nil, ErrInternalServer
	}
	if err := s.repo.UnbindConn(ctx, code, connID); err != nil {
		logCtx.WithError(err).Warn("Failed to unbind conn index")
	}

	if s.scheduler != nil {
		if err := s.scheduler.SchedulePlayerCleanup(ctx, code, playerID, s.settings.ReconnectWindow); err != nil {
			logCtx.WithError(err).Warn("Failed to enqueue player cleanup task")
		}
	}

	logCtx.WithField("player_id", playerID).Info("Player disconnected, seat held for reconnect window")
	return result, nil
}

// Reconnect 校验重连令牌并把新连接重新绑定到原座位。
// 重连窗口以断线时刻的 lastSeen 为准；超窗的座位可能已被清理。
func (s *PresenceService) Reconnect(ctx context.Context, token string, connID string) (*domain.Room, *domain.Player, error) {
	code, playerID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, nil, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_code": code, "player_id": playerID})

	s.locks.Lock(code)
	defer s.locks.Unlock(code)

	room, err := s.rooms.getRoom(ctx, code)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil, nil, ErrReconnectExpired
		}
		return nil, nil, err
	}
	player := room.FindPlayer(playerID)
	if player == nil {
		// 座位已被清理任务回收
		return nil, nil, ErrReconnectExpired
	}

	now := s.now().UnixMilli()
	if player.ConnID == "" && now-player.LastSeen > s.settings.ReconnectWindow.Milliseconds() {
		logCtx.Warn("Reconnect attempt outside reconnect window")
		return nil, nil, ErrReconnectExpired
	}

	player.ConnID = connID
	player.LastSeen = now
	room.LastActivity = now

	// 房主空缺时，第一个回来的玩家认领
	if room.HostID == "" {
		room.HostID = playerID
		logCtx.Info("Vacant host claimed by reconnecting player")
	}

	if err := s.repo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to save room after reconnect")
		return nil, nil, ErrInternalServer
	}
	if err := s.repo.BindConn(ctx, code, connID, playerID); err != nil {
		logCtx.WithError(err).Error("Failed to bind reconnected conn")
		return nil, nil, ErrInternalServer
	}

	logCtx.Info("Player reconnected")
	return room, player, nil
}

// Heartbeat 刷新玩家活性时间戳并延长房间 TTL。
func (s *PresenceService) Heartbeat(ctx context.Context, code string, connID string) error {
	s.locks.Lock(code)
	defer s.locks.Unlock(code)

	playerID, err := s.repo.FindPlayerByConn(ctx, code, connID)
	if err != nil {
		if errors.Is(err, repository.ErrPlayerNotFound) || errors.Is(err, repository.ErrRoomNotFound) {
			return ErrPlayerNotFound
		}
		return ErrInternalServer
	}
	room, err := s.rooms.getRoom(ctx, code)
	if err != nil {
		return err
	}
	player := room.FindPlayer(playerID)
	if player == nil {
		return ErrPlayerNotFound
	}
	player.LastSeen = s.now().UnixMilli()
	if err := s.repo.SavePlayer(ctx, code, player); err != nil {
		logrus.WithField("room_code", code).WithError(err).Error("Failed to persist heartbeat")
		return ErrInternalServer
	}
	if err := s.repo.SetExpiry(ctx, code, s.settings.RoomTTL); err != nil {
		logrus.WithField("room_code", code).WithError(err).Warn("Failed to refresh room TTL")
	}
	return nil
}

// firstConnected 返回除 exclude 外最近仍保持在线的玩家 ID；没有则返回空串。
func (s *PresenceService) firstConnected(room *domain.Room, exclude string) string {
	for _, p := range room.Players {
		if p.ID == exclude {
			continue
		}
		if p.ConnID != "" {
			return p.ID
		}
	}
	return ""
}
