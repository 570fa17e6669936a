package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MatiRivarola/impostor-backend/internal/domain"
	"github.com/MatiRivarola/impostor-backend/internal/repository"
)

// 房间码生成的最大重试次数。32^4 的码空间下耗尽几乎不可能发生，
// 但边界必须存在。
const maxCodeAttempts = 10

// RoomService 负责房间与座位生命周期：创建、加入、离开、踢出。
type RoomService struct {
	repo     repository.RoomRepository
	avatars  *AvatarAllocator
	locks    *RoomLocks
	rng      *lockedRand
	settings Settings
	now      func() time.Time
}

// NewRoomService 创建 RoomService 实例。rng 可注入以便测试，传 nil 使用默认种子。
func NewRoomService(repo repository.RoomRepository, avatars *AvatarAllocator, locks *RoomLocks, settings Settings, rng *rand.Rand) *RoomService {
	if repo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if avatars == nil {
		panic("AvatarAllocator cannot be nil for RoomService")
	}
	if locks == nil {
		panic("RoomLocks cannot be nil for RoomService")
	}
	return &RoomService{
		repo:     repo,
		avatars:  avatars,
		locks:    locks,
		rng:      newLockedRand(rng),
		settings: settings,
		now:      time.Now,
	}
}

// CreateRoom 创建新房间，第一个玩家即房主。
func (s *RoomService) CreateRoom(ctx context.Context, playerName string, connID string) (*domain.Room, *domain.Player, error) {
	name, err := validatePlayerName(playerName)
	if err != nil {
		return nil, nil, err
	}

	code, err := s.generateUniqueCode(ctx)
	if err != nil {
		return nil, nil, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_code": code, "player_name": name})

	now := s.now().UnixMilli()
	emoji, color := s.avatars.Assign(code)
	host := domain.Player{
		ID:       uuid.NewString(),
		Name:     name,
		Role:     domain.RoleCitizen,
		ConnID:   connID,
		LastSeen: now,
		Avatar:   emoji,
		Color:    color,
	}
	room := &domain.Room{
		Code:         code,
		HostID:       host.ID,
		Phase:        domain.PhaseLobby,
		Players:      []domain.Player{host},
		CreatedAt:    now,
		LastActivity: now,
	}

	s.locks.Lock(code)
	defer s.locks.Unlock(code)

	if err := s.repo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to save new room")
		s.avatars.ClearRoom(code)
		return nil, nil, ErrInternalServer
	}
	if err := s.repo.BindConn(ctx, code, connID, host.ID); err != nil {
		logCtx.WithError(err).Error("Failed to bind host connection")
		return nil, nil, ErrInternalServer
	}

	logCtx.WithField("host_id", host.ID).Info("Room created")
	return room, &room.Players[0], nil
}

// JoinRoom 把新玩家加入 LOBBY 阶段的房间。
func (s *RoomService) JoinRoom(ctx context.Context, code string, playerName string, connID string) (*domain.Room, *domain.Player, error) {
	name, err := validatePlayerName(playerName)
	if err != nil {
		return nil, nil, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if !domain.ValidRoomCode(code) {
		return nil, nil, ErrInvalidRoomCode
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_code": code, "player_name": name})

	s.locks.Lock(code)
	defer s.locks.Unlock(code)

	room, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if room.Phase != domain.PhaseLobby {
		return nil, nil, ErrGameInProgress
	}
	if len(room.Players) >= s.settings.MaxPlayers {
		return nil, nil, ErrRoomFull
	}
	if room.HasName(name) {
		return nil, nil, ErrNameTaken
	}

	now := s.now().UnixMilli()
	emoji, color := s.avatars.Assign(code)
	player := domain.Player{
		ID:       uuid.NewString(),
		Name:     name,
		Role:     domain.RoleCitizen,
		ConnID:   connID,
		LastSeen: now,
		Avatar:   emoji,
		Color:    color,
	}
	room.Players = append(room.Players, player)
	room.LastActivity = now

	if err := s.repo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to save room after join")
		s.avatars.Release(code, emoji, color)
		return nil, nil, ErrInternalServer
	}
	if err := s.repo.BindConn(ctx, code, connID, player.ID); err != nil {
		logCtx.WithError(err).Error("Failed to bind joining connection")
		return nil, nil, ErrInternalServer
	}

	logCtx.WithField("player_id", player.ID).Info("Player joined room")
	return room, room.FindPlayer(player.ID), nil
}

// RemovalResult 描述一次玩家移除后的房间状态。
type RemovalResult struct {
	Removed       domain.Player
	Room          *domain.Room // 房间已销毁时为 nil
	RoomDestroyed bool
	NewHostID     string // 房主发生转移时非空
}

// Leave 处理玩家的主动离开。
func (s *RoomService) Leave(ctx context.Context, code string, playerID string) (*RemovalResult, error) {
	s.locks.Lock(code)
	defer s.locks.Unlock(code)
	return s.removeLocked(ctx, code, playerID)
}

// Kick 处理房主把另一个玩家踢出房间。
func (s *RoomService) Kick(ctx context.Context, code string, hostID string, targetID string) (*RemovalResult, error) {
	s.locks.Lock(code)
	defer s.locks.Unlock(code)
	return s.kickLocked(ctx, code, hostID, targetID)
}

func (s *RoomService) kickLocked(ctx context.Context, code string, hostID string, targetID string) (*RemovalResult, error) {
	room, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.HostID != hostID {
		return nil, ErrForbidden
	}
	if hostID == targetID {
		return nil, fmt.Errorf("%w: host cannot kick themselves", ErrInvalidName)
	}
	return s.removeLocked(ctx, code, targetID)
}

// RemoveExpired 在重连窗口过期后移除玩家；由后台清理任务调用。
// 触发时重新检查活性：玩家如果已经回来，什么都不做。
func (s *RoomService) RemoveExpired(ctx context.Context, code string, playerID string) (*RemovalResult, error) {
	s.locks.Lock(code)
	defer s.locks.Unlock(code)
	return s.removeExpiredLocked(ctx, code, playerID)
}

func (s *RoomService) removeExpiredLocked(ctx context.Context, code string, playerID string) (*RemovalResult, error) {
	room, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	player := room.FindPlayer(playerID)
	if player == nil {
		return nil, ErrPlayerNotFound
	}
	elapsed := s.now().UnixMilli() - player.LastSeen
	if elapsed <= s.settings.ReconnectWindow.Milliseconds() {
		// 玩家还在窗口内（大概率已重连），保留座位
		return nil, nil
	}
	return s.removeLocked(ctx, code, playerID)
}

// removeLocked 执行玩家移除；调用方必须已持有房间锁。
// 移除最后一个玩家会销毁整个房间并释放其头像资源。
func (s *RoomService) removeLocked(ctx context.Context, code string, playerID string) (*RemovalResult, error) {
	room, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	removed := room.FindPlayer(playerID)
	if removed == nil {
		return nil, ErrPlayerNotFound
	}
	result := &RemovalResult{Removed: *removed}
	logCtx := logrus.WithFields(logrus.Fields{"room_code": code, "player_id": playerID})

	remaining := make([]domain.Player, 0, len(room.Players)-1)
	for _, p := range room.Players {
		if p.ID != playerID {
			remaining = append(remaining, p)
		}
	}

	if len(remaining) == 0 {
		if err := s.repo.DeleteRoom(ctx, code); err != nil {
			logCtx.WithError(err).Error("Failed to delete empty room")
			return nil, ErrInternalServer
		}
		s.avatars.ClearRoom(code)
		result.RoomDestroyed = true
		logCtx.Info("Last player removed, room destroyed")
		return result, nil
	}

	room.Players = remaining
	room.LastActivity = s.now().UnixMilli()
	s.avatars.Release(code, result.Removed.Avatar, result.Removed.Color)

	// 房主离开时转移给最先加入的在线玩家；没有在线的就给最先加入的
	if room.HostID == playerID {
		newHost := s.pickNewHost(room)
		room.HostID = newHost
		result.NewHostID = newHost
		logCtx.WithField("new_host_id", newHost).Info("Host privilege transferred on removal")
	}

	if err := s.repo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to save room after removal")
		return nil, ErrInternalServer
	}
	if err := s.repo.DeletePlayer(ctx, code, playerID); err != nil {
		logCtx.WithError(err).Error("Failed to delete player record")
		return nil, ErrInternalServer
	}

	// 投票进行中移除玩家：他投出的票和投给他的票都不能再进入结算
	if room.Phase == domain.PhaseVoting {
		s.pruneBallots(ctx, code, playerID)
	}

	result.Room = room
	logCtx.Info("Player removed from room")
	return result, nil
}

// pruneBallots 清除被移除玩家相关的全部选票。失败只降级为告警：
// 剩下的票仍按存活玩家结算，不能因为清票失败让移除本身回滚。
func (s *RoomService) pruneBallots(ctx context.Context, code string, playerID string) {
	votes, err := s.repo.GetVotes(ctx, code)
	if err != nil {
		logrus.WithField("room_code", code).WithError(err).Warn("Failed to load votes for pruning")
		return
	}
	for _, v := range votes {
		if v.VoterID != playerID && v.TargetID != playerID {
			continue
		}
		if err := s.repo.DeleteVote(ctx, code, v.VoterID); err != nil {
			logrus.WithFields(logrus.Fields{"room_code": code, "voter_id": v.VoterID}).
				WithError(err).Warn("Failed to prune stale ballot")
		}
	}
}

// pickNewHost 在剩余玩家中挑选新房主：优先最先加入的在线玩家。
func (s *RoomService) pickNewHost(room *domain.Room) string {
	cutoff := s.now().UnixMilli() - s.settings.ConnectedWindow.Milliseconds()
	for _, p := range room.Players {
		if p.LastSeen >= cutoff {
			return p.ID
		}
	}
	return room.Players[0].ID
}

// RoomInfo 是面向加入界面的公开房间摘要。
type RoomInfo struct {
	Code        string       `json:"code"`
	Phase       domain.Phase `json:"phase"`
	PlayerCount int          `json:"playerCount"`
	MaxPlayers  int          `json:"maxPlayers"`
	Joinable    bool         `json:"joinable"`
}

// Lookup 返回房间的公开摘要，不泄露任何玩家身份信息。
func (s *RoomService) Lookup(ctx context.Context, code string) (*RoomInfo, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !domain.ValidRoomCode(code) {
		return nil, ErrInvalidRoomCode
	}
	room, err := s.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	return &RoomInfo{
		Code:        room.Code,
		Phase:       room.Phase,
		PlayerCount: len(room.Players),
		MaxPlayers:  s.settings.MaxPlayers,
		Joinable:    room.Phase == domain.PhaseLobby && len(room.Players) < s.settings.MaxPlayers,
	}, nil
}

// getRoom 读取房间并把仓库错误映射为业务错误。
func (s *RoomService) getRoom(ctx context.Context, code string) (*domain.Room, error) {
	room, err := s.repo.GetRoom(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithField("room_code", code).WithError(err).Error("Repository error loading room")
		return nil, ErrInternalServer
	}
	return room, nil
}

// generateUniqueCode 生成未被占用的房间码，重试次数有界。
func (s *RoomService) generateUniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		var code string
		s.rng.do(func(rng *rand.Rand) {
			code = domain.NewRoomCode(rng)
		})
		exists, err := s.repo.RoomExists(ctx, code)
		if err != nil {
			logrus.WithError(err).Error("Store error checking room code uniqueness")
			return "", ErrInternalServer
		}
		if !exists {
			return code, nil
		}
		logrus.WithField("room_code", code).Warnf("Generated room code already exists, retrying (attempt %d)", attempt+1)
	}
	logrus.Errorf("Failed to generate a unique room code after %d attempts", maxCodeAttempts)
	return "", ErrCodeExhausted
}

// validatePlayerName 校验名字：去除首尾空白后长度 1–20，排除标记敏感字符。
func validatePlayerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len([]rune(name)) > 20 {
		return "", fmt.Errorf("%w: name cannot exceed 20 characters", ErrInvalidName)
	}
	if strings.ContainsAny(name, "<>{}") {
		return "", fmt.Errorf("%w: name contains forbidden characters", ErrInvalidName)
	}
	return name, nil
}
