// Package mocks 提供仓库接口的 testify mock 实现，供 service 层单元测试使用。
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/MatiRivarola/impostor-backend/internal/domain"
)

// RoomRepository 是 repository.RoomRepository 的 mock 实现。
type RoomRepository struct {
	mock.Mock
}

func (m *RoomRepository) GetRoom(ctx context.Context, code string) (*domain.Room, error) {
	args := m.Called(ctx, code)
	if room, ok := args.Get(0).(*domain.Room); ok {
		return room, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RoomRepository) SaveRoom(ctx context.Context, room *domain.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *RoomRepository) RoomExists(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepository) SavePlayer(ctx context.Context, code string, player *domain.Player) error {
	args := m.Called(ctx, code, player)
	return args.Error(0)
}

func (m *RoomRepository) DeletePlayer(ctx context.Context, code string, playerID string) error {
	args := m.Called(ctx, code, playerID)
	return args.Error(0)
}

func (m *RoomRepository) PlayerCount(ctx context.Context, code string) (int, error) {
	args := m.Called(ctx, code)
	return args.Int(0), args.Error(1)
}

func (m *RoomRepository) BindConn(ctx context.Context, code string, connID string, playerID string) error {
	args := m.Called(ctx, code, connID, playerID)
	return args.Error(0)
}

func (m *RoomRepository) UnbindConn(ctx context.Context, code string, connID string) error {
	args := m.Called(ctx, code, connID)
	return args.Error(0)
}

func (m *RoomRepository) FindPlayerByConn(ctx context.Context, code string, connID string) (string, error) {
	args := m.Called(ctx, code, connID)
	return args.String(0), args.Error(1)
}

func (m *RoomRepository) ListActiveRoomCodes(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if codes, ok := args.Get(0).([]string); ok {
		return codes, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RoomRepository) SaveVote(ctx context.Context, code string, vote *domain.Vote) error {
	args := m.Called(ctx, code, vote)
	return args.Error(0)
}

func (m *RoomRepository) GetVotes(ctx context.Context, code string) ([]domain.Vote, error) {
	args := m.Called(ctx, code)
	if votes, ok := args.Get(0).([]domain.Vote); ok {
		return votes, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RoomRepository) DeleteVote(ctx context.Context, code string, voterID string) error {
	args := m.Called(ctx, code, voterID)
	return args.Error(0)
}

func (m *RoomRepository) ClearVotes(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *RoomRepository) SetExpiry(ctx context.Context, code string, ttl time.Duration) error {
	args := m.Called(ctx, code, ttl)
	return args.Error(0)
}

func (m *RoomRepository) DeleteRoom(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

// ArchiveRepository 是 repository.ArchiveRepository 的 mock 实现。
type ArchiveRepository struct {
	mock.Mock
}

func (m *ArchiveRepository) Save(ctx context.Context, record *domain.GameRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *ArchiveRepository) Recent(ctx context.Context, limit int) ([]domain.GameRecord, error) {
	args := m.Called(ctx, limit)
	if records, ok := args.Get(0).([]domain.GameRecord); ok {
		return records, args.Error(1)
	}
	return nil, args.Error(1)
}
