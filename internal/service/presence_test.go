package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatiRivarola/impostor-backend/internal/service"
)

func TestPresenceService_HandleDisconnect(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 3)

	result, err := env.presence.HandleDisconnect(ctx, code, "conn-2")
	require.NoError(t, err)
	assert.Equal(t, ids[1], result.PlayerID)
	assert.Empty(t, result.NewHostID, "非房主断线不触发房主转移")

	// 座位保留，连接引用清空
	room, err := env.repo.GetRoom(ctx, code)
	require.NoError(t, err)
	player := room.FindPlayer(ids[1])
	require.NotNil(t, player)
	assert.Empty(t, player.ConnID)
	assert.NotZero(t, player.LastSeen)

	// 清理任务按重连窗口调度
	require.Len(t, env.scheduler.cleanups, 1)
	call := env.scheduler.cleanups[0]
	assert.Equal(t, code, call.RoomCode)
	assert.Equal(t, ids[1], call.PlayerID)
	assert.Equal(t, env.settings.ReconnectWindow, call.Delay)
}

func TestPresenceService_HandleDisconnect_HostFailover(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 3)

	result, err := env.presence.HandleDisconnect(ctx, code, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, ids[0], result.PlayerID)
	assert.Equal(t, ids[1], result.NewHostID, "房主断线应转移给仍在线的玩家")

	room, err := env.repo.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, ids[1], room.HostID)
}

func TestPresenceService_HandleDisconnect_LastConnectedLeavesHostVacant(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 2)

	_, err := env.presence.HandleDisconnect(ctx, code, "conn-2")
	require.NoError(t, err)
	result, err := env.presence.HandleDisconnect(ctx, code, "conn-1")
	require.NoError(t, err)
	assert.Empty(t, result.NewHostID, "无人在线时房主空缺，等待重连者认领")

	room, err := env.repo.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Empty(t, room.HostID)
	_ = ids
}

func TestPresenceService_HandleDisconnect_UnknownConn(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, _ := setupLobby(env, 2)

	_, err := env.presence.HandleDisconnect(ctx, code, "conn-ghost")
	assert.True(t, errors.Is(err, service.ErrPlayerNotFound))
}

func TestPresenceService_Reconnect(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 3)

	_, err := env.presence.HandleDisconnect(ctx, code, "conn-2")
	require.NoError(t, err)

	token, err := env.tokens.Issue(code, ids[1])
	require.NoError(t, err)

	room, player, err := env.presence.Reconnect(ctx, token, "conn-2b")
	require.NoError(t, err)
	assert.Equal(t, ids[1], player.ID)
	assert.Equal(t, "conn-2b", player.ConnID)
	assert.Equal(t, code, room.Code)

	// 新连接引用应可反查到玩家
	found, err := env.repo.FindPlayerByConn(ctx, code, "conn-2b")
	require.NoError(t, err)
	assert.Equal(t, ids[1], found)
}

func TestPresenceService_Reconnect_ClaimsVacantHost(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 2)

	_, err := env.presence.HandleDisconnect(ctx, code, "conn-2")
	require.NoError(t, err)
	_, err = env.presence.HandleDisconnect(ctx, code, "conn-1")
	require.NoError(t, err)

	token, err := env.tokens.Issue(code, ids[1])
	require.NoError(t, err)
	room, _, err := env.presence.Reconnect(ctx, token, "conn-2b")
	require.NoError(t, err)

	assert.Equal(t, ids[1], room.HostID, "第一个回来的玩家认领空缺的房主")
}

func TestPresenceService_Reconnect_OutsideWindow(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 3)

	_, err := env.presence.HandleDisconnect(ctx, code, "conn-2")
	require.NoError(t, err)

	// 把断线时间戳拨到窗口之外
	room, err := env.repo.GetRoom(ctx, code)
	require.NoError(t, err)
	stale := time.Now().Add(-env.settings.ReconnectWindow - time.Minute).UnixMilli()
	for i := range room.Players {
		if room.Players[i].ID == ids[1] {
			room.Players[i].LastSeen = stale
		}
	}
	require.NoError(t, env.repo.SaveRoom(ctx, room))

	token, err := env.tokens.Issue(code, ids[1])
	require.NoError(t, err)
	_, _, err = env.presence.Reconnect(ctx, token, "conn-2b")
	assert.True(t, errors.Is(err, service.ErrReconnectExpired))
}

func TestPresenceService_Reconnect_BadToken(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()

	_, _, err := env.presence.Reconnect(ctx, "not-a-token", "conn-x")
	assert.True(t, errors.Is(err, service.ErrInvalidToken))
}

func TestPresenceService_Reconnect_RoomGone(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 2)

	token, err := env.tokens.Issue(code, ids[0])
	require.NoError(t, err)
	require.NoError(t, env.repo.DeleteRoom(ctx, code))

	_, _, err = env.presence.Reconnect(ctx, token, "conn-x")
	assert.True(t, errors.Is(err, service.ErrReconnectExpired), "房间已过期时令牌视为失效")
}

func TestPresenceService_Reconnect_SeatReclaimed(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 3)

	// 清理任务已经回收了座位
	_, err := env.rooms.Leave(ctx, code, ids[1])
	require.NoError(t, err)

	token, err := env.tokens.Issue(code, ids[1])
	require.NoError(t, err)
	_, _, err = env.presence.Reconnect(ctx, token, "conn-2b")
	assert.True(t, errors.Is(err, service.ErrReconnectExpired))
}

func TestTokenService_IssueVerify(t *testing.T) {
	tokens, err := service.NewTokenService("secret-key", time.Hour)
	require.NoError(t, err)

	token, err := tokens.Issue("AB23", "player-1")
	require.NoError(t, err)

	code, playerID, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "AB23", code)
	assert.Equal(t, "player-1", playerID)
}

func TestTokenService_VerifyRejectsForgedToken(t *testing.T) {
	issuer, err := service.NewTokenService("secret-a", time.Hour)
	require.NoError(t, err)
	verifier, err := service.NewTokenService("secret-b", time.Hour)
	require.NoError(t, err)

	token, err := issuer.Issue("AB23", "player-1")
	require.NoError(t, err)

	_, _, err = verifier.Verify(token)
	assert.True(t, errors.Is(err, service.ErrInvalidToken), "密钥不符的令牌必须拒绝")
}

func TestTokenService_RequiresSecret(t *testing.T) {
	_, err := service.NewTokenService("", time.Hour)
	assert.Error(t, err)
}
