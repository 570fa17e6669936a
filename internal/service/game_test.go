package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatiRivarola/impostor-backend/internal/domain"
	"github.com/MatiRivarola/impostor-backend/internal/service"
)

// --- StartGame ---

func TestGameService_StartGame_Success(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 5)

	cfg := domain.GameConfig{
		Themes:          []string{"argentina", "futbol"},
		ImpostorCount:   1,
		UndercoverCount: 1,
		GameMode:        "classic",
	}
	room, err := env.games.StartGame(ctx, code, ids[0], cfg)
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseAssignment, room.Phase)
	assert.NotEmpty(t, room.SecretWord)
	assert.NotEmpty(t, room.UndercoverWord)
	assert.NotZero(t, room.RoundStartedAt)

	counts := map[domain.Role]int{}
	for _, p := range room.Players {
		counts[p.Role]++
	}
	assert.Equal(t, 1, counts[domain.RoleImpostor])
	assert.Equal(t, 1, counts[domain.RoleUndercover])
	assert.Equal(t, 3, counts[domain.RoleCitizen])
}

func TestGameService_StartGame_Guards(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 3)
	cfg := domain.GameConfig{Themes: []string{"argentina"}, ImpostorCount: 1, GameMode: "classic"}

	t.Run("non-host rejected", func(t *testing.T) {
		_, err := env.games.StartGame(ctx, code, ids[1], cfg)
		assert.True(t, errors.Is(err, service.ErrForbidden))
	})

	t.Run("bad config rejected", func(t *testing.T) {
		bad := cfg
		bad.ImpostorCount = 2
		_, err := env.games.StartGame(ctx, code, ids[0], bad)
		assert.True(t, errors.Is(err, service.ErrInvalidConfiguration))
	})

	t.Run("already started", func(t *testing.T) {
		_, err := env.games.StartGame(ctx, code, ids[0], cfg)
		require.NoError(t, err)
		_, err = env.games.StartGame(ctx, code, ids[0], cfg)
		assert.True(t, errors.Is(err, service.ErrInvalidTransition))
	})
}

func TestGameService_StartGame_RequiresMinPlayers(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 2)

	cfg := domain.GameConfig{Themes: []string{"argentina"}, ImpostorCount: 1, GameMode: "classic"}
	_, err := env.games.StartGame(ctx, code, ids[0], cfg)
	assert.True(t, errors.Is(err, service.ErrInvalidConfiguration), "少于最小人数不能开局")
}

// --- ChangePhase ---

func TestGameService_ChangePhase_FollowsTable(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 4)
	hostID := ids[0]

	cfg := domain.GameConfig{Themes: []string{"comida"}, ImpostorCount: 1, GameMode: "classic"}
	_, err := env.games.StartGame(ctx, code, hostID, cfg)
	require.NoError(t, err)

	// ASSIGNMENT → VOTING 非法
	_, err = env.games.ChangePhase(ctx, code, hostID, domain.PhaseVoting)
	assert.True(t, errors.Is(err, service.ErrInvalidTransition))

	// ASSIGNMENT → DEBATE 合法，倒计时应启动
	change, err := env.games.ChangePhase(ctx, code, hostID, domain.PhaseDebate)
	require.NoError(t, err)
	assert.True(t, change.EnteredDebate)
	assert.True(t, change.Room.DebateTimerActive)
	assert.Equal(t, env.settings.DebateDuration(4), change.Room.DebateTimeRemaining)

	// DEBATE → VOTING：停表并清空票箱
	change, err = env.games.ChangePhase(ctx, code, hostID, domain.PhaseVoting)
	require.NoError(t, err)
	assert.True(t, change.EnteredVoting)
	assert.True(t, change.LeftDebate)
	assert.False(t, change.Room.DebateTimerActive)
}

func TestGameService_ChangePhase_NonHostRejected(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 3)
	startClassicGame(env, code, ids[0])

	_, err := env.games.ChangePhase(ctx, code, ids[1], domain.PhaseVoting)
	assert.True(t, errors.Is(err, service.ErrForbidden))
}

// --- CastVote ---

func enterVoting(t *testing.T, env *testEnv, code string, hostID string) {
	t.Helper()
	_, err := env.games.ChangePhase(context.Background(), code, hostID, domain.PhaseVoting)
	require.NoError(t, err)
}

func TestGameService_CastVote_Validations(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 4)

	t.Run("wrong phase", func(t *testing.T) {
		_, err := env.games.CastVote(ctx, code, ids[0], ids[1])
		assert.True(t, errors.Is(err, service.ErrInvalidVote))
	})

	startClassicGame(env, code, ids[0])
	enterVoting(t, env, code, ids[0])

	t.Run("self vote", func(t *testing.T) {
		_, err := env.games.CastVote(ctx, code, ids[0], ids[0])
		assert.True(t, errors.Is(err, service.ErrInvalidVote))
	})

	t.Run("unknown voter", func(t *testing.T) {
		_, err := env.games.CastVote(ctx, code, "ghost", ids[1])
		assert.True(t, errors.Is(err, service.ErrInvalidVote))
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := env.games.CastVote(ctx, code, ids[0], "ghost")
		assert.True(t, errors.Is(err, service.ErrInvalidVote))
	})
}

func TestGameService_CastVote_OverwriteKeepsSingleBallot(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 4)
	startClassicGame(env, code, ids[0])
	enterVoting(t, env, code, ids[0])

	result, err := env.games.CastVote(ctx, code, ids[0], ids[1])
	require.NoError(t, err)
	assert.Equal(t, 1, result.State.VoteCount)

	// 改投：票数不变
	result, err = env.games.CastVote(ctx, code, ids[0], ids[2])
	require.NoError(t, err)
	assert.Equal(t, 1, result.State.VoteCount, "改投不应产生第二张票")
	assert.Nil(t, result.Outcome)
}

func TestGameService_CastVote_ResolvesElimination(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 5)
	impostors, _, citizens := startClassicGame(env, code, ids[0])
	enterVoting(t, env, code, ids[0])

	// 所有人集中投一个 citizen（不含其本人）
	victim := citizens[0]
	var outcome *service.VoteOutcome
	for _, id := range ids {
		if id == victim {
			// victim 自己投 impostor
			result, err := env.games.CastVote(ctx, code, id, impostors[0])
			require.NoError(t, err)
			if result.Outcome != nil {
				outcome = result.Outcome
			}
			continue
		}
		result, err := env.games.CastVote(ctx, code, id, victim)
		require.NoError(t, err)
		if result.Outcome != nil {
			outcome = result.Outcome
		}
	}

	require.NotNil(t, outcome, "第五张票应触发结算")
	assert.False(t, outcome.Tie)
	require.NotNil(t, outcome.Elimination)
	assert.Equal(t, victim, outcome.Elimination.VictimID)
	assert.Equal(t, domain.RoleCitizen, outcome.Elimination.VictimRole)
	assert.True(t, outcome.Verdict.ShouldContinue, "5 人局淘汰 1 个 citizen 后应继续")

	room, err := env.repo.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseElimination, room.Phase)
	found := room.FindPlayer(victim)
	require.NotNil(t, found)
	assert.True(t, found.IsDead)

	votes, err := env.repo.GetVotes(ctx, code)
	require.NoError(t, err)
	assert.Empty(t, votes, "结算后票箱应清空")
}

func TestGameService_CastVote_TieRestartsVoting(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 4)
	startClassicGame(env, code, ids[0])
	enterVoting(t, env, code, ids[0])

	// 2-2 平票：a、b 投 c；c、d 投 a
	pairs := [][2]string{
		{ids[0], ids[2]},
		{ids[1], ids[2]},
		{ids[2], ids[0]},
	}
	for _, p := range pairs {
		_, err := env.games.CastVote(ctx, code, p[0], p[1])
		require.NoError(t, err)
	}
	result, err := env.games.CastVote(ctx, code, ids[3], ids[0])
	require.NoError(t, err)

	require.NotNil(t, result.Outcome)
	assert.True(t, result.Outcome.Tie)
	assert.ElementsMatch(t, []string{ids[0], ids[2]}, result.Outcome.Tied)
	assert.Nil(t, result.Outcome.Elimination, "平票不应淘汰任何人")

	room, err := env.repo.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseVoting, room.Phase, "平票后停留在 VOTING 重新投票")
	for _, p := range room.Players {
		assert.False(t, p.IsDead)
	}
	votes, err := env.repo.GetVotes(ctx, code)
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestGameService_CastVote_ImpostorEliminatedEndsGame(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 4)
	impostors, _, _ := startClassicGame(env, code, ids[0])
	enterVoting(t, env, code, ids[0])

	target := impostors[0]
	var outcome *service.VoteOutcome
	for _, id := range ids {
		if id == target {
			// impostor 随便投一个别人
			other := ids[0]
			if other == target {
				other = ids[1]
			}
			result, err := env.games.CastVote(ctx, code, id, other)
			require.NoError(t, err)
			if result.Outcome != nil {
				outcome = result.Outcome
			}
			continue
		}
		result, err := env.games.CastVote(ctx, code, id, target)
		require.NoError(t, err)
		if result.Outcome != nil {
			outcome = result.Outcome
		}
	}

	require.NotNil(t, outcome)
	assert.False(t, outcome.Verdict.ShouldContinue)
	assert.Equal(t, domain.WinnerCitizens, outcome.Verdict.Winner)

	room, err := env.repo.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseResult, room.Phase)
	assert.Equal(t, domain.WinnerCitizens, room.Winner)

	// 终局应投递归档任务
	require.Len(t, env.scheduler.archives, 1)
	record := env.scheduler.archives[0]
	assert.Equal(t, code, record.RoomCode)
	assert.Equal(t, string(domain.WinnerCitizens), record.Winner)
	assert.Equal(t, 4, record.PlayerCount)
}

func TestGameService_CastVote_DeadPlayersExcluded(t *testing.T) {
	env := newTestEnv(3)
	ctx := context.Background()
	code, ids := setupLobby(env, 5)
	impostors, _, citizens := startClassicGame(env, code, ids[0])
	enterVoting(t, env, code, ids[0])

	// 第一轮：淘汰 citizens[0]
	victim := citizens[0]
	for _, id := range ids {
		target := victim
		if id == victim {
			target = impostors[0]
		}
		_, err := env.games.CastVote(ctx, code, id, target)
		require.NoError(t, err)
	}

	// ELIMINATION → DEBATE → VOTING，进入第二轮
	_, err := env.games.ChangePhase(ctx, code, ids[0], domain.PhaseDebate)
	require.NoError(t, err)
	enterVoting(t, env, code, ids[0])

	t.Run("dead voter rejected", func(t *testing.T) {
		_, err := env.games.CastVote(ctx, code, victim, impostors[0])
		assert.True(t, errors.Is(err, service.ErrInvalidVote))
	})

	t.Run("dead target rejected", func(t *testing.T) {
		_, err := env.games.CastVote(ctx, code, impostors[0], victim)
		assert.True(t, errors.Is(err, service.ErrInvalidVote))
	})

	t.Run("round resolves with living votes only", func(t *testing.T) {
		// 4 个存活玩家投完即结算，不等死者
		living := make([]string, 0, 4)
		for _, id := range ids {
			if id != victim {
				living = append(living, id)
			}
		}
		target := living[0]
		if target == impostors[0] {
			target = living[1]
		}
		var outcome *service.VoteOutcome
		for _, id := range living {
			voteFor := target
			if id == target {
				voteFor = impostors[0]
			}
			result, err := env.games.CastVote(ctx, code, id, voteFor)
			require.NoError(t, err)
			assert.Equal(t, 4, result.State.TotalVoters)
			if result.Outcome != nil {
				outcome = result.Outcome
			}
		}
		assert.NotNil(t, outcome, "存活玩家投满即结算")
	})
}

// --- 两人残局 ---

func TestGameService_CitizenEliminationLeavesTwo_ImpostorWins(t *testing.T) {
	env := newTestEnv(5)
	ctx := context.Background()
	code, ids := setupLobby(env, 3)
	impostors, _, citizens := startClassicGame(env, code, ids[0])
	enterVoting(t, env, code, ids[0])

	// 3 人局淘汰一个 citizen → 剩 2 人 → impostor 获胜
	victim := citizens[0]
	var outcome *service.VoteOutcome
	for _, id := range ids {
		target := victim
		if id == victim {
			target = impostors[0]
		}
		result, err := env.games.CastVote(ctx, code, id, target)
		require.NoError(t, err)
		if result.Outcome != nil {
			outcome = result.Outcome
		}
	}

	require.NotNil(t, outcome)
	assert.False(t, outcome.Verdict.ShouldContinue)
	assert.Equal(t, domain.WinnerImpostor, outcome.Verdict.Winner)
}

// --- ResetGame ---

func TestGameService_ResetGame(t *testing.T) {
	env := newTestEnv(5)
	ctx := context.Background()
	code, ids := setupLobby(env, 3)
	impostors, _, citizens := startClassicGame(env, code, ids[0])
	enterVoting(t, env, code, ids[0])

	// 打到终局
	victim := citizens[0]
	for _, id := range ids {
		target := victim
		if id == victim {
			target = impostors[0]
		}
		_, err := env.games.CastVote(ctx, code, id, target)
		require.NoError(t, err)
	}

	room, err := env.games.ResetGame(ctx, code, ids[0])
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseLobby, room.Phase)
	assert.Empty(t, room.SecretWord)
	assert.Empty(t, room.Winner)
	assert.Nil(t, room.EliminationData)
	assert.Zero(t, room.RoundStartedAt)
	for _, p := range room.Players {
		assert.False(t, p.IsDead)
		assert.Empty(t, p.Word)
		assert.Equal(t, domain.RoleCitizen, p.Role)
	}
}

func TestGameService_ResetGame_OnlyFromResult(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 3)
	startClassicGame(env, code, ids[0])

	_, err := env.games.ResetGame(ctx, code, ids[0])
	assert.True(t, errors.Is(err, service.ErrInvalidTransition), "DEBATE 阶段不能重置")
}

// --- AddDebateTime ---

func TestGameService_AddDebateTime(t *testing.T) {
	env := newTestEnv(1)
	ctx := context.Background()
	code, ids := setupLobby(env, 3)
	startClassicGame(env, code, ids[0])

	before, err := env.repo.GetRoom(ctx, code)
	require.NoError(t, err)

	room, err := env.games.AddDebateTime(ctx, code, ids[0], 30)
	require.NoError(t, err)
	assert.Equal(t, before.DebateTimeRemaining+30, room.DebateTimeRemaining, "追加时间是累加而非重置")

	t.Run("non-host rejected", func(t *testing.T) {
		_, err := env.games.AddDebateTime(ctx, code, ids[1], 30)
		assert.True(t, errors.Is(err, service.ErrForbidden))
	})

	t.Run("non-positive rejected", func(t *testing.T) {
		_, err := env.games.AddDebateTime(ctx, code, ids[0], 0)
		assert.True(t, errors.Is(err, service.ErrInvalidConfiguration))
	})

	t.Run("outside debate rejected", func(t *testing.T) {
		enterVoting(t, env, code, ids[0])
		_, err := env.games.AddDebateTime(ctx, code, ids[0], 30)
		assert.True(t, errors.Is(err, service.ErrInvalidTransition))
	})
}

// --- 投票期间的玩家移除 ---

func TestRoomService_RemovalDuringVoting_PrunesBallots(t *testing.T) {
	env := newTestEnv(7)
	ctx := context.Background()
	code, ids := setupLobby(env, 5)
	startClassicGame(env, code, ids[0])
	enterVoting(t, env, code, ids[0])

	// ids[1] 投出一票，ids[2] 投给 ids[1]
	_, err := env.games.CastVote(ctx, code, ids[1], ids[3])
	require.NoError(t, err)
	_, err = env.games.CastVote(ctx, code, ids[2], ids[1])
	require.NoError(t, err)

	// 房主把 ids[1] 踢出：他投出的票和投给他的票都应随之清除
	_, err = env.rooms.Kick(ctx, code, ids[0], ids[1])
	require.NoError(t, err)

	votes, err := env.repo.GetVotes(ctx, code)
	require.NoError(t, err)
	assert.Empty(t, votes, "被移除玩家相关的选票应全部清除")

	// 剩余 4 名存活玩家正常完成本轮，结算不受残留选票影响
	_, err = env.games.CastVote(ctx, code, ids[0], ids[2])
	require.NoError(t, err)
	_, err = env.games.CastVote(ctx, code, ids[3], ids[2])
	require.NoError(t, err)
	_, err = env.games.CastVote(ctx, code, ids[4], ids[2])
	require.NoError(t, err)
	result, err := env.games.CastVote(ctx, code, ids[2], ids[0])
	require.NoError(t, err)

	require.NotNil(t, result.Outcome, "存活玩家全部投完应触发结算")
	assert.False(t, result.Outcome.Tie)
	require.NotNil(t, result.Outcome.Elimination)
	assert.Equal(t, ids[2], result.Outcome.Elimination.VictimID)
}
