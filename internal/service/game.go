package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MatiRivarola/impostor-backend/internal/domain"
	"github.com/MatiRivarola/impostor-backend/internal/repository"
)

// GameService 实现一局游戏的核心编排：角色分配、阶段状态机、
// 投票结算与胜负判定、重置。所有房间变更都在按房间码的临界区内完成。
type GameService struct {
	repo      repository.RoomRepository
	rooms     *RoomService
	locks     *RoomLocks
	scheduler Scheduler
	rng       *lockedRand
	settings  Settings
	now       func() time.Time
}

// NewGameService 创建 GameService 实例。scheduler 可为 nil（测试时跳过归档）。
func NewGameService(repo repository.RoomRepository, rooms *RoomService, locks *RoomLocks, scheduler Scheduler, settings Settings, rng *rand.Rand) *GameService {
	if repo == nil {
		panic("RoomRepository cannot be nil for GameService")
	}
	if rooms == nil {
		panic("RoomService cannot be nil for GameService")
	}
	if locks == nil {
		panic("RoomLocks cannot be nil for GameService")
	}
	return &GameService{
		repo:      repo,
		rooms:     rooms,
		locks:     locks,
		scheduler: scheduler,
		rng:       newLockedRand(rng),
		settings:  settings,
		now:       time.Now,
	}
}

// StartGame 校验配置、分配角色并把房间带入 ASSIGNMENT 阶段。
// 任何校验失败都在发生状态变更之前返回。
func (s *GameService) StartGame(ctx context.Context, code string, requesterID string, cfg domain.GameConfig) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_code": code, "requester_id": requesterID})

	s.locks.Lock(code)
	defer s.locks.Unlock(code)

	room, err := s.rooms.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.HostID != requesterID {
		return nil, ErrForbidden
	}
	if room.Phase != domain.PhaseLobby {
		return nil, ErrInvalidTransition
	}
	if len(room.Players) < s.settings.MinPlayers {
		return nil, fmt.Errorf("%w: at least %d players required", ErrInvalidConfiguration, s.settings.MinPlayers)
	}

	var (
		assigned []domain.Player
		pair     domain.WordPair
		aerr     error
	)
	s.rng.do(func(rng *rand.Rand) {
		assigned, pair, aerr = domain.AssignRoles(room.Players, cfg, rng)
	})
	if aerr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, aerr)
	}

	// 洗牌后的顺序成为新的规范顺序
	room.Players = assigned
	room.SecretWord = pair.Normal
	room.UndercoverWord = pair.Undercover
	room.Phase = domain.PhaseAssignment
	room.GameConfig = &cfg
	room.Winner = ""
	room.EliminationData = nil
	room.RoundStartedAt = s.now().UnixMilli()
	room.LastActivity = room.RoundStartedAt

	if err := s.repo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to save room after role assignment")
		return nil, ErrInternalServer
	}
	if err := s.repo.ClearVotes(ctx, code); err != nil {
		logCtx.WithError(err).Error("Failed to clear stale votes on game start")
		return nil, ErrInternalServer
	}

	logCtx.WithFields(logrus.Fields{
		"impostor_count":   cfg.ImpostorCount,
		"undercover_count": cfg.UndercoverCount,
		"game_mode":        cfg.GameMode,
	}).Info("Game started, roles assigned")
	return room, nil
}

// PhaseChange 描述一次阶段转换及其副作用，供传输层决定要广播什么。
type PhaseChange struct {
	Room          *domain.Room
	EnteredVoting bool
	EnteredDebate bool
	LeftDebate    bool
}

// ChangePhase 执行房主请求的阶段转换。
// 不在转换表中的目标阶段或非房主请求都被原子地拒绝。
func (s *GameService) ChangePhase(ctx context.Context, code string, requesterID string, next domain.Phase) (*PhaseChange, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_code": code, "next_phase": next})

	if !next.IsValid() {
		return nil, ErrInvalidTransition
	}

	s.locks.Lock(code)
	defer s.locks.Unlock(code)

	room, err := s.rooms.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.HostID != requesterID {
		return nil, ErrForbidden
	}
	if !room.Phase.CanTransitionTo(next) {
		logCtx.WithField("current_phase", room.Phase).Warn("Rejected phase transition")
		return nil, ErrInvalidTransition
	}

	change := &PhaseChange{}
	prev := room.Phase
	room.Phase = next
	room.LastActivity = s.now().UnixMilli()

	// 离开 DEBATE 就停表；进入 DEBATE（重新）起表；进入 VOTING 清空票箱
	if prev == domain.PhaseDebate && next != domain.PhaseDebate {
		room.DebateTimerActive = false
		change.LeftDebate = true
	}
	switch next {
	case domain.PhaseDebate:
		room.DebateTimeRemaining = s.settings.DebateDuration(len(room.LivingPlayers()))
		room.DebateTimerActive = true
		change.EnteredDebate = true
	case domain.PhaseVoting:
		if err := s.repo.ClearVotes(ctx, code); err != nil {
			logCtx.WithError(err).Error("Failed to clear votes entering VOTING")
			return nil, ErrInternalServer
		}
		change.EnteredVoting = true
	case domain.PhaseLobby:
		// RESULT → LOBBY 等价于重置
		s.resetRoomLocked(room)
		if err := s.repo.ClearVotes(ctx, code); err != nil {
			logCtx.WithError(err).Error("Failed to clear votes on reset")
			return nil, ErrInternalServer
		}
	}

	if err := s.repo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to save room after phase change")
		return nil, ErrInternalServer
	}

	change.Room = room
	logCtx.WithField("previous_phase", prev).Info("Phase changed")
	return change, nil
}

// ResetGame 把 RESULT 阶段的房间带回 LOBBY，开启新一轮。
func (s *GameService) ResetGame(ctx context.Context, code string, requesterID string) (*domain.Room, error) {
	change, err := s.ChangePhase(ctx, code, requesterID, domain.PhaseLobby)
	if err != nil {
		return nil, err
	}
	return change.Room, nil
}

// resetRoomLocked 清除一局游戏的全部痕迹；调用方持有房间锁。
func (s *GameService) resetRoomLocked(room *domain.Room) {
	for i := range room.Players {
		room.Players[i].ResetForLobby()
	}
	room.SecretWord = ""
	room.UndercoverWord = ""
	room.Winner = ""
	room.GameConfig = nil
	room.EliminationData = nil
	room.DebateTimeRemaining = 0
	room.DebateTimerActive = false
	room.RoundStartedAt = 0
}

// VoteOutcome 是一轮投票结算的结果：平票重投，或产生淘汰并给出判定。
type VoteOutcome struct {
	Tie         bool
	Tied        []string
	Elimination *domain.EliminationData
	Verdict     domain.Verdict
}

// CastVoteResult 打包一次投票的全部可广播信息。
// Outcome 在所有存活玩家投完之前为 nil。
type CastVoteResult struct {
	Room    *domain.Room
	Vote    domain.Vote
	State   domain.VotingState
	Outcome *VoteOutcome
}

// CastVote 记录一票；同一玩家后投的覆盖先投的。
// 当记录的票数等于存活人数时结算本轮。
func (s *GameService) CastVote(ctx context.Context, code string, voterID string, targetID string) (*CastVoteResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_code": code, "voter_id": voterID, "target_id": targetID})

	s.locks.Lock(code)
	defer s.locks.Unlock(code)

	room, err := s.rooms.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.Phase != domain.PhaseVoting {
		return nil, fmt.Errorf("%w: not in voting phase", ErrInvalidVote)
	}
	voter := room.FindPlayer(voterID)
	if voter == nil {
		return nil, fmt.Errorf("%w: voter not found", ErrInvalidVote)
	}
	target := room.FindPlayer(targetID)
	if target == nil {
		return nil, fmt.Errorf("%w: target not found", ErrInvalidVote)
	}
	if voter.IsDead {
		return nil, fmt.Errorf("%w: eliminated players cannot vote", ErrInvalidVote)
	}
	if target.IsDead {
		return nil, fmt.Errorf("%w: cannot vote for an eliminated player", ErrInvalidVote)
	}
	if voterID == targetID {
		return nil, fmt.Errorf("%w: cannot vote for yourself", ErrInvalidVote)
	}

	now := s.now().UnixMilli()
	vote := domain.Vote{
		VoterID:       voterID,
		VoterName:     voter.Name,
		VoterInitials: voter.Initials(),
		TargetID:      targetID,
		Timestamp:     now,
	}
	if err := s.repo.SaveVote(ctx, code, &vote); err != nil {
		logCtx.WithError(err).Error("Failed to save vote")
		return nil, ErrInternalServer
	}
	voter.LastSeen = now
	if err := s.repo.SavePlayer(ctx, code, voter); err != nil {
		logCtx.WithError(err).Error("Failed to refresh voter liveness")
		return nil, ErrInternalServer
	}

	votes, err := s.repo.GetVotes(ctx, code)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load votes")
		return nil, ErrInternalServer
	}
	living := room.LivingPlayers()

	result := &CastVoteResult{
		Room: room,
		Vote: vote,
		State: domain.VotingState{
			Votes:       votes,
			TotalVoters: len(living),
			VoteCount:   len(votes),
		},
	}

	if len(votes) < len(living) {
		logCtx.Debugf("Vote recorded (%d/%d)", len(votes), len(living))
		return result, nil
	}

	outcome, err := s.resolveRoundLocked(ctx, room, votes, living)
	if err != nil {
		return nil, err
	}
	result.Outcome = outcome
	result.Room = room
	return result, nil
}

// resolveRoundLocked 结算一轮投票；调用方持有房间锁。
// 恰好一次淘汰：结算要么判平票（无人淘汰），要么标记唯一受害者。
func (s *GameService) resolveRoundLocked(ctx context.Context, room *domain.Room, votes []domain.Vote, living []domain.Player) (*VoteOutcome, error) {
	code := room.Code
	logCtx := logrus.WithField("room_code", code)

	voteMap := make(map[string]string, len(votes))
	for _, v := range votes {
		voteMap[v.VoterID] = v.TargetID
	}

	var (
		tally domain.TallyResult
		terr  error
	)
	s.rng.do(func(rng *rand.Rand) {
		tally, terr = domain.TallyVotes(voteMap, living, rng)
	})
	if terr != nil {
		logCtx.WithError(terr).Error("Vote tally failed")
		return nil, ErrInternalServer
	}

	// 平票：不淘汰任何人，清空票箱重投
	if tally.IsTie() {
		if err := s.repo.ClearVotes(ctx, code); err != nil {
			logCtx.WithError(err).Error("Failed to clear votes after tie")
			return nil, ErrInternalServer
		}
		logCtx.WithField("tied", tally.Tied).Info("Vote round tied, restarting vote")
		return &VoteOutcome{Tie: true, Tied: tally.Tied}, nil
	}

	victim := room.FindPlayer(tally.VictimID)
	if victim == nil {
		logCtx.WithField("victim_id", tally.VictimID).Error("Tally produced unknown victim")
		return nil, ErrInternalServer
	}

	verdict, err := domain.EvaluateElimination(room.Players, victim.ID)
	if err != nil {
		logCtx.WithError(err).Error("Win evaluation failed")
		return nil, ErrInternalServer
	}

	victim.IsDead = true
	elimination := &domain.EliminationData{
		VictimID:     victim.ID,
		VictimName:   victim.Name,
		VictimRole:   victim.Role,
		VictimAvatar: victim.Avatar,
		VictimColor:  victim.Color,
	}
	room.EliminationData = elimination
	room.LastActivity = s.now().UnixMilli()

	if verdict.ShouldContinue {
		room.Phase = domain.PhaseElimination
	} else {
		room.Phase = domain.PhaseResult
		room.Winner = verdict.Winner
		room.DebateTimerActive = false
	}

	if err := s.repo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to save room after vote resolution")
		return nil, ErrInternalServer
	}
	if err := s.repo.ClearVotes(ctx, code); err != nil {
		logCtx.WithError(err).Error("Failed to clear votes after resolution")
		return nil, ErrInternalServer
	}

	if !verdict.ShouldContinue {
		s.archiveFinishedGame(ctx, room)
	}

	logCtx.WithFields(logrus.Fields{
		"victim_id":       victim.ID,
		"victim_role":     victim.Role,
		"should_continue": verdict.ShouldContinue,
		"winner":          verdict.Winner,
	}).Info("Vote round resolved")
	return &VoteOutcome{Elimination: elimination, Verdict: verdict}, nil
}

// AddDebateTime 给正在进行的辩论倒计时追加时间（只加不重置）。
func (s *GameService) AddDebateTime(ctx context.Context, code string, requesterID string, seconds int) (*domain.Room, error) {
	if seconds <= 0 {
		return nil, fmt.Errorf("%w: added time must be positive", ErrInvalidConfiguration)
	}

	s.locks.Lock(code)
	defer s.locks.Unlock(code)

	room, err := s.rooms.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.HostID != requesterID {
		return nil, ErrForbidden
	}
	if room.Phase != domain.PhaseDebate || !room.DebateTimerActive {
		return nil, ErrInvalidTransition
	}

	room.DebateTimeRemaining += seconds
	room.LastActivity = s.now().UnixMilli()
	if err := s.repo.SaveRoom(ctx, room); err != nil {
		logrus.WithField("room_code", code).WithError(err).Error("Failed to save room after adding debate time")
		return nil, ErrInternalServer
	}
	return room, nil
}

// archiveFinishedGame 把终局结果交给后台任务持久化。失败只记日志，不影响对局。
func (s *GameService) archiveFinishedGame(ctx context.Context, room *domain.Room) {
	if s.scheduler == nil {
		return
	}
	eliminated := 0
	for _, p := range room.Players {
		if p.IsDead {
			eliminated++
		}
	}
	mode := ""
	if room.GameConfig != nil {
		mode = room.GameConfig.GameMode
	}
	record := &domain.GameRecord{
		RoomCode:    room.Code,
		Winner:      string(room.Winner),
		SecretWord:  room.SecretWord,
		PlayerCount: len(room.Players),
		Eliminated:  eliminated,
		GameMode:    mode,
		StartedAt:   time.UnixMilli(room.RoundStartedAt),
		FinishedAt:  s.now(),
	}
	if err := s.scheduler.ScheduleGameArchive(ctx, record); err != nil {
		logrus.WithField("room_code", room.Code).WithError(err).Warn("Failed to enqueue game archive task")
	}
}
