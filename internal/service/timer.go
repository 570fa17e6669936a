package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MatiRivarola/impostor-backend/internal/domain"
	"github.com/MatiRivarola/impostor-backend/internal/repository"
)

// TimerService 驱动所有房间的辩论倒计时：一个全局 1 秒节拍，
// 每拍扫描活跃房间并逐个在临界区内递减。倒计时归零判伪装者获胜。
type TimerService struct {
	repo        repository.RoomRepository
	locks       *RoomLocks
	broadcaster Broadcaster
	scheduler   Scheduler
	interval    time.Duration
	now         func() time.Time
}

// NewTimerService 创建 TimerService 实例。broadcaster 可为 nil（测试）。
func NewTimerService(repo repository.RoomRepository, locks *RoomLocks, broadcaster Broadcaster, scheduler Scheduler) *TimerService {
	if repo == nil {
		panic("RoomRepository cannot be nil for TimerService")
	}
	if locks == nil {
		panic("RoomLocks cannot be nil for TimerService")
	}
	return &TimerService{
		repo:        repo,
		locks:       locks,
		broadcaster: broadcaster,
		scheduler:   scheduler,
		interval:    time.Second,
		now:         time.Now,
	}
}

// Run 启动节拍循环，直到 ctx 取消。单个房间的失败只记日志，不影响其他房间。
func (s *TimerService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	logrus.Info("Debate timer loop started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Debate timer loop stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick 对所有活跃房间执行一次倒计时递减。
func (s *TimerService) Tick(ctx context.Context) {
	codes, err := s.repo.ListActiveRoomCodes(ctx)
	if err != nil {
		logrus.WithError(err).Error("Timer failed to list active rooms")
		return
	}
	for _, code := range codes {
		if err := s.tickRoom(ctx, code); err != nil {
			logrus.WithField("room_code", code).WithError(err).Error("Timer tick failed for room")
		}
	}
}

func (s *TimerService) tickRoom(ctx context.Context, code string) error {
	s.locks.Lock(code)
	defer s.locks.Unlock(code)

	room, err := s.repo.GetRoom(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			// 房间在枚举后被销毁，正常竞态
			return nil
		}
		return err
	}
	if room.Phase != domain.PhaseDebate || !room.DebateTimerActive {
		return nil
	}

	room.DebateTimeRemaining--
	room.LastActivity = s.now().UnixMilli()

	if room.DebateTimeRemaining > 0 {
		if err := s.repo.SaveRoom(ctx, room); err != nil {
			return err
		}
		if s.broadcaster != nil {
			s.broadcaster.BroadcastEvent(code, "timer_update", map[string]interface{}{
				"timeRemaining": room.DebateTimeRemaining,
			})
		}
		return nil
	}

	// 时间耗尽：存活者未能揪出伪装者，伪装者获胜
	room.DebateTimeRemaining = 0
	room.DebateTimerActive = false
	room.Phase = domain.PhaseResult
	room.Winner = domain.WinnerImpostor

	if err := s.repo.SaveRoom(ctx, room); err != nil {
		return err
	}
	if err := s.repo.ClearVotes(ctx, code); err != nil {
		logrus.WithField("room_code", code).WithError(err).Warn("Failed to clear votes on timer expiry")
	}

	logrus.WithField("room_code", code).Info("Debate timer expired, impostor wins")

	if s.broadcaster != nil {
		s.broadcaster.BroadcastEvent(code, "timer_expired", map[string]interface{}{
			"winner": room.Winner,
		})
		s.broadcaster.BroadcastRoomState(code, room)
	}
	if s.scheduler != nil {
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
	return nil
}
