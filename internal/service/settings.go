package service

import "time"

// Settings 汇集引擎的可调参数，由 bootstrap 从环境变量装配。
type Settings struct {
	MinPlayers int
	MaxPlayers int

	// RoomTTL 是房间键在外部存储中的过期时间，每次写入刷新。
	RoomTTL time.Duration

	// ReconnectWindow 是断线后座位保留的时长。
	ReconnectWindow time.Duration

	// ConnectedWindow 是"仍视为在线"的活性窗口，用于房主转移候选的挑选。
	// 与 ReconnectWindow 是两个有意不同的常量。
	ConnectedWindow time.Duration

	// 辩论倒计时策略：base + perPlayer×存活人数，封顶 max。
	DebateBase      time.Duration
	DebatePerPlayer time.Duration
	DebateMax       time.Duration
}

// DefaultSettings 返回默认参数。
func DefaultSettings() Settings {
	return Settings{
		MinPlayers:      3,
		MaxPlayers:      10,
		RoomTTL:         2 * time.Hour,
		ReconnectWindow: 5 * time.Minute,
		ConnectedWindow: 60 * time.Second,
		DebateBase:      120 * time.Second,
		DebatePerPlayer: 15 * time.Second,
		DebateMax:       300 * time.Second,
	}
}

// DebateDuration 按存活人数计算辩论初始时长（秒）。
func (s Settings) DebateDuration(livingCount int) int {
	d := s.DebateBase + time.Duration(livingCount)*s.DebatePerPlayer
	if d > s.DebateMax {
		d = s.DebateMax
	}
	return int(d / time.Second)
}
