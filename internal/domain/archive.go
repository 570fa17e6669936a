package domain

import "time"

// GameRecord 是一局已结束游戏的持久化归档记录（MySQL）。
// 热状态全部在 Redis 中，这里只留终局之后的统计信息。
type GameRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RoomCode    string    `gorm:"size:8;index" json:"roomCode"`
	Winner      string    `gorm:"size:16" json:"winner"`
	SecretWord  string    `gorm:"size:64" json:"secretWord"`
	PlayerCount int       `json:"playerCount"`
	Eliminated  int       `json:"eliminated"` // 终局时已被淘汰的人数
	GameMode    string    `gorm:"size:16" json:"gameMode"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}
