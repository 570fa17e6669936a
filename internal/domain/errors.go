package domain

import "errors"

// 游戏规则层面的错误，由上层 service 映射为对外的业务错误。
var (
	ErrNotEnoughPlayers  = errors.New("at least 2 players are required")
	ErrTooManyImpostors  = errors.New("impostor count must not exceed half the players")
	ErrNoCitizenLeft     = errors.New("at least one citizen must remain")
	ErrNoImpostor        = errors.New("at least one impostor is required")
	ErrInvalidGameMode   = errors.New("unknown game mode")
	ErrNoThemes          = errors.New("at least one theme must be selected")
	ErrUnknownTheme      = errors.New("unknown theme")
	ErrVictimNotFound    = errors.New("victim not found among players")
	ErrNoLivingPlayers   = errors.New("no living players to choose from")
)
