package service

import "errors"

// 业务错误。动作边界在这里原子地失败：拒绝原因只回给发起者，
// 其他参与者的状态不受影响。
var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrPlayerNotFound       = errors.New("player not found")
	ErrForbidden            = errors.New("only the host may perform this action")
	ErrInvalidTransition    = errors.New("phase transition not allowed")
	ErrInvalidConfiguration = errors.New("invalid game configuration")
	ErrInvalidVote          = errors.New("invalid vote")
	ErrInvalidName          = errors.New("invalid player name")
	ErrInvalidRoomCode      = errors.New("invalid room code")
	ErrNameTaken            = errors.New("name already in use in this room")
	ErrRoomFull             = errors.New("room is full")
	ErrGameInProgress       = errors.New("game already in progress")
	ErrCodeExhausted        = errors.New("could not generate a unique room code")
	ErrReconnectExpired     = errors.New("reconnection window expired")
	ErrInvalidToken         = errors.New("invalid session token")
	ErrInternalServer       = errors.New("internal server error")
)
