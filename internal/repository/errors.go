package repository

import "errors"

// 仓库层通用错误，由 service 层映射为业务错误。
var (
	ErrNotFound       = errors.New("record not found")
	ErrRoomNotFound   = errors.New("room not found")
	ErrPlayerNotFound = errors.New("player not found")
)
