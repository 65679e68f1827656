package service

import "errors"

// 业务层通用错误，handler 可根据错误类型映射到合适的 HTTP 状态码
// 或 WebSocket error 帧。
var (
	ErrUsernameTaken      = errors.New("username taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRoomNotFound       = errors.New("room not found")
	ErrNotFound           = errors.New("not found")
	ErrNotOwner           = errors.New("not the owner")
	ErrForbidden          = errors.New("forbidden")
	ErrRoomNotDeletable   = errors.New("default rooms are not deletable")
)
