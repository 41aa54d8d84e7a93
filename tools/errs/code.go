package errs

// Status codes carried in every response envelope. 0 is success; the bands
// group protocol (100xx), auth (101xx), session (102xx), room (103xx) and
// channel (104xx) failures.
const (
	Success   = 0
	Unknown   = 1
	Forbidden = 2

	WrongBody       = 10001
	InvalidParams   = 10002
	Timeout         = 10003
	MethodNotFound  = 10004
	TooManyRequests = 10005

	Unauthenticated = 10101
	AuthFailed      = 10102
	TokenRevoked    = 10103

	AlreadyAuthenticated = 10201

	RoomNotFound  = 10301
	RoomFull      = 10302
	WrongPassword = 10303

	ChannelNotFound = 10401
)

var (
	ErrUnknown   = NewCodeError(Unknown, "unknown error")
	ErrForbidden = NewCodeError(Forbidden, "forbidden")

	ErrWrongBody       = NewCodeError(WrongBody, "wrong body")
	ErrInvalidParams   = NewCodeError(InvalidParams, "invalid params")
	ErrTimeout         = NewCodeError(Timeout, "timeout")
	ErrMethodNotFound  = NewCodeError(MethodNotFound, "method not found")
	ErrTooManyRequests = NewCodeError(TooManyRequests, "too many requests")

	ErrUnauthenticated = NewCodeError(Unauthenticated, "unauthenticated")
	ErrAuthFailed      = NewCodeError(AuthFailed, "auth failed")
	ErrTokenRevoked    = NewCodeError(TokenRevoked, "token revoked")

	ErrAlreadyAuthenticated = NewCodeError(AlreadyAuthenticated, "already authenticated")

	ErrRoomNotFound  = NewCodeError(RoomNotFound, "room not found")
	ErrRoomFull      = NewCodeError(RoomFull, "room is full")
	ErrWrongPassword = NewCodeError(WrongPassword, "wrong password")

	ErrChannelNotFound = NewCodeError(ChannelNotFound, "channel not found")
)
