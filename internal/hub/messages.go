package hub

import "encoding/json"

// ClientMessage 是客户端发来的命令信封。
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage 是服务端推送的事件信封。
type ServerMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// 客户端命令事件名
const (
	EventCreateRoom    = "create_room"
	EventJoinRoom      = "join_room"
	EventReconnect     = "reconnect_player"
	EventLeaveRoom     = "leave_room"
	EventKickPlayer    = "kick_player"
	EventStartGame     = "start_game"
	EventChangePhase   = "change_phase"
	EventCastVote      = "cast_vote"
	EventAddDebateTime = "add_debate_time"
	EventResetGame     = "reset_game"
)

// 服务端推送事件名
const (
	EventRoomCreated       = "room_created"
	EventRoomJoined        = "room_joined"
	EventRoomUpdated       = "room_updated"
	EventPlayerJoined      = "player_joined"
	EventPlayerLeft        = "player_left"
	EventPlayerKicked      = "player_kicked"
	EventHostChanged       = "host_changed"
	EventPhaseChanged      = "phase_changed"
	EventVoteCast          = "vote_cast"
	EventVotingState       = "voting_state"
	EventVoteTie           = "vote_tie"
	EventElimination       = "player_eliminated"
	EventGameOver          = "game_over"
	EventReconnected       = "reconnected"
	EventPlayerReconnected = "player_reconnected"
	EventDisconnected      = "player_disconnected"
	EventTimerUpdate       = "timer_update"
	EventTimerExpired      = "timer_expired"
	EventError             = "error"
)

// createRoomPayload 等是各命令的入参结构。
type createRoomPayload struct {
	Name string `json:"name"`
}

type joinRoomPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type reconnectPayload struct {
	Token string `json:"token"`
}

type kickPlayerPayload struct {
	PlayerID string `json:"playerId"`
}

type startGamePayload struct {
	Themes          []string `json:"themes"`
	ImpostorCount   int      `json:"impostorCount"`
	UndercoverCount int      `json:"undercoverCount"`
	GameMode        string   `json:"gameMode"`
}

type changePhasePayload struct {
	Phase string `json:"phase"`
}

type castVotePayload struct {
	VotedPlayerID string `json:"votedPlayerId"`
}

type addDebateTimePayload struct {
	Seconds int `json:"seconds"`
}

// errorPayload 是 error 事件的载荷。
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
