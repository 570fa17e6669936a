package hub

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MatiRivarola/impostor-backend/internal/domain"
	"github.com/MatiRivarola/impostor-backend/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string // "register", "unregister", "command"
	Client  *Client
	RawData []byte // 仅用于 command（原始 WebSocket 消息）
}

// Hub 维护活跃客户端集合并把客户端命令分发给 service 层。
// 客户端按房间码组织；每个客户端收到的房间状态都按其视角脱敏。
type Hub struct {
	messageChan chan HubMessage

	// map[roomCode]map[*Client]bool
	rooms   map[string]map[*Client]bool
	roomsMu sync.RWMutex

	roomService     *service.RoomService
	gameService     *service.GameService
	presenceService *service.PresenceService
	tokenService    *service.TokenService
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(roomService *service.RoomService, gameService *service.GameService, presenceService *service.PresenceService, tokenService *service.TokenService) *Hub {
	if roomService == nil {
		panic("RoomService cannot be nil for Hub")
	}
	if gameService == nil {
		panic("GameService cannot be nil for Hub")
	}
	if presenceService == nil {
		panic("PresenceService cannot be nil for Hub")
	}
	if tokenService == nil {
		panic("TokenService cannot be nil for Hub")
	}
	return &Hub{
		messageChan:     make(chan HubMessage, 512),
		rooms:           make(map[string]map[*Client]bool),
		roomService:     roomService,
		gameService:     gameService,
		presenceService: presenceService,
		tokenService:    tokenService,
	}
}

// Run 启动 Hub 的主事件处理循环；应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			log.WithField("conn_id", msg.Client.ConnID()).Debug("Client connected, awaiting room command")
		case "unregister":
			h.unregisterClient(msg.Client)
		case "command":
			// 每条命令独立处理；房间锁保证同房间命令串行
			go h.handleCommand(msg.Client, msg.RawData)
		default:
			log.Warnf("Hub: Received unknown message type: %s", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// QueueMessage 将消息放入 Hub 的处理队列（非阻塞）。
// 返回 true 表示成功入队，false 表示队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// --- Broadcaster 实现 ---

// BroadcastRoomState 向房间内每个客户端投递按其视角脱敏的房间状态。
func (h *Hub) BroadcastRoomState(code string, room *domain.Room) {
	for _, client := range h.clientsIn(code) {
		view := room.SanitizedFor(client.PlayerID())
		h.sendTo(client, EventRoomUpdated, view)
	}
}

// BroadcastEvent 向房间内全部客户端投递同一事件。
func (h *Hub) BroadcastEvent(code string, event string, payload interface{}) {
	msg, err := json.Marshal(ServerMessage{Event: event, Payload: payload})
	if err != nil {
		logrus.WithField("event", event).WithError(err).Error("Failed to marshal broadcast message")
		return
	}
	for _, client := range h.clientsIn(code) {
		h.enqueue(client, msg)
	}
}

// --- 客户端生命周期 ---

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		return
	}
	code := client.RoomCode()
	logCtx := logrus.WithFields(logrus.Fields{"conn_id": client.ConnID(), "room_code": code})

	h.removeFromRoom(client)

	// 每个客户端只会注销一次（由 ReadPump 的 defer 保证），直接关闭即可；
	// WritePump 读完剩余缓冲后随通道关闭退出
	h.roomsMu.Lock()
	close(client.send)
	h.roomsMu.Unlock()

	if code == "" {
		logCtx.Debug("Unbound client disconnected")
		return
	}

	ctx := context.Background()
	result, err := h.presenceService.HandleDisconnect(ctx, code, client.ConnID())
	if err != nil {
		if !errors.Is(err, service.ErrPlayerNotFound) && !errors.Is(err, service.ErrRoomNotFound) {
			logCtx.WithError(err).Error("Failed to handle disconnect")
		}
		return
	}

	h.BroadcastEvent(code, EventDisconnected, map[string]interface{}{
		"playerId": result.PlayerID,
	})
	if result.NewHostID != "" {
		h.BroadcastEvent(code, EventHostChanged, map[string]interface{}{
			"newHostId": result.NewHostID,
		})
	}
	h.BroadcastRoomState(code, result.Room)
	logCtx.WithField("player_id", result.PlayerID).Info("Client unregistered from Hub")
}

// --- 命令分发 ---

func (h *Hub) handleCommand(client *Client, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.sendError(client, "BAD_REQUEST", "malformed message")
		return
	}

	ctx := context.Background()
	logCtx := logrus.WithFields(logrus.Fields{
		"conn_id": client.ConnID(),
		"event":   msg.Event,
	})
	logCtx.Debug("Dispatching client command")

	var err error
	switch msg.Event {
	case EventCreateRoom:
		err = h.handleCreateRoom(ctx, client, msg.Payload)
	case EventJoinRoom:
		err = h.handleJoinRoom(ctx, client, msg.Payload)
	case EventReconnect:
		err = h.handleReconnect(ctx, client, msg.Payload)
	case EventLeaveRoom:
		err = h.handleLeaveRoom(ctx, client)
	case EventKickPlayer:
		err = h.handleKickPlayer(ctx, client, msg.Payload)
	case EventStartGame:
		err = h.handleStartGame(ctx, client, msg.Payload)
	case EventChangePhase:
		err = h.handleChangePhase(ctx, client, msg.Payload)
	case EventCastVote:
		err = h.handleCastVote(ctx, client, msg.Payload)
	case EventAddDebateTime:
		err = h.handleAddDebateTime(ctx, client, msg.Payload)
	case EventResetGame:
		err = h.handleResetGame(ctx, client)
	default:
		h.sendError(client, "UNKNOWN_EVENT", "unknown event: "+msg.Event)
		return
	}

	if err != nil {
		logCtx.WithError(err).Warn("Client command failed")
		h.sendError(client, errorCode(err), err.Error())
	}
}

func (h *Hub) handleCreateRoom(ctx context.Context, client *Client, raw json.RawMessage) error {
	var p createRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return service.ErrInvalidName
	}

	room, player, err := h.roomService.CreateRoom(ctx, p.Name, client.ConnID())
	if err != nil {
		return err
	}
	token, err := h.tokenService.Issue(room.Code, player.ID)
	if err != nil {
		return service.ErrInternalServer
	}

	client.bind(room.Code, player.ID)
	h.addToRoom(client)

	h.sendTo(client, EventRoomCreated, map[string]interface{}{
		"room":     room.SanitizedFor(player.ID),
		"playerId": player.ID,
		"token":    token,
	})
	return nil
}

func (h *Hub) handleJoinRoom(ctx context.Context, client *Client, raw json.RawMessage) error {
	var p joinRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return service.ErrInvalidRoomCode
	}
	code := strings.ToUpper(strings.TrimSpace(p.Code))

	room, player, err := h.roomService.JoinRoom(ctx, code, p.Name, client.ConnID())
	if err != nil {
		return err
	}
	token, err := h.tokenService.Issue(room.Code, player.ID)
	if err != nil {
		return service.ErrInternalServer
	}

	client.bind(room.Code, player.ID)
	h.addToRoom(client)

	h.sendTo(client, EventRoomJoined, map[string]interface{}{
		"room":     room.SanitizedFor(player.ID),
		"playerId": player.ID,
		"token":    token,
	})
	h.BroadcastEvent(code, EventPlayerJoined, map[string]interface{}{
		"playerId": player.ID,
		"name":     player.Name,
		"avatar":   player.Avatar,
		"color":    player.Color,
	})
	h.BroadcastRoomState(code, room)
	return nil
}

func (h *Hub) handleReconnect(ctx context.Context, client *Client, raw json.RawMessage) error {
	var p reconnectPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return service.ErrInvalidToken
	}

	room, player, err := h.presenceService.Reconnect(ctx, p.Token, client.ConnID())
	if err != nil {
		return err
	}

	client.bind(room.Code, player.ID)
	h.addToRoom(client)

	// 完整状态只发给重连者本人；其他人收到轻量通知即可
	h.sendTo(client, EventReconnected, map[string]interface{}{
		"room":     room.SanitizedFor(player.ID),
		"playerId": player.ID,
	})
	h.BroadcastEvent(room.Code, EventPlayerReconnected, map[string]interface{}{
		"playerId": player.ID,
		"name":     player.Name,
	})
	return nil
}

func (h *Hub) handleLeaveRoom(ctx context.Context, client *Client) error {
	code, playerID := client.RoomCode(), client.PlayerID()
	if code == "" {
		return service.ErrRoomNotFound
	}

	result, err := h.roomService.Leave(ctx, code, playerID)
	if err != nil {
		return err
	}

	h.removeFromRoom(client)
	client.unbind()

	if result.RoomDestroyed {
		return nil
	}
	h.BroadcastEvent(code, EventPlayerLeft, map[string]interface{}{
		"playerId": playerID,
	})
	if result.NewHostID != "" {
		h.BroadcastEvent(code, EventHostChanged, map[string]interface{}{
			"newHostId": result.NewHostID,
		})
	}
	h.BroadcastRoomState(code, result.Room)
	return nil
}

func (h *Hub) handleKickPlayer(ctx context.Context, client *Client, raw json.RawMessage) error {
	var p kickPlayerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return service.ErrPlayerNotFound
	}
	code := client.RoomCode()
	if code == "" {
		return service.ErrRoomNotFound
	}

	result, err := h.roomService.Kick(ctx, code, client.PlayerID(), p.PlayerID)
	if err != nil {
		return err
	}

	// 通知被踢者并断开其连接
	if target := h.findClient(code, p.PlayerID); target != nil {
		h.sendTo(target, EventPlayerKicked, map[string]interface{}{
			"roomCode": code,
		})
		h.removeFromRoom(target)
		target.unbind()
		target.CloseConn()
	}

	if result.RoomDestroyed {
		return nil
	}
	h.BroadcastEvent(code, EventPlayerLeft, map[string]interface{}{
		"playerId": p.PlayerID,
		"kicked":   true,
	})
	h.BroadcastRoomState(code, result.Room)
	return nil
}

func (h *Hub) handleStartGame(ctx context.Context, client *Client, raw json.RawMessage) error {
	var p startGamePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return service.ErrInvalidConfiguration
	}
	code := client.RoomCode()
	if code == "" {
		return service.ErrRoomNotFound
	}

	cfg := domain.GameConfig{
		Themes:          p.Themes,
		ImpostorCount:   p.ImpostorCount,
		UndercoverCount: p.UndercoverCount,
		GameMode:        p.GameMode,
	}
	room, err := h.gameService.StartGame(ctx, code, client.PlayerID(), cfg)
	if err != nil {
		return err
	}

	h.BroadcastEvent(code, EventPhaseChanged, map[string]interface{}{
		"phase": room.Phase,
	})
	// 角色和词语通过按视角脱敏的房间状态送达
	h.BroadcastRoomState(code, room)
	return nil
}

func (h *Hub) handleChangePhase(ctx context.Context, client *Client, raw json.RawMessage) error {
	var p changePhasePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return service.ErrInvalidTransition
	}
	code := client.RoomCode()
	if code == "" {
		return service.ErrRoomNotFound
	}

	change, err := h.gameService.ChangePhase(ctx, code, client.PlayerID(), domain.Phase(p.Phase))
	if err != nil {
		return err
	}
	room := change.Room

	h.BroadcastEvent(code, EventPhaseChanged, map[string]interface{}{
		"phase": room.Phase,
	})
	if change.EnteredVoting {
		h.BroadcastEvent(code, EventVotingState, domain.VotingState{
			Votes:       []domain.Vote{},
			TotalVoters: len(room.LivingPlayers()),
			VoteCount:   0,
		})
	}
	if change.EnteredDebate {
		h.BroadcastEvent(code, EventTimerUpdate, map[string]interface{}{
			"timeRemaining": room.DebateTimeRemaining,
		})
	}
	h.BroadcastRoomState(code, room)
	return nil
}

func (h *Hub) handleCastVote(ctx context.Context, client *Client, raw json.RawMessage) error {
	var p castVotePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return service.ErrInvalidVote
	}
	code := client.RoomCode()
	if code == "" {
		return service.ErrRoomNotFound
	}

	result, err := h.gameService.CastVote(ctx, code, client.PlayerID(), p.VotedPlayerID)
	if err != nil {
		return err
	}

	h.BroadcastEvent(code, EventVoteCast, result.Vote)
	h.BroadcastEvent(code, EventVotingState, result.State)

	if result.Outcome == nil {
		return nil
	}
	outcome := result.Outcome

	if outcome.Tie {
		h.BroadcastEvent(code, EventVoteTie, map[string]interface{}{
			"tiedPlayerIds": outcome.Tied,
		})
		h.BroadcastRoomState(code, result.Room)
		return nil
	}

	h.BroadcastEvent(code, EventElimination, map[string]interface{}{
		"elimination":    outcome.Elimination,
		"shouldContinue": outcome.Verdict.ShouldContinue,
	})
	if !outcome.Verdict.ShouldContinue {
		h.BroadcastEvent(code, EventGameOver, map[string]interface{}{
			"winner": outcome.Verdict.Winner,
		})
	}
	h.BroadcastRoomState(code, result.Room)
	return nil
}

func (h *Hub) handleAddDebateTime(ctx context.Context, client *Client, raw json.RawMessage) error {
	var p addDebateTimePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return service.ErrInvalidConfiguration
	}
	code := client.RoomCode()
	if code == "" {
		return service.ErrRoomNotFound
	}

	room, err := h.gameService.AddDebateTime(ctx, code, client.PlayerID(), p.Seconds)
	if err != nil {
		return err
	}
	h.BroadcastEvent(code, EventTimerUpdate, map[string]interface{}{
		"timeRemaining": room.DebateTimeRemaining,
	})
	return nil
}

func (h *Hub) handleResetGame(ctx context.Context, client *Client) error {
	code := client.RoomCode()
	if code == "" {
		return service.ErrRoomNotFound
	}

	room, err := h.gameService.ResetGame(ctx, code, client.PlayerID())
	if err != nil {
		return err
	}
	h.BroadcastEvent(code, EventPhaseChanged, map[string]interface{}{
		"phase": room.Phase,
	})
	h.BroadcastRoomState(code, room)
	return nil
}

// --- 房间成员管理 ---

func (h *Hub) addToRoom(client *Client) {
	code := client.RoomCode()
	if code == "" {
		return
	}
	h.roomsMu.Lock()
	if _, ok := h.rooms[code]; !ok {
		h.rooms[code] = make(map[*Client]bool)
	}
	h.rooms[code][client] = true
	h.roomsMu.Unlock()
}

func (h *Hub) removeFromRoom(client *Client) {
	code := client.RoomCode()
	if code == "" {
		return
	}
	h.roomsMu.Lock()
	if roomClients, ok := h.rooms[code]; ok {
		delete(roomClients, client)
		if len(roomClients) == 0 {
			delete(h.rooms, code)
		}
	}
	h.roomsMu.Unlock()
}

// clientsIn 返回房间当前客户端的快照，避免持锁发送。
func (h *Hub) clientsIn(code string) []*Client {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	roomClients, ok := h.rooms[code]
	if !ok {
		return nil
	}
	out := make([]*Client, 0, len(roomClients))
	for client := range roomClients {
		out = append(out, client)
	}
	return out
}

func (h *Hub) findClient(code string, playerID string) *Client {
	for _, client := range h.clientsIn(code) {
		if client.PlayerID() == playerID {
			return client
		}
	}
	return nil
}

// --- 发送原语 ---

func (h *Hub) sendTo(client *Client, event string, payload interface{}) {
	msg, err := json.Marshal(ServerMessage{Event: event, Payload: payload})
	if err != nil {
		logrus.WithField("event", event).WithError(err).Error("Failed to marshal outbound message")
		return
	}
	h.enqueue(client, msg)
}

func (h *Hub) enqueue(client *Client, msg []byte) {
	select {
	case client.send <- msg:
	default:
		// 慢客户端：丢弃本条消息，由其 pump 或心跳超时负责善后
		logrus.WithField("conn_id", client.ConnID()).Warn("Client send channel full, message dropped")
	}
}

func (h *Hub) sendError(client *Client, code string, message string) {
	h.sendTo(client, EventError, errorPayload{Code: code, Message: message})
}

// errorCode 把业务错误映射为客户端可识别的错误码。
func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		return "ROOM_NOT_FOUND"
	case errors.Is(err, service.ErrPlayerNotFound):
		return "PLAYER_NOT_FOUND"
	case errors.Is(err, service.ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, service.ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, service.ErrInvalidConfiguration):
		return "INVALID_CONFIGURATION"
	case errors.Is(err, service.ErrInvalidVote):
		return "INVALID_VOTE"
	case errors.Is(err, service.ErrInvalidName):
		return "INVALID_NAME"
	case errors.Is(err, service.ErrInvalidRoomCode):
		return "INVALID_ROOM_CODE"
	case errors.Is(err, service.ErrNameTaken):
		return "NAME_TAKEN"
	case errors.Is(err, service.ErrRoomFull):
		return "ROOM_FULL"
	case errors.Is(err, service.ErrGameInProgress):
		return "GAME_IN_PROGRESS"
	case errors.Is(err, service.ErrCodeExhausted):
		return "CODE_EXHAUSTED"
	case errors.Is(err, service.ErrReconnectExpired):
		return "RECONNECT_EXPIRED"
	case errors.Is(err, service.ErrInvalidToken):
		return "INVALID_TOKEN"
	default:
		return "INTERNAL_ERROR"
	}
}
