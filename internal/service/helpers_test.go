package service_test

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/MatiRivarola/impostor-backend/internal/domain"
	"github.com/MatiRivarola/impostor-backend/internal/repository"
	"github.com/MatiRivarola/impostor-backend/internal/service"
)

// memRepo 是 repository.RoomRepository 的内存实现，供流程级测试使用。
// 读写都经过 JSON 深拷贝，模拟真实存储的序列化边界。
type memRepo struct {
	mu    sync.Mutex
	rooms map[string]*domain.Room
	conns map[string]map[string]string     // code → connID → playerID
	votes map[string]map[string]domain.Vote // code → voterID → vote
}

func newMemRepo() *memRepo {
	return &memRepo{
		rooms: make(map[string]*domain.Room),
		conns: make(map[string]map[string]string),
		votes: make(map[string]map[string]domain.Vote),
	}
}

func deepCopyRoom(room *domain.Room) *domain.Room {
	data, err := json.Marshal(room)
	if err != nil {
		panic(err)
	}
	out := &domain.Room{}
	if err := json.Unmarshal(data, out); err != nil {
		panic(err)
	}
	return out
}

func (m *memRepo) GetRoom(ctx context.Context, code string) (*domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[code]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return deepCopyRoom(room), nil
}

func (m *memRepo) SaveRoom(ctx context.Context, room *domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.Code] = deepCopyRoom(room)
	return nil
}

func (m *memRepo) RoomExists(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[code]
	return ok, nil
}

func (m *memRepo) SavePlayer(ctx context.Context, code string, player *domain.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[code]
	if !ok {
		return repository.ErrRoomNotFound
	}
	for i := range room.Players {
		if room.Players[i].ID == player.ID {
			room.Players[i] = *player
			return nil
		}
	}
	room.Players = append(room.Players, *player)
	return nil
}

func (m *memRepo) DeletePlayer(ctx context.Context, code string, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[code]
	if !ok {
		return repository.ErrRoomNotFound
	}
	kept := room.Players[:0]
	for _, p := range room.Players {
		if p.ID != playerID {
			kept = append(kept, p)
		}
	}
	room.Players = kept
	return nil
}

func (m *memRepo) PlayerCount(ctx context.Context, code string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[code]
	if !ok {
		return 0, repository.ErrRoomNotFound
	}
	return len(room.Players), nil
}

func (m *memRepo) BindConn(ctx context.Context, code string, connID string, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[code]; !ok {
		m.conns[code] = make(map[string]string)
	}
	m.conns[code][connID] = playerID
	return nil
}

func (m *memRepo) UnbindConn(ctx context.Context, code string, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conns, ok := m.conns[code]; ok {
		delete(conns, connID)
	}
	return nil
}

func (m *memRepo) FindPlayerByConn(ctx context.Context, code string, connID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conns, ok := m.conns[code]
	if !ok {
		return "", repository.ErrRoomNotFound
	}
	playerID, ok := conns[connID]
	if !ok {
		return "", repository.ErrPlayerNotFound
	}
	return playerID, nil
}

func (m *memRepo) ListActiveRoomCodes(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := make([]string, 0, len(m.rooms))
	for code := range m.rooms {
		codes = append(codes, code)
	}
	return codes, nil
}

func (m *memRepo) SaveVote(ctx context.Context, code string, vote *domain.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.votes[code]; !ok {
		m.votes[code] = make(map[string]domain.Vote)
	}
	m.votes[code][vote.VoterID] = *vote
	return nil
}

func (m *memRepo) GetVotes(ctx context.Context, code string) ([]domain.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Vote, 0, len(m.votes[code]))
	for _, v := range m.votes[code] {
		out = append(out, v)
	}
	return out, nil
}

func (m *memRepo) DeleteVote(ctx context.Context, code string, voterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if votes, ok := m.votes[code]; ok {
		delete(votes, voterID)
	}
	return nil
}

func (m *memRepo) ClearVotes(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.votes, code)
	return nil
}

func (m *memRepo) SetExpiry(ctx context.Context, code string, ttl time.Duration) error {
	return nil
}

func (m *memRepo) DeleteRoom(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, code)
	delete(m.conns, code)
	delete(m.votes, code)
	return nil
}

// fakeScheduler 记录投递的后台任务，不实际执行。
type fakeScheduler struct {
	mu       sync.Mutex
	cleanups []cleanupCall
	archives []domain.GameRecord
}

type cleanupCall struct {
	RoomCode string
	PlayerID string
	Delay    time.Duration
}

func (f *fakeScheduler) SchedulePlayerCleanup(ctx context.Context, roomCode string, playerID string, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups = append(f.cleanups, cleanupCall{roomCode, playerID, delay})
	return nil
}

func (f *fakeScheduler) ScheduleGameArchive(ctx context.Context, record *domain.GameRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archives = append(f.archives, *record)
	return nil
}

// fakeBroadcaster 记录广播的事件名，供计时器测试断言。
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
	states int
}

func (f *fakeBroadcaster) BroadcastRoomState(code string, room *domain.Room) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states++
}

func (f *fakeBroadcaster) BroadcastEvent(code string, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

// testEnv 打包一套接好线的 service 实例。
type testEnv struct {
	repo      *memRepo
	scheduler *fakeScheduler
	locks     *service.RoomLocks
	rooms     *service.RoomService
	games     *service.GameService
	presence  *service.PresenceService
	tokens    *service.TokenService
	settings  service.Settings
}

func newTestEnv(seed int64) *testEnv {
	repo := newMemRepo()
	scheduler := &fakeScheduler{}
	locks := service.NewRoomLocks()
	settings := service.DefaultSettings()
	avatars := service.NewAvatarAllocator(rand.New(rand.NewSource(seed)))

	tokens, err := service.NewTokenService("test-secret", time.Hour)
	if err != nil {
		panic(err)
	}
	// 随机源不跨服务共享，与生产装配保持一致
	rooms := service.NewRoomService(repo, avatars, locks, settings, rand.New(rand.NewSource(seed)))
	games := service.NewGameService(repo, rooms, locks, scheduler, settings, rand.New(rand.NewSource(seed+1)))
	presence := service.NewPresenceService(repo, rooms, locks, tokens, scheduler, settings)

	return &testEnv{
		repo:      repo,
		scheduler: scheduler,
		locks:     locks,
		rooms:     rooms,
		games:     games,
		presence:  presence,
		tokens:    tokens,
		settings:  settings,
	}
}

// setupLobby 创建一个房间并加入 n-1 个额外玩家，返回房间码和按加入顺序的玩家 ID。
func setupLobby(env *testEnv, n int) (string, []string) {
	ctx := context.Background()
	room, host, err := env.rooms.CreateRoom(ctx, "Player1", "conn-1")
	if err != nil {
		panic(err)
	}
	ids := []string{host.ID}
	for i := 2; i <= n; i++ {
		name := "Player" + string(rune('0'+i))
		connID := "conn-" + string(rune('0'+i))
		_, p, err := env.rooms.JoinRoom(ctx, room.Code, name, connID)
		if err != nil {
			panic(err)
		}
		ids = append(ids, p.ID)
	}
	return room.Code, ids
}

// startClassicGame 把 LOBBY 房间推进到 DEBATE 阶段并返回各角色的玩家 ID。
func startClassicGame(env *testEnv, code string, hostID string) (impostors, undercovers, citizens []string) {
	ctx := context.Background()
	cfg := domain.GameConfig{
		Themes:        []string{"argentina"},
		ImpostorCount: 1,
		GameMode:      "classic",
	}
	room, err := env.games.StartGame(ctx, code, hostID, cfg)
	if err != nil {
		panic(err)
	}
	for _, p := range room.Players {
		switch p.Role {
		case domain.RoleImpostor:
			impostors = append(impostors, p.ID)
		case domain.RoleUndercover:
			undercovers = append(undercovers, p.ID)
		default:
			citizens = append(citizens, p.ID)
		}
	}
	if _, err := env.games.ChangePhase(ctx, code, room.HostID, domain.PhaseDebate); err != nil {
		panic(err)
	}
	return impostors, undercovers, citizens
}
