package domain

import "strings"

// Winner 表示终局判定的获胜方。
type Winner string

const (
	WinnerCitizens Winner = "citizens"
	WinnerImpostor Winner = "impostor"
)

// GameConfig 是房主在开局前选择的一局配置。
type GameConfig struct {
	Themes          []string `json:"themes"`
	ImpostorCount   int      `json:"impostorCount"`
	UndercoverCount int      `json:"undercoverCount"`
	GameMode        string   `json:"gameMode"`
}

// ValidGameModes 列出允许的游戏模式。
var ValidGameModes = []string{"classic", "chaos", "hardcore"}

// EliminationData 是最近一次被淘汰玩家的公开身份快照，
// 在 ELIMINATION / RESULT 阶段展示给所有客户端。
type EliminationData struct {
	VictimID     string `json:"victimId"`
	VictimName   string `json:"victimName"`
	VictimRole   Role   `json:"victimRole"`
	VictimAvatar string `json:"victimAvatar,omitempty"`
	VictimColor  string `json:"victimColor,omitempty"`
}

// Room 表示一个独立的游戏会话。
// Players 按加入顺序排列；角色分配时的洗牌会产生新的规范顺序。
type Room struct {
	Code                string           `json:"code"`
	HostID              string           `json:"hostId"`
	Phase               Phase            `json:"phase"`
	Players             []Player         `json:"players"`
	SecretWord          string           `json:"secretWord"`
	UndercoverWord      string           `json:"undercoverWord"`
	Winner              Winner           `json:"winner,omitempty"`
	GameConfig          *GameConfig      `json:"gameConfig,omitempty"`
	DebateTimeRemaining int              `json:"debateTimeRemaining"`
	DebateTimerActive   bool             `json:"debateTimerActive"`
	EliminationData     *EliminationData `json:"eliminationData,omitempty"`
	RoundStartedAt      int64            `json:"roundStartedAt,omitempty"`
	CreatedAt           int64            `json:"createdAt"`
	LastActivity        int64            `json:"lastActivity"`
}

// FindPlayer 按 ID 查找玩家，返回指向 Players 切片内元素的指针。
func (r *Room) FindPlayer(id string) *Player {
	for i := range r.Players {
		if r.Players[i].ID == id {
			return &r.Players[i]
		}
	}
	return nil
}

// LivingPlayers 返回未被淘汰的玩家列表。
func (r *Room) LivingPlayers() []Player {
	living := make([]Player, 0, len(r.Players))
	for _, p := range r.Players {
		if !p.IsDead {
			living = append(living, p)
		}
	}
	return living
}

// SanitizedFor 返回从 viewerID 视角脱敏后的房间副本。
// 隐藏角色只有本人可见；已淘汰玩家与 RESULT 阶段的角色是公开信息。
// 其他玩家的词和所有连接引用一律不下发。
func (r *Room) SanitizedFor(viewerID string) *Room {
	out := *r
	out.Players = make([]Player, len(r.Players))
	copy(out.Players, r.Players)
	for i := range out.Players {
		p := &out.Players[i]
		p.ConnID = ""
		if p.ID == viewerID {
			continue
		}
		p.Word = ""
		if !p.IsDead && r.Phase != PhaseResult {
			p.Role = ""
		}
	}
	if out.Phase != PhaseResult {
		// 终局之前房间级的词一律不下发：每个玩家该看到的词在自己的 Word 字段里
		out.SecretWord = ""
		out.UndercoverWord = ""
	}
	return &out
}

// HasName 检查名字是否已被占用（大小写不敏感）。
func (r *Room) HasName(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range r.Players {
		if strings.ToLower(p.Name) == lower {
			return true
		}
	}
	return false
}
