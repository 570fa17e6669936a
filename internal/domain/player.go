package domain

import "strings"

// Role 表示玩家在一局游戏中的秘密角色。
type Role string

const (
	RoleCitizen    Role = "citizen"
	RoleUndercover Role = "undercover"
	RoleImpostor   Role = "impostor"
)

// Player 表示房间中的一个座位。
// ID 在整个会话期间稳定（重连后不变），ConnID 则指向当前的传输层连接。
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	Word     string `json:"word,omitempty"` // impostor 没有词，序列化时省略空值
	IsDead   bool   `json:"isDead"`
	ConnID   string `json:"connId"`
	LastSeen int64  `json:"lastSeen"` // Unix 毫秒时间戳，连接活性始终由它的新旧推断
	Avatar   string `json:"avatar"`
	Color    string `json:"color"`
}

// ResetForLobby 在回到 LOBBY 时清除上一局的角色信息。
func (p *Player) ResetForLobby() {
	p.Role = RoleCitizen
	p.Word = ""
	p.IsDead = false
}

// Initials 返回投票进度展示用的名字缩写（最多两个字符）。
func (p *Player) Initials() string {
	runes := []rune(p.Name)
	if len(runes) > 2 {
		runes = runes[:2]
	}
	return strings.ToUpper(string(runes))
}
