package service

import (
	"math/rand"
	"sync"
)

// AvatarEmojis 是头像表情池。
var AvatarEmojis = []string{
	"🐶", "🐱", "🐭", "🐹", "🐰", "🦊", "🐻", "🐼",
	"🐨", "🐯", "🦁", "🐮", "🐷", "🐸", "🐵", "🐔",
	"🐧", "🐦", "🐤", "🦆", "🦅", "🦉", "🦇", "🐺",
	"🐗", "🐴", "🦄", "🐝", "🐛", "🦋", "🐌", "🐞",
}

// AvatarColors 是头像颜色池。
var AvatarColors = []string{
	"#EF4444", "#F59E0B", "#10B981", "#3B82F6",
	"#8B5CF6", "#EC4899", "#14B8A6", "#F97316",
	"#06B6D4", "#A855F7", "#84CC16", "#F43F5E",
}

type roomAvatars struct {
	usedEmojis map[string]bool
	usedColors map[string]bool
}

// AvatarAllocator 维护每个房间正在使用的 emoji/颜色集合。
//
// 分配在未使用的值中均匀随机抽取；池耗尽后退化为在全池中抽取
// （小池大房间的情况下接受碰撞）。进程级状态，按房间码索引，
// 房间销毁时整体丢弃。
type AvatarAllocator struct {
	mu    sync.Mutex
	rooms map[string]*roomAvatars
	rng   *rand.Rand
}

// NewAvatarAllocator 创建 AvatarAllocator 实例。rng 可注入以便测试。
func NewAvatarAllocator(rng *rand.Rand) *AvatarAllocator {
	if rng == nil {
		panic("rng cannot be nil for AvatarAllocator")
	}
	return &AvatarAllocator{
		rooms: make(map[string]*roomAvatars),
		rng:   rng,
	}
}

// Assign 为房间内的新玩家分配一组 emoji+颜色并登记占用。
func (a *AvatarAllocator) Assign(code string) (emoji string, color string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ra, ok := a.rooms[code]
	if !ok {
		ra = &roomAvatars{usedEmojis: make(map[string]bool), usedColors: make(map[string]bool)}
		a.rooms[code] = ra
	}

	emoji = a.pick(AvatarEmojis, ra.usedEmojis)
	color = a.pick(AvatarColors, ra.usedColors)
	ra.usedEmojis[emoji] = true
	ra.usedColors[color] = true
	return emoji, color
}

// Release 归还一个玩家占用的 emoji+颜色。
func (a *AvatarAllocator) Release(code string, emoji string, color string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ra, ok := a.rooms[code]; ok {
		delete(ra.usedEmojis, emoji)
		delete(ra.usedColors, color)
	}
}

// ClearRoom 在房间销毁时丢弃它的全部占用状态。
func (a *AvatarAllocator) ClearRoom(code string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.rooms, code)
}

// pick 在未占用的值中均匀抽取；全部占用时回退到整个池。
func (a *AvatarAllocator) pick(pool []string, used map[string]bool) string {
	available := make([]string, 0, len(pool))
	for _, v := range pool {
		if !used[v] {
			available = append(available, v)
		}
	}
	if len(available) == 0 {
		return pool[a.rng.Intn(len(pool))]
	}
	return available[a.rng.Intn(len(available))]
}
