package service

import "sync"

// RoomLocks 按房间码提供进程内互斥锁。
//
// 每个房间的状态是一致性单元：投票结算、阶段转换、定时器滴答都是对整个
// 房间记录的读-改-写，必须彼此串行；不同房间完全并行。外部存储只是持久
// 化边界，不负责并发控制。
//
// 锁条目创建后不回收：同一房间码在进程生命周期内始终对应同一把锁，
// 房间码被重新签发时也不会出现新旧两把锁并存。条目总量受房间码空间约束。
type RoomLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRoomLocks 创建 RoomLocks 实例。
func NewRoomLocks() *RoomLocks {
	return &RoomLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock 获取指定房间的互斥锁，必要时惰性创建。
func (l *RoomLocks) Lock(code string) {
	l.get(code).Lock()
}

// Unlock 释放指定房间的互斥锁。
func (l *RoomLocks) Unlock(code string) {
	l.get(code).Unlock()
}

func (l *RoomLocks) get(code string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[code]
	if !ok {
		m = &sync.Mutex{}
		l.locks[code] = m
	}
	return m
}
