package domain

import "math/rand"

// ValidateGameConfig 校验一局配置对给定人数是否可行。
// 任何一条不满足都在发生任何状态变更之前返回错误。
func ValidateGameConfig(cfg GameConfig, playerCount int) error {
	if playerCount < 2 {
		return ErrNotEnoughPlayers
	}
	if len(cfg.Themes) == 0 {
		return ErrNoThemes
	}
	for _, id := range cfg.Themes {
		if !KnownTheme(id) {
			return ErrUnknownTheme
		}
	}
	if cfg.ImpostorCount < 1 {
		return ErrNoImpostor
	}
	if cfg.ImpostorCount > playerCount/2 {
		return ErrTooManyImpostors
	}
	if cfg.UndercoverCount < 0 {
		return ErrNoCitizenLeft
	}
	if cfg.ImpostorCount+cfg.UndercoverCount >= playerCount {
		return ErrNoCitizenLeft
	}
	valid := false
	for _, m := range ValidGameModes {
		if cfg.GameMode == m {
			valid = true
			break
		}
	}
	if !valid {
		return ErrInvalidGameMode
	}
	return nil
}

// AssignRoles 把玩家随机划分为 impostor / undercover / citizen 并绑定可见词。
// 洗牌后的顺序就是下游的新规范顺序，返回的切片是输入的副本。
func AssignRoles(players []Player, cfg GameConfig, rng *rand.Rand) ([]Player, WordPair, error) {
	if err := ValidateGameConfig(cfg, len(players)); err != nil {
		return nil, WordPair{}, err
	}

	pair := PickWordPair(cfg.Themes, rng)

	shuffled := make([]Player, len(players))
	copy(shuffled, players)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for i := range shuffled {
		shuffled[i].IsDead = false
		switch {
		case i < cfg.ImpostorCount:
			shuffled[i].Role = RoleImpostor
			shuffled[i].Word = ""
		case i < cfg.ImpostorCount+cfg.UndercoverCount:
			shuffled[i].Role = RoleUndercover
			shuffled[i].Word = pair.Undercover
		default:
			shuffled[i].Role = RoleCitizen
			shuffled[i].Word = pair.Normal
		}
	}
	return shuffled, pair, nil
}
