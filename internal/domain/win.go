package domain

// Verdict 是一次淘汰后的胜负判定。
// ShouldContinue 为 true 表示游戏继续（回到 ELIMINATION → DEBATE 循环），
// 否则 Winner 给出终局获胜方。
type Verdict struct {
	ShouldContinue bool
	Winner         Winner
}

// EvaluateElimination 模拟 victim 被淘汰后判断胜负。
// 平票不会调用本函数。
func EvaluateElimination(players []Player, victimID string) (Verdict, error) {
	victim := (*Player)(nil)
	for i := range players {
		if players[i].ID == victimID {
			victim = &players[i]
			break
		}
	}
	if victim == nil {
		return Verdict{}, ErrVictimNotFound
	}

	livingImpostors := 0
	livingOthers := 0
	for _, p := range players {
		if p.IsDead || p.ID == victimID {
			continue
		}
		if p.Role == RoleImpostor {
			livingImpostors++
		} else {
			livingOthers++
		}
	}
	livingTotal := livingImpostors + livingOthers

	if victim.Role == RoleImpostor {
		if livingImpostors == 0 {
			return Verdict{Winner: WinnerCitizens}, nil
		}
		return Verdict{ShouldContinue: true}, nil
	}

	if livingTotal <= 2 {
		return Verdict{Winner: WinnerImpostor}, nil
	}
	if livingImpostors >= livingOthers {
		return Verdict{Winner: WinnerImpostor}, nil
	}
	return Verdict{ShouldContinue: true}, nil
}
