package domain

import (
	"math/rand"
	"sort"
)

// TallyResult 是一轮投票结算的结果。
// 要么给出唯一的 VictimID，要么 Tied 非空表示平票（不淘汰任何人，重新投票）。
type TallyResult struct {
	VictimID   string
	Tied       []string
	VoteCounts map[string]int
}

// IsTie 表示本轮以平票收场。
func (t TallyResult) IsTie() bool {
	return len(t.Tied) > 0
}

// TallyVotes 结算一轮投票。votes 为 voterID → targetID。
// 严格多数者成为 victim；两个及以上并列最高则判为平票；
// 完全没有票时在存活玩家中均匀随机抽取（平票绝不允许悄悄退化为随机淘汰）。
func TallyVotes(votes map[string]string, living []Player, rng *rand.Rand) (TallyResult, error) {
	counts := make(map[string]int, len(votes))
	for _, targetID := range votes {
		counts[targetID]++
	}

	if len(counts) == 0 {
		if len(living) == 0 {
			return TallyResult{}, ErrNoLivingPlayers
		}
		return TallyResult{
			VictimID:   living[rng.Intn(len(living))].ID,
			VoteCounts: counts,
		}, nil
	}

	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}

	top := make([]string, 0, 2)
	for id, c := range counts {
		if c == max {
			top = append(top, id)
		}
	}

	if len(top) > 1 {
		// 排序让平票报告与投票插入顺序无关
		sort.Strings(top)
		return TallyResult{Tied: top, VoteCounts: counts}, nil
	}
	return TallyResult{VictimID: top[0], VoteCounts: counts}, nil
}
