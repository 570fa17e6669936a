package domain

// Phase 表示房间在一局游戏生命周期中所处的阶段。
type Phase string

const (
	PhaseLobby       Phase = "LOBBY"
	PhaseAssignment  Phase = "ASSIGNMENT"
	PhaseDebate      Phase = "DEBATE"
	PhaseVoting      Phase = "VOTING"
	PhaseElimination Phase = "ELIMINATION"
	PhaseResult      Phase = "RESULT"
)

// phaseTransitions 定义了合法的阶段转换表。
// 不在表中的转换一律视为非法，由调用方拒绝。
var phaseTransitions = map[Phase][]Phase{
	PhaseLobby:       {PhaseAssignment},
	PhaseAssignment:  {PhaseDebate},
	PhaseDebate:      {PhaseVoting},
	PhaseVoting:      {PhaseElimination, PhaseResult},
	PhaseElimination: {PhaseDebate, PhaseResult},
	PhaseResult:      {PhaseLobby},
}

// IsValid 检查是否是已知的阶段值。
func (p Phase) IsValid() bool {
	_, ok := phaseTransitions[p]
	return ok
}

// CanTransitionTo 判断从当前阶段转换到 next 是否合法。
func (p Phase) CanTransitionTo(next Phase) bool {
	for _, allowed := range phaseTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}
