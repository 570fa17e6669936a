package domain

// Vote 记录一个存活玩家在本轮投票中的一票。
// 每个投票者至多保留一条记录，后投的覆盖先投的。
type Vote struct {
	VoterID       string `json:"voterId"`
	VoterName     string `json:"voterName"`
	VoterInitials string `json:"voterInitials"`
	TargetID      string `json:"votedPlayerId"`
	Timestamp     int64  `json:"timestamp"`
}

// VotingState 是广播给客户端的投票进度摘要。
type VotingState struct {
	Votes       []Vote `json:"votes"`
	TotalVoters int    `json:"totalVoters"`
	VoteCount   int    `json:"voteCount"`
}
