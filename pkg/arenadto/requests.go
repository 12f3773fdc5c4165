package arenadto

import "encoding/json"

// Command is an inbound client frame on the realtime channel.
type Command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	CmdJoinQueue    = "join_queue"
	CmdLeaveQueue   = "leave_queue"
	CmdSubmitAnswer = "submit_answer"
)

type JoinQueueRequest struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	// Tier accepts every historical representation (number, legacy level,
	// nested object); the matchmaker normalizes it once at its boundary.
	Tier json.RawMessage `json:"tier,omitempty"`
}

type SubmitAnswerRequest struct {
	MatchID  string `json:"match_id"`
	Answer   int    `json:"answer"`
	ClientTS int64  `json:"client_ts,omitempty"`
}
