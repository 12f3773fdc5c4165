package arenadto

// Event names pushed over the realtime channel.
const (
	EventQueueUpdate     = "QUEUE_UPDATE"
	EventMatchFound      = "MATCH_FOUND"
	EventMatchStart      = "MATCH_START"
	EventCountdownTick   = "countdown:tick"
	EventQuestionStart   = "QUESTION_START"
	EventQuestionTimeout = "question:timeout"
	EventMatchUpdate     = "MATCH_UPDATE"
	EventGameOver        = "GAME_OVER"
	EventError           = "ERROR"
)

// Envelope wraps every outbound event.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

type QueueUpdatePayload struct {
	Position int `json:"position"`
}

type MatchFoundPayload struct {
	MatchID string        `json:"match_id"`
	Players []PlayerBrief `json:"players"`
}

type PlayerBrief struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Tier int    `json:"tier"`
	Elo  int    `json:"elo"`
}

type MatchStartPayload struct {
	MatchID        string        `json:"match_id"`
	Players        []PlayerBrief `json:"players"`
	TotalQuestions int           `json:"total_questions"`
	Config         MatchConfig   `json:"config"`
}

type MatchConfig struct {
	StartingLives     int `json:"starting_lives"`
	QuestionTimeSec   int `json:"question_time_sec"`
	CountdownSec      int `json:"countdown_sec"`
	BasePoints        int `json:"base_points"`
	SpeedBonusMax     int `json:"speed_bonus_max"`
	WrongAnswerPoints int `json:"wrong_answer_points"`
}

type CountdownTickPayload struct {
	Seconds int `json:"seconds"`
}

// QuestionStartPayload never carries the answer.
type QuestionStartPayload struct {
	QuestionID     string `json:"question_id"`
	QuestionNumber int    `json:"question_number"`
	TotalQuestions int    `json:"total_questions"`
	Question       string `json:"question"`
	Operation      string `json:"operation"`
	MaxTimeSec     int    `json:"max_time_sec"`
}

type QuestionTimeoutPayload struct {
	CorrectAnswer int    `json:"correct_answer"`
	Explanation   string `json:"explanation,omitempty"`
}

type ParticipantState struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Lives    int    `json:"lives"`
	Streak   int    `json:"streak"`
	Answered bool   `json:"answered"`
}

type MatchUpdatePayload struct {
	Players    []ParticipantState `json:"players"`
	LastAction LastAction         `json:"last_action"`
}

type LastAction struct {
	PlayerID string `json:"player_id"`
	Correct  bool   `json:"correct"`
	Points   int    `json:"points"`
	TimeMs   int64  `json:"time_ms"`
}

type GameOverPayload struct {
	Winner      string               `json:"winner,omitempty"`
	Loser       string               `json:"loser,omitempty"`
	IsDraw      bool                 `json:"is_draw"`
	Forfeit     bool                 `json:"forfeit,omitempty"`
	FinalScores []ParticipantState   `json:"final_scores"`
	EloDeltas   map[string]int       `json:"elo_deltas,omitempty"`
	Performance map[string]float64   `json:"performance,omitempty"`
	Recommends  map[string]Recommend `json:"recommends,omitempty"`
	DurationMs  int64                `json:"duration_ms"`
}

// Recommend is the post-match practice pointer for one player. Message is
// filled from the message catalog at the transport edge.
type Recommend struct {
	Severity   string `json:"severity"`
	Operation  string `json:"operation"`
	AccuracyPc int    `json:"accuracy_pc"`
	Message    string `json:"message,omitempty"`
}

type ErrorPayload struct {
	Code        string       `json:"code,omitempty"`
	Message     string       `json:"message"`
	Remediation *Remediation `json:"remediation,omitempty"`
}
