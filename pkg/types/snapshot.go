package types

type PlayerView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Animal      string `json:"animal"`
	Connected   bool   `json:"connected"`
	Score       int    `json:"score"`
	HasAnswered bool   `json:"hasAnsweredCurrentQuestion"`
	Ready       bool   `json:"ready"`
}

// QuestionView never carries the correct answer; it is only sent with show-answer.
type QuestionView struct {
	Text    string            `json:"text"`
	Options map[string]string `json:"options"`
}

type SettingsView struct {
	QuestionCount          int  `json:"questionCount"`
	TimePerQuestionSeconds int  `json:"timePerQuestionSeconds"`
	MaxPlayers             int  `json:"maxPlayers,omitempty"`
	PointsPerCorrect       int  `json:"pointsPerCorrect"`
	SpeedBonus             int  `json:"speedBonus,omitempty"`
	AutoReveal             bool `json:"autoReveal,omitempty"`
}

type LeaderboardEntry struct {
	PlayerID  string `json:"playerId"`
	Name      string `json:"name"`
	Animal    string `json:"animal"`
	Score     int    `json:"score"`
	Rank      int    `json:"rank"`
	Connected bool   `json:"connected"`
}

type TeamEntry struct {
	Team    string   `json:"team"`
	Score   int      `json:"score"`
	Members []string `json:"members"`
	Rank    int      `json:"rank"`
}

type Leaderboard struct {
	Mode       string             `json:"mode"`
	Individual []LeaderboardEntry `json:"individual"`
	Teams      []TeamEntry        `json:"teams,omitempty"`
}

type Authenticated struct {
	Role     string `json:"role"`
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId,omitempty"`
}

type GameCreated struct {
	GameID   string       `json:"gameId"`
	Code     string       `json:"code"`
	Mode     string       `json:"mode"`
	Settings SettingsView `json:"settings"`
}

// PlayersSync is the full snapshot a client receives when it (re)attaches.
type PlayersSync struct {
	Players        []PlayerView  `json:"players"`
	Phase          string        `json:"phase"`
	QuestionNumber int           `json:"questionNumber,omitempty"`
	TotalQuestions int           `json:"totalQuestions"`
	TimeRemaining  int           `json:"timeRemaining,omitempty"`
	Question       *QuestionView `json:"question,omitempty"`
	Leaderboard    *Leaderboard  `json:"leaderboard,omitempty"`
}

type PlayerJoined struct {
	Player       PlayerView `json:"player"`
	TotalPlayers int        `json:"totalPlayers"`
}

type PlayerReconnected struct {
	PlayerID string `json:"playerId"`
}

type PlayerUpdated struct {
	PlayerID string `json:"playerId"`
	Animal   string `json:"animal"`
}

type PlayerDisconnected struct {
	PlayerID string `json:"playerId"`
}

type PlayerRemoved struct {
	PlayerID     string `json:"playerId"`
	TotalPlayers int    `json:"totalPlayers"`
}

type PlayerReady struct {
	PlayerID   string `json:"playerId"`
	ReadyCount int    `json:"readyCount"`
}

type PlayerAnswered struct {
	PlayerID      string `json:"playerId"`
	AnsweredCount int    `json:"answeredCount"`
}

type GameStarted struct {
	FirstQuestion  QuestionView `json:"firstQuestion"`
	QuestionNumber int          `json:"questionNumber"`
	TotalQuestions int          `json:"totalQuestions"`
	TimeRemaining  int          `json:"timeRemaining"`
}

type NextQuestion struct {
	Question       QuestionView `json:"question"`
	QuestionNumber int          `json:"questionNumber"`
	TotalQuestions int          `json:"totalQuestions"`
	TimeRemaining  int          `json:"timeRemaining"`
}

type TimerUpdate struct {
	TimeRemaining int `json:"timeRemaining"`
}

type ShowAnswer struct {
	CorrectAnswer  string      `json:"correctAnswer"`
	QuestionNumber int         `json:"questionNumber"`
	Leaderboard    Leaderboard `json:"leaderboard"`
}

type GameEnded struct {
	FinalLeaderboard Leaderboard `json:"finalLeaderboard"`
}
