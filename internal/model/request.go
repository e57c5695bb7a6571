package model

// CreateQuizRequest is the payload for creating or replacing a quiz.
// Content-level rules are enforced by ValidateQuiz after binding.
type CreateQuizRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description *string    `json:"description"`
	Questions   []Question `json:"questions" binding:"required"`
}

// CreateSessionRequest opens a live session over a published quiz.
type CreateSessionRequest struct {
	QuizID   int64  `json:"quiz_id" binding:"required"`
	GameMode string `json:"game_mode" binding:"required,game_mode"`
}
