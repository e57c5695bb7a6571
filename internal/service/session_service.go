package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/horoquiz/horoquiz-backend/internal/config"
	"github.com/horoquiz/horoquiz-backend/internal/model"
	"github.com/horoquiz/horoquiz-backend/internal/repository"
)

// Session service errors.
var (
	ErrQuizNotPublished   = errors.New("quiz is not published")
	ErrInvalidGameMode    = errors.New("unknown game mode")
	ErrSessionNotFinished = errors.New("session has not finished")
)

// roomCodeAlphabet omits 0/O and 1/I so codes read aloud without
// ambiguity.
const (
	roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 6
	roomCodeRetries  = 5
)

// SessionCreated is what a teacher receives back when opening a session.
// QRPayload is the string clients render as a QR code for students to scan.
type SessionCreated struct {
	Session   model.Session `json:"session"`
	JoinURL   string        `json:"join_url"`
	QRPayload string        `json:"qr_payload"`
	HostToken string        `json:"host_token"`
}

// SessionService opens sessions and serves post-session results.
type SessionService struct {
	cfg      *config.Config
	sessions *repository.SessionRepository
	quizzes  *repository.QuizRepository
	auth     *AuthService
	log      zerolog.Logger
}

func NewSessionService(cfg *config.Config, sessions *repository.SessionRepository, quizzes *repository.QuizRepository, auth *AuthService, log zerolog.Logger) *SessionService {
	return &SessionService{
		cfg:      cfg,
		sessions: sessions,
		quizzes:  quizzes,
		auth:     auth,
		log:      log.With().Str("component", "session_service").Logger(),
	}
}

// Create opens a waiting session over a published quiz, minting the room
// code, join token, and host token.
func (s *SessionService) Create(ctx context.Context, teacherID, quizID int64, gameMode model.GameMode) (*SessionCreated, error) {
	if !gameMode.Valid() {
		return nil, ErrInvalidGameMode
	}

	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.TeacherID != teacherID {
		return nil, ErrNotAuthor
	}
	if !quiz.IsPublished {
		return nil, ErrQuizNotPublished
	}

	session := model.Session{
		JoinToken: uuid.New().String(),
		QuizID:    quizID,
		TeacherID: teacherID,
		GameMode:  gameMode,
		Status:    model.SessionWaiting,
	}

	// Room codes collide rarely; regenerate on conflict.
	for attempt := 0; ; attempt++ {
		code, err := generateRoomCode()
		if err != nil {
			return nil, err
		}
		session.RoomCode = code
		err = s.sessions.Create(ctx, &session)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrRoomCodeConflict) || attempt >= roomCodeRetries {
			return nil, err
		}
	}

	hostToken, err := s.auth.GenerateHostToken(teacherID, session.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("session_id", session.ID).
		Str("room_code", session.RoomCode).
		Str("game_mode", string(gameMode)).
		Msg("Session created")

	joinURL := fmt.Sprintf("%s/join/%s?token=%s", s.cfg.JoinBaseURL, session.RoomCode, session.JoinToken)
	return &SessionCreated{
		Session:   session,
		JoinURL:   joinURL,
		QRPayload: joinURL,
		HostToken: hostToken,
	}, nil
}

// Get returns one of the teacher's sessions.
func (s *SessionService) Get(ctx context.Context, sessionID, teacherID int64) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TeacherID != teacherID {
		return nil, ErrNotAuthor
	}
	return session, nil
}

// List returns the teacher's sessions, newest first.
func (s *SessionService) List(ctx context.Context, teacherID int64) ([]model.Session, error) {
	return s.sessions.GetByTeacher(ctx, teacherID)
}

// Results serves the final report. Only finished sessions expose
// results, and only to their owner.
func (s *SessionService) Results(ctx context.Context, sessionID, teacherID int64) (*model.SessionResults, error) {
	session, err := s.Get(ctx, sessionID, teacherID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionFinished {
		return nil, ErrSessionNotFinished
	}
	return s.sessions.Results(ctx, sessionID)
}

func generateRoomCode() (string, error) {
	code := make([]byte, roomCodeLength)
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
