package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"liveclass-backend/internal/auth"
	"liveclass-backend/internal/model"
	"liveclass-backend/internal/presence"
	"liveclass-backend/internal/wire"
)

// SessionHandler 라이브 세션 핸들러
type SessionHandler struct {
	db       *gorm.DB
	hub      *RoomHub
	presence *presence.Manager
}

// NewSessionHandler SessionHandler 생성
func NewSessionHandler(db *gorm.DB, hub *RoomHub, pres *presence.Manager) *SessionHandler {
	return &SessionHandler{db: db, hub: hub, presence: pres}
}

// SessionResponse 세션 응답
type SessionResponse struct {
	ID        int64   `json:"id"`
	HostID    int64   `json:"host_id"`
	Title     string  `json:"title"`
	Code      string  `json:"code"`
	Status    string  `json:"status"`
	Summary   *string `json:"summary,omitempty"`
	StartedAt *string `json:"started_at,omitempty"`
	EndedAt   *string `json:"ended_at,omitempty"`
}

// CreateSessionRequest 세션 생성 요청
type CreateSessionRequest struct {
	Title string `json:"title"`
}

// CompleteSessionRequest 세션 종료 요청
type CompleteSessionRequest struct {
	Summary string `json:"summary"`
}

// CreateSession 세션 생성 (생성자가 호스트)
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "title is required",
		})
	}
	if len(req.Title) > 200 {
		req.Title = req.Title[:200]
	}

	code, err := generateSessionCode()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate session code",
		})
	}

	session := model.Session{
		HostID: claims.UserID,
		Title:  req.Title,
		Code:   code,
		Status: string(model.SessionStatusScheduled),
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		participant := model.SessionParticipant{
			SessionID: session.ID,
			UserID:    claims.UserID,
			Role:      string(model.RoleHost),
		}
		return tx.Create(&participant).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create session",
		})
	}

	log.Printf("[Session] Created: code=%s, host=%d", code, claims.UserID)
	return c.Status(fiber.StatusCreated).JSON(toSessionResponse(&session))
}

// GetSession 세션 조회
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	session, err := h.findByCode(c.Params("code"))
	if err != nil {
		return sessionLookupError(c, err)
	}
	return c.JSON(toSessionResponse(session))
}

// StartSession 세션 시작 (호스트 전용). waiting에서만 시작할 수 있고,
// 시작과 동시에 룸 전체에 active 전환이 방송된다.
func (h *SessionHandler) StartSession(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	session, err := h.findByCode(c.Params("code"))
	if err != nil {
		return sessionLookupError(c, err)
	}
	if session.HostID != claims.UserID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "only the host can start the session",
		})
	}
	if session.Status != string(model.SessionStatusScheduled) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "session is not in a startable state",
		})
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":     string(model.SessionStatusInProgress),
		"started_at": now,
	}
	if err := h.db.Model(session).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to start session",
		})
	}
	session.Status = string(model.SessionStatusInProgress)
	session.StartedAt = &now

	h.hub.BroadcastStatus(session.Code, wire.StatusPayload{
		Status:    wire.StatusActive,
		StartedAt: &now,
	})

	log.Printf("[Session] Started: code=%s", session.Code)
	return c.JSON(toSessionResponse(session))
}

// CompleteSession 세션 종료 (호스트 전용). ended는 터미널 상태라 재시작이
// 없으므로, 이미 종료된 세션에 대한 재요청은 409.
func (h *SessionHandler) CompleteSession(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	session, err := h.findByCode(c.Params("code"))
	if err != nil {
		return sessionLookupError(c, err)
	}
	if session.HostID != claims.UserID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "only the host can end the session",
		})
	}
	if session.Status == string(model.SessionStatusEnded) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "session already ended",
		})
	}

	var req CompleteSessionRequest
	c.BodyParser(&req) // body is optional

	now := time.Now().UTC()
	updates := map[string]any{
		"status":   string(model.SessionStatusEnded),
		"ended_at": now,
	}
	if req.Summary != "" {
		updates["summary"] = req.Summary
	}
	if err := h.db.Model(session).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to end session",
		})
	}
	session.Status = string(model.SessionStatusEnded)
	session.EndedAt = &now
	if req.Summary != "" {
		session.Summary = &req.Summary
	}

	h.hub.BroadcastStatus(session.Code, wire.StatusPayload{
		Status:    wire.StatusEnded,
		StartedAt: session.StartedAt,
		Summary:   req.Summary,
	})

	log.Printf("[Session] Ended: code=%s", session.Code)
	return c.JSON(toSessionResponse(session))
}

// JoinSession 세션 참가 등록. 멱등: 이미 등록된 유저는 기존 등록을 유지한다.
func (h *SessionHandler) JoinSession(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	session, err := h.findByCode(c.Params("code"))
	if err != nil {
		return sessionLookupError(c, err)
	}
	if session.Status == string(model.SessionStatusEnded) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "session has ended",
		})
	}

	var existing model.SessionParticipant
	err = h.db.Where("session_id = ? AND user_id = ?", session.ID, claims.UserID).
		First(&existing).Error
	if err == nil {
		// 재참가: 이전 퇴장 기록만 지운다
		if existing.LeftAt != nil {
			h.db.Model(&existing).Update("left_at", nil)
		}
		return c.JSON(toSessionResponse(session))
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to join session",
		})
	}

	participant := model.SessionParticipant{
		SessionID: session.ID,
		UserID:    claims.UserID,
		Role:      string(model.RoleAttendee),
	}
	if err := h.db.Create(&participant).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to join session",
		})
	}

	log.Printf("[Session] Joined: code=%s, user=%d", session.Code, claims.UserID)
	return c.JSON(toSessionResponse(session))
}

// LeaveSession 세션 퇴장
func (h *SessionHandler) LeaveSession(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	if err := h.leave(c.Params("code"), claims.UserID); err != nil {
		return sessionLookupError(c, err)
	}
	return c.JSON(fiber.Map{"message": "left session"})
}

// LeaveBeacon 페이지 종료 시점 beacon 퇴장. 토큰은 쿼리로 검증됐고,
// 응답을 볼 수 없는 발신자를 위해 본문 없이 204만 돌려준다.
func (h *SessionHandler) LeaveBeacon(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	if err := h.leave(c.Params("code"), claims.UserID); err != nil {
		return sessionLookupError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SessionHandler) leave(code string, userID int64) error {
	session, err := h.findByCode(code)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	h.db.Model(&model.SessionParticipant{}).
		Where("session_id = ? AND user_id = ?", session.ID, userID).
		Update("left_at", now)

	h.hub.NotifyLeave(session.Code, userID)

	log.Printf("[Session] Left: code=%s, user=%d", session.Code, userID)
	return nil
}

// participantInfo 로스터 스냅샷의 참가자 한 명
type participantInfo struct {
	UserID      string               `json:"userId"`
	DisplayName string               `json:"displayName"`
	Role        wire.ParticipantRole `json:"role"`
	IsOnline    bool                 `json:"isOnline"`
}

// GetParticipants 로스터 스냅샷 조회. 접속 상태는 Redis presence에서
// MGET 한 번으로 채워진다.
func (h *SessionHandler) GetParticipants(c *fiber.Ctx) error {
	session, err := h.findByCode(c.Params("code"))
	if err != nil {
		return sessionLookupError(c, err)
	}

	var participants []model.SessionParticipant
	if err := h.db.Where("session_id = ?", session.ID).
		Preload("User").
		Order("id ASC").
		Find(&participants).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get participants",
		})
	}

	userIDs := make([]int64, len(participants))
	for i, p := range participants {
		userIDs[i] = p.UserID
	}

	online := map[int64]bool{}
	if h.presence != nil {
		online, err = h.presence.GetMulti(c.Context(), session.Code, userIDs)
		if err != nil {
			log.Printf("[Session] Presence lookup failed for %s: %v", session.Code, err)
			online = map[int64]bool{}
		}
	}

	infos := make([]participantInfo, len(participants))
	for i, p := range participants {
		infos[i] = participantInfo{
			UserID:      strconv.FormatInt(p.UserID, 10),
			DisplayName: p.User.Nickname,
			Role:        RoleToWire(p.Role),
			IsOnline:    online[p.UserID],
		}
	}

	return c.JSON(fiber.Map{
		"status":       statusToWire(session.Status),
		"startedAt":    session.StartedAt,
		"participants": infos,
	})
}

// findByCode 코드로 세션 조회
func (h *SessionHandler) findByCode(code string) (*model.Session, error) {
	var session model.Session
	if err := h.db.Where("code = ?", code).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// IsParticipant 유저가 세션 참가자로 등록돼 있는지 확인
func (h *SessionHandler) IsParticipant(code string, userID int64) (bool, string) {
	session, err := h.findByCode(code)
	if err != nil {
		return false, ""
	}
	var participant model.SessionParticipant
	err = h.db.Where("session_id = ? AND user_id = ?", session.ID, userID).
		First(&participant).Error
	if err != nil {
		return false, ""
	}
	return true, participant.Role
}

func sessionLookupError(c *fiber.Ctx, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "session not found",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "failed to load session",
	})
}

func toSessionResponse(s *model.Session) SessionResponse {
	resp := SessionResponse{
		ID:      s.ID,
		HostID:  s.HostID,
		Title:   s.Title,
		Code:    s.Code,
		Status:  s.Status,
		Summary: s.Summary,
	}
	if s.StartedAt != nil {
		v := s.StartedAt.UTC().Format(time.RFC3339)
		resp.StartedAt = &v
	}
	if s.EndedAt != nil {
		v := s.EndedAt.UTC().Format(time.RFC3339)
		resp.EndedAt = &v
	}
	return resp
}

// generateSessionCode 추측 불가능한 세션 코드 생성
func generateSessionCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
