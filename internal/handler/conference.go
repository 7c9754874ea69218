package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/livekit/protocol/auth"
	"gorm.io/gorm"

	internalauth "liveclass-backend/internal/auth"
	"liveclass-backend/internal/config"
	"liveclass-backend/internal/model"
)

// ConferenceHandler 세션 음성/영상 회의 토큰 발급
type ConferenceHandler struct {
	cfg *config.Config
	db  *gorm.DB
}

// NewConferenceHandler ConferenceHandler 생성
func NewConferenceHandler(cfg *config.Config, db *gorm.DB) *ConferenceHandler {
	return &ConferenceHandler{cfg: cfg, db: db}
}

// ConferenceTokenRequest 토큰 발급 요청
type ConferenceTokenRequest struct {
	SessionCode string `json:"sessionCode"`
}

// ConferenceTokenResponse 토큰 발급 응답
type ConferenceTokenResponse struct {
	Token string `json:"token"`
}

// GenerateToken creates a LiveKit access token for a session participant.
// Ended sessions never mint new tokens.
func (h *ConferenceHandler) GenerateToken(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*internalauth.Claims)

	var req ConferenceTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.SessionCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "sessionCode is required",
		})
	}

	var session model.Session
	if err := h.db.Where("code = ?", req.SessionCode).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "session not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load session",
		})
	}
	if session.Status == string(model.SessionStatusEnded) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "session has ended",
		})
	}

	at := auth.NewAccessToken(h.cfg.LiveKit.APIKey, h.cfg.LiveKit.APISecret)

	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     "session-" + session.Code,
	}

	at.AddGrant(grant).
		SetIdentity(strconv.FormatInt(claims.UserID, 10)).
		SetName(claims.Nickname).
		SetValidFor(time.Hour * 12)

	token, err := at.ToJWT()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate token",
		})
	}

	return c.JSON(ConferenceTokenResponse{Token: token})
}
