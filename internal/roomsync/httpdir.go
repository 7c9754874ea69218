package roomsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"liveclass-backend/internal/wire"
)

// HTTPDirectory fetches room snapshots from the relay's REST API.
type HTTPDirectory struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPDirectory creates a directory client for the relay at baseURL.
func NewHTTPDirectory(baseURL, token string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// snapshotResponse mirrors the participants endpoint body.
type snapshotResponse struct {
	Status       wire.RoomStatus `json:"status"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	Participants []struct {
		UserID      string               `json:"userId"`
		DisplayName string               `json:"displayName"`
		Role        wire.ParticipantRole `json:"role"`
		IsOnline    bool                 `json:"isOnline"`
	} `json:"participants"`
}

// FetchSnapshot retrieves the current status and roster of one room.
func (d *HTTPDirectory) FetchSnapshot(ctx context.Context, code string) (*SessionSnapshot, error) {
	url := fmt.Sprintf("%s/api/sessions/%s/participants", d.baseURL, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+d.token)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot for %s: %w", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot for %s: status %d", code, resp.StatusCode)
	}

	var body snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode snapshot for %s: %w", code, err)
	}

	snap := &SessionSnapshot{
		Status:    body.Status,
		StartedAt: body.StartedAt,
	}
	for _, p := range body.Participants {
		snap.Participants = append(snap.Participants, Participant{
			ID:          p.UserID,
			DisplayName: p.DisplayName,
			Role:        p.Role,
			IsOnline:    p.IsOnline,
		})
	}
	return snap, nil
}
