package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry Redis에 저장될 접속 상태 데이터
type Entry struct {
	UserID        int64  `json:"user_id"`
	Nickname      string `json:"nickname"`
	SessionCode   string `json:"session_code"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	ServerID      string `json:"server_id"` // 멀티 서버 확장 대비
}

// Manager 세션 룸 접속 상태 관리자.
// 유저별 TTL 키로 생존을 표시하고, 하트비트가 끊기면 키가 만료되어
// 자동으로 오프라인 처리된다.
type Manager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewManager 생성자
func NewManager(addr, password string, db int, ttl time.Duration) (*Manager, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Manager{client: rdb, ttl: ttl}, nil
}

// Key 생성 유틸
func (m *Manager) key(sessionCode string, userID int64) string {
	return fmt.Sprintf("presence:session:%s:user:%d", sessionCode, userID)
}

// SetOnline 접속 표시 (연결 수립 시)
func (m *Manager) SetOnline(ctx context.Context, sessionCode string, userID int64, nickname, serverID string) error {
	data := Entry{
		UserID:        userID,
		Nickname:      nickname,
		SessionCode:   sessionCode,
		LastHeartbeat: time.Now().Unix(),
		ServerID:      serverID,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return m.client.Set(ctx, m.key(sessionCode, userID), jsonData, m.ttl).Err()
}

// Heartbeat 생존 신고 (TTL 연장)
func (m *Manager) Heartbeat(ctx context.Context, sessionCode string, userID int64) error {
	ok, err := m.client.Expire(ctx, m.key(sessionCode, userID), m.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %d not present in session %s", userID, sessionCode)
	}
	return nil
}

// SetOffline 접속 해제 표시
func (m *Manager) SetOffline(ctx context.Context, sessionCode string, userID int64) error {
	return m.client.Del(ctx, m.key(sessionCode, userID)).Err()
}

// IsOnline 단일 유저 접속 여부 조회
func (m *Manager) IsOnline(ctx context.Context, sessionCode string, userID int64) (bool, error) {
	_, err := m.client.Get(ctx, m.key(sessionCode, userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetMulti 여러 유저 접속 상태 조회 (로스터 조회용)
func (m *Manager) GetMulti(ctx context.Context, sessionCode string, userIDs []int64) (map[int64]bool, error) {
	online := make(map[int64]bool, len(userIDs))
	if len(userIDs) == 0 {
		return online, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = m.key(sessionCode, id)
	}

	// MGET으로 한 번에 조회
	results, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, result := range results {
		online[userIDs[i]] = result != nil
	}

	return online, nil
}

// Ping 헬스체크용 연결 확인
func (m *Manager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close 연결 종료
func (m *Manager) Close() error {
	return m.client.Close()
}
