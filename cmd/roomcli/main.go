package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"liveclass-backend/internal/auth"
	"liveclass-backend/internal/roomsync"
	"liveclass-backend/internal/wire"
)

// roomcli is a terminal participant for a live session room, mainly used to
// poke at a running relay during development.
//
// Usage:
//
//	roomcli -server http://localhost:8080 -code <session-code> -user 1 -name alice
//
// Commands on stdin:
//
//	/draw x1 y1 x2 y2    draw a whiteboard segment
//	/clear               clear the whiteboard
//	/file <url> <name>   share a file
//	/roster              print the roster
//	/files               print the shared files
//	/quit                leave the room
//
// Anything else is sent as a chat message.
func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "relay base URL")
		code      = flag.String("code", "", "session code")
		userID    = flag.Int64("user", 0, "user id")
		name      = flag.String("name", "", "display name")
		token     = flag.String("token", "", "access token (minted from -secret when empty)")
		secret    = flag.String("secret", "", "JWT secret for self-minting a token")
	)
	flag.Parse()

	if *code == "" || *userID == 0 || *name == "" {
		flag.Usage()
		os.Exit(2)
	}

	accessToken := *token
	if accessToken == "" {
		if *secret == "" {
			log.Fatal("either -token or -secret is required")
		}
		jwtManager := auth.NewJWTManager(*secret, time.Hour)
		var err error
		accessToken, err = jwtManager.GenerateAccessToken(*userID, fmt.Sprintf("user%d@local", *userID), *name)
		if err != nil {
			log.Fatalf("failed to mint token: %v", err)
		}
	}

	if err := joinSession(*serverURL, *code, accessToken); err != nil {
		log.Fatalf("failed to join session: %v", err)
	}

	conn := roomsync.NewConnManager(roomsync.ConnConfig{
		ServerURL:   *serverURL,
		Token:       accessToken,
		RoomCode:    *code,
		UserID:      strconv.FormatInt(*userID, 10),
		DisplayName: *name,
	})

	room := roomsync.NewRoom(roomsync.RoomConfig{
		Code:        *code,
		UserID:      strconv.FormatInt(*userID, 10),
		DisplayName: *name,
		Role:        wire.RoleAttendee,
		Surface:     &logSurface{},
	}, conn, roomsync.NewHTTPDirectory(*serverURL, accessToken))

	room.OnChat(func(entry roomsync.ChatEntry) {
		switch entry.Kind {
		case wire.ChatSystem:
			fmt.Printf("  * %s\n", entry.Content)
		case wire.ChatFile:
			fmt.Printf("[%s] shared file: %s (%s)\n", entry.SenderName, entry.FileName, entry.FileURL)
		default:
			fmt.Printf("[%s] %s\n", entry.SenderName, entry.Content)
		}
	})
	room.OnStatusChange(func(status wire.RoomStatus) {
		fmt.Printf("  * session is now %s\n", status)
	})
	room.OnConnState(func(connected bool) {
		if connected {
			fmt.Println("  * connected")
		} else {
			fmt.Println("  * connection lost, reconnecting...")
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := room.Open(ctx); err != nil {
		log.Fatalf("failed to open room: %v", err)
	}
	fmt.Printf("joined room %s as %s\n", *code, *name)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done := runCommand(room, line); done {
				return
			}
			continue
		}
		if err := room.SendChat(line); err != nil {
			fmt.Printf("  ! send failed: %v\n", err)
		}
	}
	room.Leave()
}

// runCommand executes one slash command; it returns true on /quit.
func runCommand(room *roomsync.Room, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		room.Leave()
		return true

	case "/roster":
		for _, p := range room.Roster() {
			state := "offline"
			if p.IsOnline {
				state = "online"
			}
			fmt.Printf("  %s (%s, %s)\n", p.DisplayName, p.Role, state)
		}

	case "/files":
		for _, f := range room.Files() {
			fmt.Printf("  %s from %s: %s\n", f.FileName, f.SenderName, f.FileURL)
		}

	case "/file":
		if len(fields) != 3 {
			fmt.Println("  usage: /file <url> <name>")
			return false
		}
		if err := room.SendFileShare(fields[1], fields[2]); err != nil {
			fmt.Printf("  ! send failed: %v\n", err)
		}

	case "/draw":
		if len(fields) != 5 {
			fmt.Println("  usage: /draw x1 y1 x2 y2")
			return false
		}
		coords := make([]float64, 4)
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				fmt.Printf("  ! bad coordinate %q\n", f)
				return false
			}
			coords[i] = v
		}
		err := room.DrawStroke(
			wire.Point{X: coords[0], Y: coords[1]},
			wire.Point{X: coords[2], Y: coords[3]},
			roomsync.StrokeStyle{Color: "#000000", Width: 2, Tool: wire.ToolPen},
		)
		if err != nil {
			fmt.Printf("  ! draw failed: %v\n", err)
		}

	case "/clear":
		if err := room.ClearBoard(); err != nil {
			fmt.Printf("  ! clear failed: %v\n", err)
		}

	default:
		fmt.Printf("  ! unknown command %s\n", fields[0])
	}
	return false
}

// joinSession registers this user as a session participant over REST.
func joinSession(serverURL, code, token string) error {
	url := fmt.Sprintf("%s/api/sessions/%s/join", strings.TrimRight(serverURL, "/"), code)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("join returned status %d", resp.StatusCode)
	}
	return nil
}

// logSurface prints whiteboard activity instead of rendering it.
type logSurface struct{}

func (logSurface) StrokePath(points []wire.Point, color string, width float64) {
	fmt.Printf("  ~ stroke %d points, color=%s, width=%.1f\n", len(points), color, width)
}

func (logSurface) Dot(p wire.Point, color string, width float64) {
	fmt.Printf("  ~ dot at (%.1f, %.1f), color=%s, width=%.1f\n", p.X, p.Y, color, width)
}

func (logSurface) Clear() {
	fmt.Println("  ~ board cleared")
}
