package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/studybuddy/backend/client"
	"github.com/studybuddy/backend/internal/auth"
	"github.com/studybuddy/backend/internal/database"
	"github.com/studybuddy/backend/internal/gateway"
	"github.com/studybuddy/backend/internal/identity"
	"github.com/studybuddy/backend/internal/rooms"
	"github.com/studybuddy/backend/internal/server"
	"github.com/studybuddy/backend/internal/session"
	"github.com/studybuddy/backend/internal/study"
	"github.com/studybuddy/backend/internal/users"
	"go.uber.org/zap"
)

const waitTimeout = 3 * time.Second

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	idProvider := identity.NewUUIDProvider()
	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("integration-secret"),
		TokenTTL:      time.Hour,
	})
	userService, err := users.NewService(users.ServiceConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("users service: %v", err)
	}
	roomStore, err := rooms.NewStore(rooms.StoreConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("room store: %v", err)
	}
	studyService, err := study.NewService(study.ServiceConfig{Database: db, Rooms: roomStore, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("study service: %v", err)
	}
	registry, err := session.NewRegistry(session.RegistryConfig{Reader: roomStore})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	realtime, err := gateway.New(gateway.Dependencies{Registry: registry, Store: roomStore})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:    issuer,
		Users:     userService,
		Rooms:     roomStore,
		Study:     studyService,
		Gateway:   realtime,
		Database:  db,
		UploadDir: t.TempDir(),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("http handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	t.Cleanup(testServer.Close)
	return testServer
}

func signupUser(t *testing.T, baseURL, email string) (token, userID string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"email":       email,
		"password":    "hunter22",
		"displayName": strings.Split(email, "@")[0],
	})
	response, err := http.Post(baseURL+"/api/auth/signup", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("signup request: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("signup status: got %d", response.StatusCode)
	}
	var decoded struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode signup response: %v", err)
	}
	return decoded.Token, decoded.User.ID
}

func createRoom(t *testing.T, baseURL, token, name string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"name": name})
	request, _ := http.NewRequest(http.MethodPost, baseURL+"/api/rooms", bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+token)
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("create room request: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("create room status: got %d", response.StatusCode)
	}
	var room struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(response.Body).Decode(&room); err != nil {
		t.Fatalf("decode room: %v", err)
	}
	return room.ID
}

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

func TestTwoClientsConvergeOverWebsocket(t *testing.T) {
	testServer := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws"

	aliceToken, aliceID := signupUser(t, testServer.URL, "alice@example.com")
	_, bobID := signupUser(t, testServer.URL, "bob@example.com")
	roomID := createRoom(t, testServer.URL, aliceToken, "Thermodynamics")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice, err := client.Dial(ctx, wsURL, roomID, client.Participant{ID: aliceID, Name: "alice"})
	if err != nil {
		t.Fatalf("alice dial: %v", err)
	}
	defer alice.Close()

	bob, err := client.Dial(ctx, wsURL, roomID, client.Participant{ID: bobID, Name: "bob"})
	if err != nil {
		t.Fatalf("bob dial: %v", err)
	}

	waitFor(t, "both clients in presence", func() bool {
		return len(alice.State().Presence()) == 2 && len(bob.State().Presence()) == 2
	})

	if err := alice.UpdateNotepad("phase diagrams"); err != nil {
		t.Fatalf("alice notepad update: %v", err)
	}
	waitFor(t, "bob to observe alice's notepad edit", func() bool {
		return bob.State().Notepad() == "phase diagrams"
	})
	if alice.State().Notepad() != "phase diagrams" {
		t.Fatalf("alice lost her own edit: %q", alice.State().Notepad())
	}

	if err := bob.SendChat("did you get the notes?"); err != nil {
		t.Fatalf("bob chat: %v", err)
	}
	waitFor(t, "alice to receive bob's message", func() bool {
		chat := alice.State().Chat()
		return len(chat) == 1 && chat[0].Message == "did you get the notes?"
	})
	waitFor(t, "bob's echo to be deduplicated", func() bool {
		return len(bob.State().Chat()) == 1
	})

	if err := alice.JoinVoice(); err != nil {
		t.Fatalf("alice voice join: %v", err)
	}
	waitFor(t, "bob to see alice on voice", func() bool {
		voice := bob.State().VoicePresence()
		return len(voice) == 1 && voice[0].Name == "alice"
	})

	if err := bob.Close(); err != nil {
		t.Fatalf("bob close: %v", err)
	}
	waitFor(t, "alice to see bob leave", func() bool {
		presence := alice.State().Presence()
		return len(presence) == 1 && presence[0].Name == "alice"
	})
}

func TestLateJoinerReceivesNotepadAndHistory(t *testing.T) {
	testServer := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws"

	token, userID := signupUser(t, testServer.URL, "host@example.com")
	_, lateID := signupUser(t, testServer.URL, "late@example.com")
	roomID := createRoom(t, testServer.URL, token, "History replay")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	host, err := client.Dial(ctx, wsURL, roomID, client.Participant{ID: userID, Name: "host"})
	if err != nil {
		t.Fatalf("host dial: %v", err)
	}
	defer host.Close()

	waitFor(t, "host presence", func() bool {
		return len(host.State().Presence()) == 1
	})

	if err := host.UpdateNotepad("chapter four summary"); err != nil {
		t.Fatalf("host notepad update: %v", err)
	}
	if err := host.SendChat("starting at noon"); err != nil {
		t.Fatalf("host chat: %v", err)
	}

	// Chat persistence is asynchronous and the history replay happens once
	// at join, so reconnect until the replay carries the message.
	var late *client.Socket
	deadline := time.Now().Add(waitTimeout)
	for {
		probe, err := client.Dial(ctx, wsURL, roomID, client.Participant{ID: lateID, Name: "late"})
		if err != nil {
			t.Fatalf("late dial: %v", err)
		}
		received := false
		for attempt := 0; attempt < 20; attempt++ {
			if chat := probe.State().Chat(); len(chat) == 1 && chat[0].Message == "starting at noon" {
				received = true
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		if received {
			late = probe
			break
		}
		probe.Close()
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for chat history replay")
		}
	}
	defer late.Close()

	waitFor(t, "late joiner to receive notepad", func() bool {
		return late.State().Notepad() == "chapter four summary"
	})
}
