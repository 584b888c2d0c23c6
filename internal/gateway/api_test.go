// ABOUTME: Tests for the HTTP API handlers
// ABOUTME: Covers auth, room lifecycle, messaging, and trigger wiring

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/agent"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/auth"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/booking"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/config"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/llm"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/profile"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/room"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/store"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/tools"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/trigger"
)

type gatewayFixture struct {
	gateway  *Gateway
	handler  http.Handler
	runner   *agent.Runner
	planner  *llm.StubPlanner
	verifier *auth.JWTVerifier
	store    *store.SQLiteStore
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := room.NewBroadcaster(nil)
	t.Cleanup(b.Close)
	rooms := room.NewService(st, b, nil)

	coordinator := trigger.NewCoordinator(
		trigger.NewEvaluator(3, trigger.DefaultAliases), nil)

	canned := tools.NewCannedProvider(nil)
	router := tools.NewRouter(tools.RouterConfig{
		Live:        canned,
		Canned:      canned,
		TestMode:    true,
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
	})
	planner := &llm.StubPlanner{}
	runner := agent.NewRunner(agent.RunnerConfig{
		Store:     st,
		Rooms:     rooms,
		Assembler: agent.NewAssembler(st, nil, &llm.StubSummarizer{}, 0, nil),
		Relay:     agent.NewRelay(nil),
		Planner:   planner,
		Router:    router,
		Workflow:  booking.NewWorkflow(router, st, nil, nil),
	})

	verifier := auth.NewJWTVerifier([]byte("test-secret"))
	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"

	profiles := profile.NewService(st, nil, 0, nil)
	g := New(cfg, rooms, coordinator, runner, profiles, verifier, nil)
	return &gatewayFixture{
		gateway:  g,
		handler:  g.Handler(),
		runner:   runner,
		planner:  planner,
		verifier: verifier,
		store:    st,
	}
}

func (f *gatewayFixture) token(t *testing.T, userID, name string) string {
	t.Helper()
	token, err := f.verifier.Generate(userID, name, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *gatewayFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func (f *gatewayFixture) createRoom(t *testing.T, token, name string) RoomResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/rooms", token, CreateRoomRequest{Name: name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[RoomResponse](t, rec)
}

func TestHealthzIsOpen(t *testing.T) {
	f := newGatewayFixture(t)
	rec := f.do(t, http.MethodGet, "/api/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresAuth(t *testing.T) {
	f := newGatewayFixture(t)
	rec := f.do(t, http.MethodGet, "/api/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoomLifecycle(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.token(t, "user-alice", "alice")
	bob := f.token(t, "user-bob", "bob")

	created := f.createRoom(t, alice, "dinner plans")
	require.NotEmpty(t, created.ID)
	require.NotEmpty(t, created.JoinCode)
	assert.Equal(t, "user-alice", created.OwnerID)

	// Bob joins via code.
	rec := f.do(t, http.MethodPost, "/api/rooms/join", bob, JoinRoomRequest{JoinCode: created.JoinCode})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Both see the room in their lists.
	for _, token := range []string{alice, bob} {
		rec = f.do(t, http.MethodGet, "/api/rooms", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[ListRoomsResponse](t, rec)
		require.Len(t, list.Rooms, 1)
		assert.Equal(t, created.ID, list.Rooms[0].ID)
	}

	// Detail includes both members.
	rec = f.do(t, http.MethodGet, "/api/rooms/"+created.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[RoomDetailResponse](t, rec)
	assert.Len(t, detail.Members, 2)

	// Bob cannot delete, Alice can.
	rec = f.do(t, http.MethodDelete, "/api/rooms/"+created.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/rooms/"+created.ID, alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/rooms/"+created.ID, alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJoinUnknownCode(t *testing.T) {
	f := newGatewayFixture(t)
	token := f.token(t, "user-1", "alice")

	rec := f.do(t, http.MethodPost, "/api/rooms/join", token, JoinRoomRequest{JoinCode: "NOSUCH"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNonMemberCannotReadRoom(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.token(t, "user-alice", "alice")
	mallory := f.token(t, "user-mallory", "mallory")

	created := f.createRoom(t, alice, "private")

	rec := f.do(t, http.MethodGet, "/api/rooms/"+created.ID, mallory, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/rooms/"+created.ID+"/messages", mallory, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/rooms/"+created.ID+"/messages", mallory,
		PostMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPublicRoomAutoJoinsOnFirstPost(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.token(t, "user-alice", "alice")
	bob := f.token(t, "user-bob", "bob")

	rec := f.do(t, http.MethodPost, "/api/rooms", alice,
		CreateRoomRequest{Name: "open invite", Public: true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[RoomResponse](t, rec)
	require.True(t, created.Public)

	// Bob never joined; posting joins him.
	rec = f.do(t, http.MethodPost, "/api/rooms/"+created.ID+"/messages", bob,
		PostMessageRequest{Content: "count me in"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/rooms/"+created.ID, bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[RoomDetailResponse](t, rec)
	assert.Len(t, detail.Members, 2)
}

func TestPostAndListMessages(t *testing.T) {
	f := newGatewayFixture(t)
	token := f.token(t, "user-1", "alice")
	created := f.createRoom(t, token, "tacos")

	for i := 1; i <= 2; i++ {
		rec := f.do(t, http.MethodPost, "/api/rooms/"+created.ID+"/messages", token,
			PostMessageRequest{Content: fmt.Sprintf("message %d", i)})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		posted := decode[PostMessageResponse](t, rec)
		assert.Equal(t, int64(i), posted.Message.Seq)
		assert.Empty(t, posted.TurnID)
	}

	rec := f.do(t, http.MethodGet, "/api/rooms/"+created.ID+"/messages", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListMessagesResponse](t, rec)
	require.Len(t, list.Messages, 2)

	// Cursor skips already-seen messages.
	rec = f.do(t, http.MethodGet, "/api/rooms/"+created.ID+"/messages?after_seq=1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[ListMessagesResponse](t, rec)
	require.Len(t, list.Messages, 1)
	assert.Equal(t, "message 2", list.Messages[0].Content)
}

func TestPostEmptyMessageRejected(t *testing.T) {
	f := newGatewayFixture(t)
	token := f.token(t, "user-1", "alice")
	created := f.createRoom(t, token, "tacos")

	rec := f.do(t, http.MethodPost, "/api/rooms/"+created.ID+"/messages", token,
		PostMessageRequest{Content: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMentionTriggersAgentTurn(t *testing.T) {
	f := newGatewayFixture(t)
	token := f.token(t, "user-1", "alice")
	created := f.createRoom(t, token, "tonight")

	rec := f.do(t, http.MethodPost, "/api/rooms/"+created.ID+"/messages", token,
		PostMessageRequest{Content: "@tess where should we go?"})
	require.Equal(t, http.StatusCreated, rec.Code)
	posted := decode[PostMessageResponse](t, rec)
	require.NotEmpty(t, posted.TurnID)

	f.runner.Wait(created.ID)

	// The agent's reply landed in history with the mention stripped from
	// its prompt.
	rec = f.do(t, http.MethodGet, "/api/rooms/"+created.ID+"/messages", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListMessagesResponse](t, rec)
	require.Len(t, list.Messages, 2)
	agentMsg := list.Messages[1]
	assert.Equal(t, store.AgentUserID, agentMsg.SenderID)
	assert.Equal(t, "noted: where should we go?", agentMsg.Content)
}

func TestCadenceTriggersAgentTurn(t *testing.T) {
	f := newGatewayFixture(t)
	token := f.token(t, "user-1", "alice")
	created := f.createRoom(t, token, "tonight")

	var turnID string
	for i := 0; i < 3; i++ {
		rec := f.do(t, http.MethodPost, "/api/rooms/"+created.ID+"/messages", token,
			PostMessageRequest{Content: fmt.Sprintf("idea %d", i)})
		require.Equal(t, http.StatusCreated, rec.Code)
		turnID = decode[PostMessageResponse](t, rec).TurnID
		if i < 2 {
			assert.Empty(t, turnID, "turn must not fire before the cadence boundary")
		}
	}
	assert.NotEmpty(t, turnID, "third consecutive human message fires at cadence 3")
	f.runner.Wait(created.ID)
}

func TestCadenceSurvivesSkippedTurn(t *testing.T) {
	f := newGatewayFixture(t)
	token := f.token(t, "user-1", "alice")
	created := f.createRoom(t, token, "tonight")

	// Occupy the room with a slow explicit turn.
	f.planner.Delay = 300 * time.Millisecond
	rec := f.do(t, http.MethodPost, "/api/rooms/"+created.ID+"/messages", token,
		PostMessageRequest{Content: "kick things off", InvokeAgent: true})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotEmpty(t, decode[PostMessageResponse](t, rec).TurnID)

	// The cadence boundary is reached while the turn is still running, so
	// the start is skipped. The streak must not be consumed by it.
	for i := 0; i < 3; i++ {
		rec = f.do(t, http.MethodPost, "/api/rooms/"+created.ID+"/messages", token,
			PostMessageRequest{Content: fmt.Sprintf("idea %d", i)})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Empty(t, decode[PostMessageResponse](t, rec).TurnID)
	}
	f.runner.Wait(created.ID)

	// With the room free again, the still-armed boundary fires.
	rec = f.do(t, http.MethodPost, "/api/rooms/"+created.ID+"/messages", token,
		PostMessageRequest{Content: "still there?"})
	require.Equal(t, http.StatusCreated, rec.Code)
	next := decode[PostMessageResponse](t, rec)
	require.NotEmpty(t, next.TurnID, "cadence must fire once the room frees up")
	f.runner.Wait(created.ID)
}

func TestSaveAndListPlaces(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.token(t, "user-alice", "alice")
	bob := f.token(t, "user-bob", "bob")

	rec := f.do(t, http.MethodPost, "/api/places", alice, SavePlaceRequest{
		BusinessID: "biz-9", Name: "Nopa", Categories: []string{"californian"}, Price: "$$$",
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/places", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListPlacesResponse](t, rec)
	require.Len(t, list.Places, 1)
	assert.Equal(t, "biz-9", list.Places[0].BusinessID)
	assert.Equal(t, "Nopa", list.Places[0].Name)

	// Collections are per user.
	rec = f.do(t, http.MethodGet, "/api/places", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[ListPlacesResponse](t, rec).Places)

	rec = f.do(t, http.MethodPost, "/api/places", alice, SavePlaceRequest{Name: "no id"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReservationSelectWithoutPendingConflicts(t *testing.T) {
	f := newGatewayFixture(t)
	token := f.token(t, "user-1", "alice")
	created := f.createRoom(t, token, "dinner")

	rec := f.do(t, http.MethodPost, "/api/rooms/"+created.ID+"/reservations/select", token,
		SelectSlotRequest{SlotIndex: 0})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReservationFlowOverHTTP(t *testing.T) {
	f := newGatewayFixture(t)
	token := f.token(t, "user-1", "alice")
	created := f.createRoom(t, token, "dinner")

	// Drive the runner to a pending slot selection through a booking plan.
	f.planner.Plans = []*llm.Plan{{
		Action: llm.ActionBook,
		Booking: &llm.BookingIntent{
			BusinessID: "biz-1", Date: "2026-09-04", Time: "19:00", Covers: 2,
		},
	}}
	rec0 := f.do(t, http.MethodPost, "/api/rooms/"+created.ID+"/messages", token,
		PostMessageRequest{Content: "@tess book it for friday at 7"})
	require.Equal(t, http.StatusCreated, rec0.Code)
	require.NotEmpty(t, decode[PostMessageResponse](t, rec0).TurnID)
	f.runner.Wait(created.ID)

	rec := f.do(t, http.MethodPost, "/api/rooms/"+created.ID+"/reservations/select", token,
		SelectSlotRequest{SlotIndex: 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[ReservationResponse](t, rec)
	assert.Equal(t, "hold_active", res.Phase)
	require.NotEmpty(t, res.HoldID)

	rec = f.do(t, http.MethodPost, "/api/rooms/"+created.ID+"/reservations/confirm", token,
		ConfirmReservationRequest{
			FirstName: "Alice", LastName: "Ng",
			Email: "alice@example.test", Phone: "555-0100",
		})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res = decode[ReservationResponse](t, rec)
	assert.Equal(t, "booked", res.Phase)
	assert.NotEmpty(t, res.ConfirmationCode)
}
