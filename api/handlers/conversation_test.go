package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentteam/agent/team"
	"github.com/BaSui01/agentteam/internal/ctxkeys"
	"github.com/BaSui01/agentteam/types"
)

type fakeConversations struct {
	chats   []team.ChatRequest
	convIDs []string
	retried []string
	snaps   map[string]*team.Snapshot
	chatErr error
}

func (f *fakeConversations) Chat(ctx context.Context, req team.ChatRequest) (*team.ChatResult, error) {
	f.chats = append(f.chats, req)
	id, _ := ctxkeys.ConvID(ctx)
	f.convIDs = append(f.convIDs, id)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &team.ChatResult{ConvID: "conv-1", Team: req.Team, Success: true, Content: "done"}, nil
}

func (f *fakeConversations) RetryChat(_ context.Context, convID string) (*team.ChatResult, error) {
	f.retried = append(f.retried, convID)
	if _, ok := f.snaps[convID]; !ok {
		return nil, fmt.Errorf("%w: %s", team.ErrConversationNotFound, convID)
	}
	return &team.ChatResult{ConvID: convID, Success: true}, nil
}

func (f *fakeConversations) Snapshot(_ context.Context, convID string) (*team.Snapshot, error) {
	snap, ok := f.snaps[convID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", team.ErrConversationNotFound, convID)
	}
	return snap, nil
}

func (f *fakeConversations) View(_ context.Context, convID string) (string, error) {
	if _, ok := f.snaps[convID]; !ok {
		return "", fmt.Errorf("%w: %s", team.ErrConversationNotFound, convID)
	}
	return "```agent-messages\n[]\n```", nil
}

func (f *fakeConversations) Teams() []team.TeamInfo {
	return []team.TeamInfo{{Name: "analysts", Mode: "auto_plan", Agents: []string{"CodeEngineer"}}}
}

func newConversationMux(svc ConversationService) *http.ServeMux {
	mux := http.NewServeMux()
	NewConversationHandler(svc, zap.NewNop()).Register(mux)
	return mux
}

func serve(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestConversationHandler_Create(t *testing.T) {
	svc := &fakeConversations{}
	mux := newConversationMux(svc)

	w := serve(mux, http.MethodPost, "/v1/conversations", `{"team":"analysts","goal":"analyze sales","conv_id":"c-9"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool            `json:"success"`
		Data    team.ChatResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "done", resp.Data.Content)
	require.Len(t, svc.chats, 1)
	assert.Equal(t, team.ChatRequest{ConvID: "c-9", Team: "analysts", Goal: "analyze sales"}, svc.chats[0])
	assert.Equal(t, "c-9", svc.convIDs[0])
}

func TestConversationHandler_CreateRejects(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		chatErr    error
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{"missing team", `{"goal":"g"}`, nil, http.StatusBadRequest, types.ErrCodeValidation},
		{"unknown field", `{"team":"a","goal":"g","x":1}`, nil, http.StatusBadRequest, types.ErrCodeValidation},
		{"unknown team", `{"team":"nope","goal":"g"}`, fmt.Errorf("%w: %q", team.ErrTeamNotFound, "nope"), http.StatusNotFound, types.ErrCodeNotFound},
		{"existing conversation", `{"team":"a","goal":"g","conv_id":"c"}`, fmt.Errorf("%w: c", team.ErrConversationExists), http.StatusConflict, types.ErrCodeConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newConversationMux(&fakeConversations{chatErr: tt.chatErr})
			w := serve(mux, http.MethodPost, "/v1/conversations", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.wantCode), resp.Error.Code)
		})
	}

	// 非 JSON 请求
	r := httptest.NewRequest(http.MethodPost, "/v1/conversations", strings.NewReader("team=a"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	newConversationMux(&fakeConversations{}).ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConversationHandler_Reads(t *testing.T) {
	snap := &team.Snapshot{
		ConvID: "c1",
		Plans:  []*types.GptsPlan{{ConvID: "c1", SubTaskNum: 1, SubTaskID: "1", State: types.PlanStateComplete}},
		Messages: []*types.AgentMessage{
			{ConvID: "c1", Sender: "User", Receiver: "PlanManager", Content: "goal", Rounds: 0},
			{ConvID: "c1", Sender: "PlanManager", Receiver: "User", Content: "goal", Rounds: 1},
		},
	}
	svc := &fakeConversations{snaps: map[string]*team.Snapshot{"c1": snap, "empty": {ConvID: "empty", Messages: []*types.AgentMessage{{ConvID: "empty", Content: "hi"}}}}}
	mux := newConversationMux(svc)

	w := serve(mux, http.MethodGet, "/v1/conversations/c1/plans", "")
	require.Equal(t, http.StatusOK, w.Code)
	var plans struct {
		Data []*types.GptsPlan `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&plans))
	require.Len(t, plans.Data, 1)
	assert.Equal(t, types.PlanStateComplete, plans.Data[0].State)

	w = serve(mux, http.MethodGet, "/v1/conversations/c1/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	var msgs struct {
		Data []*types.AgentMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&msgs))
	require.Len(t, msgs.Data, 2)
	assert.Equal(t, "User", msgs.Data[0].Sender)

	// 没有计划的会话返回空数组而不是 null
	w = serve(mux, http.MethodGet, "/v1/conversations/empty/plans", "")
	assert.Contains(t, w.Body.String(), `"data":[]`)

	w = serve(mux, http.MethodGet, "/v1/conversations/c1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(mux, http.MethodGet, "/v1/conversations/c1/view", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "```agent-messages"))

	for _, path := range []string{"/v1/conversations/missing", "/v1/conversations/missing/plans", "/v1/conversations/missing/view"} {
		w = serve(mux, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestConversationHandler_RetryAndTeams(t *testing.T) {
	svc := &fakeConversations{snaps: map[string]*team.Snapshot{"c1": {ConvID: "c1"}}}
	mux := newConversationMux(svc)

	w := serve(mux, http.MethodPost, "/v1/conversations/c1/retry", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = serve(mux, http.MethodPost, "/v1/conversations/zz/retry", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, []string{"c1", "zz"}, svc.retried)

	w = serve(mux, http.MethodGet, "/v1/teams", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"analysts"`)

	w = serve(mux, http.MethodDelete, "/v1/teams", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
