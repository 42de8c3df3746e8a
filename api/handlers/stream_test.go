package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/types"
)

func TestStreamHandler_PushesConversationMessages(t *testing.T) {
	mem := memory.NewGptsMemory(memory.NewInMemoryPlans(), memory.NewInMemoryMessages())
	mux := http.NewServeMux()
	NewStreamHandler(mem, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/conversations/c1/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// 握手完成时处理器已订阅
	_, err = mem.AppendMessage(ctx, &types.AgentMessage{ConvID: "other", Sender: "User", Receiver: "A", Content: "ignored"})
	require.NoError(t, err)
	_, err = mem.AppendMessage(ctx, &types.AgentMessage{ConvID: "c1", Sender: "User", Receiver: "A", Content: "first"})
	require.NoError(t, err)
	_, err = mem.AppendMessage(ctx, &types.AgentMessage{ConvID: "c1", Sender: "A", Receiver: "User", Content: "second"})
	require.NoError(t, err)

	var got []StreamEvent
	for range 2 {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var ev StreamEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		got = append(got, ev)
	}

	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ConvID)
	assert.Equal(t, "first", got[0].Message.Content)
	assert.Equal(t, 0, got[0].Message.Rounds)
	assert.Equal(t, "second", got[1].Message.Content)
	assert.Equal(t, 1, got[1].Message.Rounds)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
}

func TestStreamHandler_RejectsPlainHTTP(t *testing.T) {
	mem := memory.NewGptsMemory(memory.NewInMemoryPlans(), memory.NewInMemoryMessages())
	mux := http.NewServeMux()
	NewStreamHandler(mem, nil).Register(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/conversations/c1/stream", nil))

	// 非升级请求由 websocket.Accept 拒绝
	assert.GreaterOrEqual(t, w.Code, http.StatusBadRequest)
}
