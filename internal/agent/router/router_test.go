package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"coflowd/internal/agent/config"
	"coflowd/internal/logger"
	"coflowd/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeAgent records delivered messages and replies like the real loop
type fakeAgent struct {
	messages []types.ControlMessage
	view     types.AgentView
}

func (f *fakeAgent) Control(_ context.Context, msg types.ControlMessage) (bool, error) {
	f.messages = append(f.messages, msg)
	return true, nil
}

func (f *fakeAgent) State(_ context.Context) (types.AgentView, error) {
	return f.view, nil
}

func newTestRouter(t *testing.T) (*Router, *fakeAgent) {
	t.Helper()

	agent := &fakeAgent{
		view: types.AgentView{
			ID:          "agent-20250314092653-node1-1607",
			Host:        "node1",
			ControlPort: 1607,
			RxBps:       100,
			TxBps:       50,
		},
	}
	cfg := &config.Config{
		Agent: config.AgentConfig{ControlPort: 1607},
		Log:   logger.Config{Level: "info"},
	}
	return NewRouter(cfg, agent, zaptest.NewLogger(t)), agent
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestControlMessagesSingleAck(t *testing.T) {
	testCases := []struct {
		name string
		send func(t *testing.T, h http.Handler) *httptest.ResponseRecorder
		kind types.ControlKind
	}{
		{
			name: "RegisterCoflow",
			send: func(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
				return doJSON(t, h, http.MethodPost, "/api/v1/coflows", types.CoflowHandle{ID: "c1"})
			},
			kind: types.ControlRegisterCoflow,
		},
		{
			name: "UnregisterCoflow",
			send: func(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
				return doJSON(t, h, http.MethodDelete, "/api/v1/coflows/c1", nil)
			},
			kind: types.ControlUnregisterCoflow,
		},
		{
			name: "AddFlow",
			send: func(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
				return doJSON(t, h, http.MethodPost, "/api/v1/flows", types.FlowDescriptor{
					ID: "f1", CoflowID: "c1", DataType: types.DataTypeNetwork,
				})
			},
			kind: types.ControlAddFlow,
		},
		{
			name: "AddFlows",
			send: func(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
				return doJSON(t, h, http.MethodPost, "/api/v1/flows/batch", types.AddFlowsRequest{
					CoflowID: "c1", DataType: types.DataTypeNetwork,
					Flows: []types.FlowDescriptor{{ID: "f1"}, {ID: "f2"}},
				})
			},
			kind: types.ControlAddFlows,
		},
		{
			name: "GetFlow",
			send: func(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
				return doJSON(t, h, http.MethodGet, "/api/v1/flows/f1", nil)
			},
			kind: types.ControlGetFlow,
		},
		{
			name: "GetFlows",
			send: func(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
				return doJSON(t, h, http.MethodGet, "/api/v1/flows", nil)
			},
			kind: types.ControlGetFlows,
		},
		{
			name: "DeleteFlow",
			send: func(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
				return doJSON(t, h, http.MethodDelete, "/api/v1/flows/f1?coflow_id=c1", nil)
			},
			kind: types.ControlDeleteFlow,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, agent := newTestRouter(t)

			w := tc.send(t, r.Handler())
			require.Equal(t, http.StatusOK, w.Code)

			// Exactly one reply, and it is true
			var reply bool
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
			assert.True(t, reply)

			// Exactly one message reached the agent loop
			require.Len(t, agent.messages, 1)
			assert.Equal(t, tc.kind, agent.messages[0].Kind)
			assert.NotEmpty(t, agent.messages[0].ID)
		})
	}
}

func TestDeleteFlowCarriesIdentifiers(t *testing.T) {
	r, agent := newTestRouter(t)

	w := doJSON(t, r.Handler(), http.MethodDelete, "/api/v1/flows/f9?coflow_id=c3", nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, agent.messages, 1)
	assert.Equal(t, "f9", agent.messages[0].FlowID)
	assert.Equal(t, "c3", agent.messages[0].CoflowID)
}

func TestInvalidPayloadRejected(t *testing.T) {
	r, agent := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/flows", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, agent.messages)
}

func TestStateSnapshot(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r.Handler(), http.MethodGet, "/api/v1/state", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var view types.AgentView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "agent-20250314092653-node1-1607", view.ID)
	assert.Equal(t, 100.0, view.RxBps)
	assert.Equal(t, 50.0, view.TxBps)
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r.Handler(), http.MethodGet, "/api/v1/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
