package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/agent"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
	"github.com/aws-samples/sample-ai-agent-accelerator/tests/helpers"
)

func newTestServer(t *testing.T, factory agent.Factory) *echo.Echo {
	t.Helper()
	e := echo.New()
	NewHandler(agent.NewBinding(factory), "mem-1").RegisterRoutes(e)
	return e
}

func mockFactory(t *testing.T, model *agent.MockModel) agent.Factory {
	return agent.NewFactory(helpers.NewTestSQLiteStore(t), model, nil, agent.Options{})
}

func invoke(e *echo.Echo, session, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/invocations", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if session != "" {
		req.Header.Set(domain.SessionIDHeader, session)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	e := newTestServer(t, mockFactory(t, agent.NewMockModel()))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestInvokeReturnsMessage(t *testing.T) {
	model := agent.NewMockModel(domain.NewTextMessage(domain.RoleAssistant, "Within 30 days."))
	e := newTestServer(t, mockFactory(t, model))

	rec := invoke(e, "conv-1", `{"input":{"prompt":"What is your return policy?","user_id":"dXNlcg"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	msg, err := domain.DecodeReply(rec.Body.Bytes())
	require.NoError(t, err)
	text, err := msg.Text()
	require.NoError(t, err)
	assert.Equal(t, "Within 30 days.", text)
}

func TestInvokeValidation(t *testing.T) {
	e := newTestServer(t, mockFactory(t, agent.NewMockModel()))

	cases := []struct {
		name, session, body, want string
	}{
		{"missing prompt", "conv-1", `{"input":{"user_id":"u"}}`, "prompt"},
		{"missing input", "conv-1", `{}`, "prompt"},
		{"missing user", "conv-1", `{"input":{"prompt":"hi"}}`, "user_id"},
		{"missing header", "", `{"input":{"prompt":"hi","user_id":"u"}}`, domain.SessionIDHeader},
		{"bad json", "conv-1", `{`, "invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := invoke(e, tc.session, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.want)
		})
	}
}

func TestInvokeBindingMismatch(t *testing.T) {
	e := newTestServer(t, mockFactory(t, agent.NewMockModel()))

	rec := invoke(e, "conv-1", `{"input":{"prompt":"hi","user_id":"u"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = invoke(e, "conv-2", `{"input":{"prompt":"hi","user_id":"u"}}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = invoke(e, "conv-1", `{"input":{"prompt":"hi","user_id":"someone-else"}}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInvokeInitializationFailure(t *testing.T) {
	attempts := 0
	e := newTestServer(t, func(ctx context.Context, key domain.MemoryKey) (*agent.Agent, error) {
		attempts++
		return nil, errors.New("memory unavailable")
	})

	for i := 0; i < 2; i++ {
		rec := invoke(e, "conv-1", `{"input":{"prompt":"hi","user_id":"u"}}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "agent initialization failed")
		assert.NotContains(t, rec.Body.String(), "memory unavailable")
	}
	assert.Equal(t, 2, attempts)
}

func TestInvokeProcessingFailure(t *testing.T) {
	model := agent.NewMockModel()
	model.FailWith(errors.New("model throttled"))
	e := newTestServer(t, mockFactory(t, model))

	rec := invoke(e, "conv-1", `{"input":{"prompt":"hi","user_id":"u"}}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "agent processing failed", body["detail"])
}
