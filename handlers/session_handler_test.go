package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/persona-router/services/session"
)

func TestSessionHandler_SetPersona(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/v1/sessions/u1/persona", SetPersonaRequest{Persona: " talkme "})
	expectStatus(t, w, http.StatusOK)

	var sess session.Session
	decodeData(t, w, &sess)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "TALKME", sess.Persona)

	stored, ok := env.sessions.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "TALKME", stored.Persona)
}

func TestSessionHandler_SetPersonaErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/v1/sessions/u1/persona", SetPersonaRequest{Persona: "GHOST"})
	expectStatus(t, w, http.StatusUnprocessableEntity)

	w = env.do(t, http.MethodPut, "/api/v1/sessions/u1/persona", SetPersonaRequest{})
	expectStatus(t, w, http.StatusBadRequest)

	_, ok := env.sessions.Get("u1")
	assert.False(t, ok)
}

func TestSessionHandler_GetResetDelete(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/sessions/u1", nil)
	expectStatus(t, w, http.StatusNotFound)

	env.sessions.SetPersona("u1", "ALEX")
	env.sessions.AppendTurn("u1", "hola", "hola!")

	w = env.do(t, http.MethodGet, "/api/v1/sessions/u1", nil)
	expectStatus(t, w, http.StatusOK)
	var sess session.Session
	decodeData(t, w, &sess)
	assert.Len(t, sess.History, 2)

	w = env.do(t, http.MethodPost, "/api/v1/sessions/u1/reset", nil)
	expectStatus(t, w, http.StatusNoContent)
	stored, _ := env.sessions.Get("u1")
	assert.Empty(t, stored.History)
	assert.Equal(t, "ALEX", stored.Persona)

	w = env.do(t, http.MethodDelete, "/api/v1/sessions/u1", nil)
	expectStatus(t, w, http.StatusNoContent)

	w = env.do(t, http.MethodDelete, "/api/v1/sessions/u1", nil)
	expectStatus(t, w, http.StatusNotFound)

	w = env.do(t, http.MethodPost, "/api/v1/sessions/u1/reset", nil)
	expectStatus(t, w, http.StatusNotFound)
}
