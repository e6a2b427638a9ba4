package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_RecoversPanics(t *testing.T) {
	s := New(logger.Nop(), Port("0"))
	s.App.Get("/boom", func(*fiber.Ctx) error {
		panic("boom")
	})

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServer_ErrorsAsJSON(t *testing.T) {
	s := New(logger.Nop())
	s.App.Get("/teapot", func(*fiber.Ctx) error {
		return fiber.NewError(http.StatusTeapot, "short and stout")
	})

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/teapot", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "short and stout", body["error"])
}

func TestServer_UnknownRoute(t *testing.T) {
	s := New(logger.Nop())

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
