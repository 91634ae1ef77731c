package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func correlationApp() *fiber.App {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(GetCorrelationID(c))
	})
	return app
}

func TestCorrelationIDEchoesInboundHeader(t *testing.T) {
	app := correlationApp()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "client-abc")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "client-abc", resp.Header.Get("X-Correlation-ID"))
}

func TestCorrelationIDGeneratesWhenAbsent(t *testing.T) {
	app := correlationApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	id := resp.Header.Get("X-Correlation-ID")
	_, parseErr := uuid.Parse(id)
	require.NoError(t, parseErr)
}

func TestCorrelationIDRejectsUnusableInboundValues(t *testing.T) {
	app := correlationApp()

	for name, inbound := range map[string]string{
		"oversized": strings.Repeat("x", 200),
		"non ascii": "abcédef",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Correlation-ID", inbound)

			resp, err := app.Test(req)
			require.NoError(t, err)
			require.NotEqual(t, inbound, resp.Header.Get("X-Correlation-ID"))
			require.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))
		})
	}
}
