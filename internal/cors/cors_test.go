package cors

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/xray-tech/xorc-gateway/internal/config"
	"github.com/xray-tech/xorc-gateway/internal/event"
)

func testPolicy() *Policy {
	return New(
		config.CORS{
			AllowedMethods: "POST, OPTIONS",
			AllowedHeaders: "Content-Type, Content-Length",
		},
		[]config.Origin{
			{AppID: "2", Allowed: []string{"https://reddit.com", "https://www.reddit.com"}},
		},
	)
}

func TestValidOrigin(t *testing.T) {
	p := testPolicy()

	assert.True(t, p.ValidOrigin("2", "https://reddit.com"))
	assert.True(t, p.ValidOrigin("2", "https://www.reddit.com"))
	assert.False(t, p.ValidOrigin("2", "https://facebook.com"))
	assert.False(t, p.ValidOrigin("3", "https://reddit.com"))
	assert.False(t, p.ValidOrigin("2", ""))
}

func TestApplyAllowedWebOrigin(t *testing.T) {
	p := testPolicy()
	header := http.Header{}

	p.Apply(header, &event.Context{AppID: "2", Platform: event.PlatformWeb, Origin: "https://reddit.com"})

	assert.Equal(t, "https://reddit.com", header.Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "POST, OPTIONS", header.Get(echo.HeaderAccessControlAllowMethods))
	assert.Equal(t, "Content-Type, Content-Length", header.Get(echo.HeaderAccessControlAllowHeaders))
}

func TestApplySkipsWrongOrigin(t *testing.T) {
	p := testPolicy()
	header := http.Header{}

	p.Apply(header, &event.Context{AppID: "2", Platform: event.PlatformWeb, Origin: "https://facebook.com"})
	assert.Empty(t, header.Get(echo.HeaderAccessControlAllowOrigin))
}

func TestApplySkipsNonWebPlatforms(t *testing.T) {
	p := testPolicy()
	header := http.Header{}

	p.Apply(header, &event.Context{AppID: "2", Platform: event.PlatformIOS, Origin: "https://reddit.com"})
	assert.Empty(t, header.Get(echo.HeaderAccessControlAllowOrigin))
}

func TestApplyWildcard(t *testing.T) {
	p := testPolicy()
	header := http.Header{}

	p.ApplyWildcard(header)

	assert.Equal(t, "*", header.Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "POST, OPTIONS", header.Get(echo.HeaderAccessControlAllowMethods))
}
