package outbound

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func response(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestJoinURL(t *testing.T) {
	require.Equal(t, "http://catalog:8080/items/SONG/1", JoinURL("http://catalog:8080/", "items", "/SONG/", "1"))
}

func TestDecodeEnvelope(t *testing.T) {
	type payload struct {
		Title string `json:"title"`
	}
	env, err := DecodeEnvelope[payload](response(200, `{"data":{"title":"Blue"}}`))
	require.NoError(t, err)
	require.NotNil(t, env.Data)
	require.Equal(t, "Blue", env.Data.Title)

	env, err = DecodeEnvelope[payload](response(404, `{"error":{"code":"NOT_FOUND","message":"missing"}}`))
	require.NoError(t, err)
	require.Nil(t, env.Data)
	require.Equal(t, "NOT_FOUND", env.Error.Code)

	_, err = DecodeEnvelope[payload](response(502, `<html>bad gateway</html>`))
	require.Error(t, err)
}

func TestNewHTTPClientDefaultsTimeout(t *testing.T) {
	require.Equal(t, DefaultTimeout, NewHTTPClient(0).Timeout)
	require.Equal(t, time.Second, NewHTTPClient(time.Second).Timeout)
}
