package voxa

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxa-ai/voxa-go/pkg/core"
)

const (
	connectTimeout  = 10 * time.Second
	closeAckTimeout = 2 * time.Second
)

// normalizeAgentURL validates the server address and maps http(s) schemes to
// their websocket equivalents. A malformed address is a setup failure, not a
// transport one.
func normalizeAgentURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return "", core.NewFailedSetupError(fmt.Sprintf("invalid server address: %v", err))
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", core.NewFailedSetupError(fmt.Sprintf("server address must use ws(s) or http(s), got %q", u.Scheme))
	}
	if u.Host == "" {
		return "", core.NewFailedSetupError("server address has no host")
	}
	return u.String(), nil
}

// dialAgent opens the websocket to the agent service. Exactly one of three
// outcomes resolves the attempt: ready, rejected before ready (SocketClosed
// with detail), or the 10 second deadline elapsing (ConnectionTimeout). The
// dialer never retries.
func dialAgent(ctx context.Context, serverURL, key string) (*websocket.Conn, error) {
	wsURL, err := normalizeAgentURL(serverURL)
	if err != nil {
		return nil, err
	}

	headers := make(http.Header)
	if key != "" {
		headers.Set("Authorization", "Bearer "+key)
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: connectTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if isDialTimeout(err, dialCtx) {
			return nil, core.NewConnectionTimeoutError(fmt.Sprintf("no response within %s", connectTimeout))
		}
		if resp != nil {
			return nil, core.NewSocketClosedError(fmt.Sprintf("rejected with status %d", resp.StatusCode))
		}
		return nil, core.NewSocketClosedError(err.Error())
	}
	return conn, nil
}

func isDialTimeout(err error, ctx context.Context) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
