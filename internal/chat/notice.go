package chat

import (
	"errors"
	"fmt"

	"github.com/yanpl/grasser/internal/cloudflare"
)

// NoticePrefix colours notices red in Minecraft-style clients.
const NoticePrefix = "§c"

var (
	errEmptyRewrite   = errors.New("empty rewrite")
	errRateLimited    = errors.New("you are sending messages too fast")
	errTooLong        = errors.New("message is too long")
	errTooManyPending = errors.New("too many pending messages")
	errShuttingDown   = errors.New("chat rewriting is shutting down")
)

// FailureNotice is the private message shown to a player whose rewrite
// failed. Provider bodies stay in the server log.
func FailureNotice(err error) string {
	return NoticePrefix + "AI chat rewrite failed: " + describe(err)
}

func describe(err error) string {
	var (
		pe *cloudflare.ProviderError
		te *cloudflare.TransportError
	)
	switch {
	case errors.As(err, &pe):
		return fmt.Sprintf("AI service returned HTTP %d", pe.StatusCode)
	case errors.As(err, &te):
		return "could not reach the AI service"
	default:
		return err.Error()
	}
}
