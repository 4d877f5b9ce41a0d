package telegram

import (
	"errors"
	"net/url"
	"strings"

	"telegrama/internal/settings"
)

// scrub removes the bot token from err. net/http errors embed the request
// URL, which has the token in its path.
func scrub(err error, token string) error {
	if err == nil || token == "" {
		return err
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return &url.Error{Op: ue.Op, URL: redact(ue.URL, token), Err: ue.Err}
	}
	if strings.Contains(err.Error(), token) {
		return errors.New(redact(err.Error(), token))
	}
	return err
}

func redact(s, token string) string {
	return strings.ReplaceAll(s, token, settings.RedactToken(token))
}
