// Package telegram contains the Bot API transport drivers.
//
// HTTPClient talks to the API with net/http and owns rate limiting and
// retries. BotClient routes the same calls through telebot's Raw method.
package telegram
