// Package publisher defines the notification sink used after a mirror refresh.
package publisher

import "context"

// Publisher delivers one JSON-encodable payload and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, payload any, attrs map[string]string) (string, error)
}
