// Package channel defines the transport adapters that feed customer messages
// into the dialog.
package channel

import (
	"context"

	"salesbot/pkg/bus"
)

// Adapter bridges one external transport (for example Telegram) into the bot.
// Run blocks until ctx is cancelled or the transport fails; the adapter sends
// every reply the handler returns.
type Adapter interface {
	Name() string
	Run(context.Context, bus.MessageHandler) error
}
