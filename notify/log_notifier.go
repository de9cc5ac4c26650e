package notify

import (
	"context"

	"github.com/go-kit/log/level"
	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/types"
)

// LogNotifier writes notifications to the server log. It is the default
// channel for deployments without an external delivery collaborator and the
// reference implementation for real ones.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (ln *LogNotifier) Notify(ctx context.Context, recipient *types.Recipient, submissionID string) error {
	level.Info(global.Logger).Log("msg", "submission routed", "recipient", recipient.UnderscoreID, "submission", submissionID)
	return nil
}
