package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/tipline/go-tipline-server/types"
	"github.com/tj/assert"
)

type captureNotifier struct {
	recipients []string
	err        error
}

func (cn *captureNotifier) Notify(ctx context.Context, recipient *types.Recipient, submissionID string) error {
	cn.recipients = append(cn.recipients, recipient.UnderscoreID)
	return cn.err
}

func TestRegisterAndNotifyAll(t *testing.T) {
	unregisterAllNotifiers()
	defer unregisterAllNotifiers()

	capture := &captureNotifier{}
	RegisterNotifier("capture", capture)
	RegisterNotifier("log", NewLogNotifier())

	assert.Equal(t, []string{"capture", "log"}, Notifiers())
	assert.NotNil(t, Get("capture"))
	assert.Nil(t, Get("missing"))

	r := &types.Recipient{Name: "Alice"}
	r.UnderscoreID = "alice"
	err := NotifyAll(context.Background(), r, "sub-1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"alice"}, capture.recipients)
}

func TestNotifyAllReturnsFirstError(t *testing.T) {
	unregisterAllNotifiers()
	defer unregisterAllNotifiers()

	failing := &captureNotifier{err: errors.New("delivery failed")}
	RegisterNotifier("failing", failing)

	r := &types.Recipient{Name: "Alice"}
	r.UnderscoreID = "alice"
	err := NotifyAll(context.Background(), r, "sub-1")
	assert.Error(t, err)
	assert.Equal(t, []string{"alice"}, failing.recipients)
}

func TestRegisterNilPanics(t *testing.T) {
	unregisterAllNotifiers()
	defer unregisterAllNotifiers()

	assert.Panics(t, func() { RegisterNotifier("nil", nil) })
	RegisterNotifier("log", NewLogNotifier())
	assert.Panics(t, func() { RegisterNotifier("log", NewLogNotifier()) })
}
