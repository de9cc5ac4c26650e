package notify

import (
	"context"
	"sort"
	"sync"

	"github.com/tipline/go-tipline-server/types"
)

var (
	handlersMu sync.RWMutex
	handlers   = make(map[string]Notifier)
)

// Notifier delivers a new-submission notice to a recipient over some channel.
// Implementations never see submission plaintext, only the submission id and
// the recipient's registry entry.
type Notifier interface {
	Notify(ctx context.Context, recipient *types.Recipient, submissionID string) error
}

// RegisterNotifier makes a notifier available by the provided name.
// If RegisterNotifier is called twice with the same name or if the notifier
// is nil, it panics.
func RegisterNotifier(name string, n Notifier) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	if n == nil {
		panic("notify: Register notifier is nil")
	}
	if _, dup := handlers[name]; dup {
		panic("notify: Register called twice for notifier " + name)
	}
	handlers[name] = n
}

// for tests only
func unregisterAllNotifiers() {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	handlers = make(map[string]Notifier)
}

// Notifiers returns a sorted list of the names of the registered notifiers
func Notifiers() []string {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	list := make([]string, 0, len(handlers))
	for name := range handlers {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

// Get returns a registered notifier by name, or nil
func Get(name string) Notifier {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return handlers[name]
}

// NotifyAll fans a notification out to every registered notifier and returns
// the first error; remaining notifiers still run.
func NotifyAll(ctx context.Context, recipient *types.Recipient, submissionID string) error {
	handlersMu.RLock()
	defer handlersMu.RUnlock()

	var firstErr error
	for _, n := range handlers {
		if err := n.Notify(ctx, recipient, submissionID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
