package domain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"koinonia.app/notifier/internal/pkg/logger"
)

// EntityHandler processes a created entity.
type EntityHandler func(ctx context.Context, event *EntityCreated) error

type route struct {
	pattern  string
	segments []string
	handlers []EntityHandler
}

// EntityDispatcher routes document-created events to handlers registered
// against path patterns such as "groups/{groupId}/posts/{postId}".
// Handlers know nothing about the document store that produced the event.
type EntityDispatcher struct {
	routes []*route
	mu     sync.RWMutex
}

// NewEntityDispatcher creates an empty dispatcher.
func NewEntityDispatcher() *EntityDispatcher {
	return &EntityDispatcher{}
}

// OnEntityCreated registers handler for documents created under pattern.
// Registering the same pattern twice appends handlers.
func (d *EntityDispatcher) OnEntityCreated(pattern string, handler EntityHandler) {
	segments := splitPath(pattern)

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.routes {
		if r.pattern == strings.Join(segments, "/") {
			r.handlers = append(r.handlers, handler)
			return
		}
	}
	d.routes = append(d.routes, &route{
		pattern:  strings.Join(segments, "/"),
		segments: segments,
		handlers: []EntityHandler{handler},
	})
}

// Patterns returns the registered patterns in registration order.
func (d *EntityDispatcher) Patterns() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.routes))
	for _, r := range d.routes {
		out = append(out, r.pattern)
	}
	return out
}

// Matches reports whether a registered pattern matches path.
func (d *EntityDispatcher) Matches(path string) bool {
	segments := splitPath(path)

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.routes {
		if _, ok := match(r.segments, segments); ok {
			return true
		}
	}
	return false
}

// Dispatch binds path variables onto event and runs every handler of the
// first matching pattern. Handlers run sequentially; a failing handler is
// logged and the rest still run (best-effort). routed is false when no
// pattern matches, which is not an error.
func (d *EntityDispatcher) Dispatch(ctx context.Context, event *EntityCreated) (routed bool, err error) {
	segments := splitPath(event.Path)

	d.mu.RLock()
	var matched *route
	var params map[string]string
	for _, r := range d.routes {
		if p, ok := match(r.segments, segments); ok {
			matched, params = r, p
			break
		}
	}
	var handlers []EntityHandler
	if matched != nil {
		handlers = append(handlers, matched.handlers...)
	}
	d.mu.RUnlock()

	if matched == nil {
		logger.Warn("No handler registered for entity path",
			zap.String("path", event.Path),
			zap.String("event_id", event.EventID),
		)
		return false, nil
	}
	event.Params = params

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logger.Error("Entity handler failed",
				zap.String("pattern", matched.pattern),
				zap.String("path", event.Path),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("handler for %s failed: %w", matched.pattern, err)
			}
		}
	}
	return true, firstErr
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func match(pattern, path []string) (map[string]string, bool) {
	if len(pattern) != len(path) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range pattern {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if path[i] == "" {
				return nil, false
			}
			params[seg[1:len(seg)-1]] = path[i]
			continue
		}
		if seg != path[i] {
			return nil, false
		}
	}
	return params, true
}
