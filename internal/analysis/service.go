// ABOUTME: Analysis service that runs hint and complexity conversations per tab session
// ABOUTME: Serializes turns per session key and maps provider failures to Unavailable

package analysis

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/algosensei/sensei-gateway/internal/apperr"
)

// MsgProviderUnavailable is shown when the model call fails.
const MsgProviderUnavailable = "Analysis provider unavailable"

// Service answers analysis requests using a Completer and a SessionStore.
type Service struct {
	completer Completer
	sessions  SessionStore
	locks     *keyedMutex
	logger    *slog.Logger
}

// NewService creates an analysis service.
func NewService(completer Completer, sessions SessionStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		completer: completer,
		sessions:  sessions,
		locks:     newKeyedMutex(),
		logger:    logger.With("component", "analysis"),
	}
}

// ProvideHints returns guidance for the code without a full solution.
func (s *Service) ProvideHints(ctx context.Context, req Request) (string, error) {
	return s.run(ctx, KindHint, req)
}

// AnalyzeComplexity returns a time and space complexity analysis of the code.
func (s *Service) AnalyzeComplexity(ctx context.Context, req Request) (string, error) {
	return s.run(ctx, KindComplexity, req)
}

func (s *Service) run(ctx context.Context, kind Kind, req Request) (string, error) {
	op := "analysis." + kind.String()

	if err := req.Validate(); err != nil {
		return "", apperr.Wrap(apperr.KindBadRequest, op, err.Error(), err)
	}

	key := SessionKey(req.Authenticated, req.UserID, req.SessionID)
	unlock := s.locks.Lock(key)
	defer unlock()

	sess, created, err := s.sessions.CreateOrGet(ctx, key)
	if err != nil {
		return "", apperr.Internal(op, "Failed to load session.", err)
	}
	if created {
		s.logger.Debug("session created", "session", key)
	}

	turn := Message{Role: RoleUser, Content: userPrompt(kind, req)}

	msgs := make([]Message, 0, len(sess.Messages)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: instruction(kind)})
	msgs = append(msgs, sess.Messages...)
	msgs = append(msgs, turn)

	reply, err := s.completer.Complete(ctx, msgs)
	if err != nil {
		s.logger.Warn("completion failed", "kind", kind.String(), "session", key, "error", err)
		return "", &apperr.Error{Kind: apperr.KindUnavailable, Op: op, Message: MsgProviderUnavailable, Cause: err}
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return NoResponse, nil
	}

	if err := s.sessions.Append(ctx, key, turn, Message{Role: RoleAssistant, Content: reply}); err != nil {
		// The caller still gets the reply; only the history is lost.
		s.logger.Warn("failed to store session turn", "session", key, "error", err)
	}

	s.logger.Info("analysis complete", "kind", kind.String(), "history", len(sess.Messages))
	return reply, nil
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
