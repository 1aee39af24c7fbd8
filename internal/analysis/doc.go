// Package analysis answers coding-practice questions with a language model.
//
// Two request kinds share one conversation per browser tab:
//
//   - hints: guidance that stops short of a full solution
//   - complexity: time and space complexity with explanations
//
// A session is keyed by SessionKey(authenticated, userID, sessionID) and holds the prior
// user and assistant turns, capped at a configured number of messages.
// Turns for the same key are serialized so replies never interleave.
//
// Completer abstracts the model. OpenAICompleter talks to any
// OpenAI-compatible chat completions endpoint. SessionStore has an in-memory
// LRU implementation and a redis implementation.
//
//	svc := analysis.NewService(completer, analysis.NewMemorySessionStore(time.Hour, 1000, 20), logger)
//	hints, err := svc.ProvideHints(ctx, analysis.Request{...})
package analysis
