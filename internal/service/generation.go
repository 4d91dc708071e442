package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/satorinet/neuronfeed/internal/domain/feed"
)

// Token identifies one viewer generation. Later generations have larger tokens.
type Token uint64

// Generation is a token issued by GenerationRegistry.Begin.
type Generation struct {
	Token  Token
	cancel context.CancelCauseFunc
}

// GenerationRegistry decides which prediction-stream connection is current.
// Exactly one token is current at a time. Beginning a new generation cancels
// the context of the previous one with cause feed.ErrSuperseded, so a
// superseded responder wakes immediately instead of on its next event.
type GenerationRegistry struct {
	mu            sync.Mutex
	issued        Token
	current       atomic.Uint64
	cancelCurrent context.CancelCauseFunc
}

// NewGenerationRegistry creates a registry with no current generation.
func NewGenerationRegistry() *GenerationRegistry {
	return &GenerationRegistry{}
}

// Begin issues a new token, makes it current and supersedes the previous
// generation. The returned context is derived from ctx.
func (r *GenerationRegistry) Begin(ctx context.Context) (Generation, context.Context) {
	genCtx, cancel := context.WithCancelCause(ctx)

	r.mu.Lock()
	r.issued++
	tok := r.issued
	prev := r.cancelCurrent
	r.cancelCurrent = cancel
	r.current.Store(uint64(tok))
	r.mu.Unlock()

	if prev != nil {
		prev(feed.ErrSuperseded)
	}
	return Generation{Token: tok, cancel: cancel}, genCtx
}

// IsCurrent reports whether tok is the most recently issued token.
func (r *GenerationRegistry) IsCurrent(tok Token) bool {
	return Token(r.current.Load()) == tok
}

// Current returns the current token, or 0 before the first Begin.
func (r *GenerationRegistry) Current() Token {
	return Token(r.current.Load())
}

// End releases the generation's context. The current token is unchanged, so
// a finished connection never makes an older one current again.
func (r *GenerationRegistry) End(g Generation) {
	if g.cancel == nil {
		return
	}
	r.mu.Lock()
	if Token(r.current.Load()) == g.Token {
		r.cancelCurrent = nil
	}
	r.mu.Unlock()
	g.cancel(context.Canceled)
}

// Superseded reports whether ctx ended because a newer generation began.
func Superseded(ctx context.Context) bool {
	return ctx.Err() != nil && errors.Is(context.Cause(ctx), feed.ErrSuperseded)
}
