package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relaycrm/sourcing-engine/pkg/models"
)

// Promoter executes a streaming model call against an ordered tier chain.
// Each tier gets one chance to produce its first token within that tier's
// first-token timeout; a tier that stays silent is cancelled and the next
// tier is attempted on a fresh invocation. Once a tier has produced any
// output the call runs to natural completion - there is no mid-stream
// promotion, because that would discard partial output. A non-timeout error
// aborts the whole chain immediately.
type Promoter struct {
	resolver ClientResolver
	tiers    []models.ModelTier
	logger   *zap.Logger
}

// NewPromoter creates a promoter over the given tier chain.
func NewPromoter(resolver ClientResolver, tiers []models.ModelTier, logger *zap.Logger) (*Promoter, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("at least one model tier is required")
	}

	return &Promoter{
		resolver: resolver,
		tiers:    tiers,
		logger:   logger.Named("promoter"),
	}, nil
}

// Tiers returns the configured promotion chain.
func (p *Promoter) Tiers() []models.ModelTier {
	return p.tiers
}

// Complete runs the request through the tier chain and returns the full
// completion text. When every tier times out before its first token, a
// retryable timeout error is returned.
func (p *Promoter) Complete(ctx context.Context, req ChatRequest) (string, error) {
	for i, tier := range p.tiers {
		output, promoted, err := p.tryTier(ctx, tier, req)
		if err != nil {
			return "", err
		}
		if !promoted {
			if i > 0 {
				p.logger.Info("completed on promoted tier",
					zap.Int("tier", i),
					zap.String("model", tier.Model))
			}
			return output, nil
		}

		p.logger.Warn("first token deadline missed, promoting",
			zap.Int("tier", i),
			zap.String("model", tier.Model),
			zap.Duration("first_token_timeout", tier.FirstTokenTimeout))
	}

	return "", &Error{
		Type:      ErrorTypeTimeout,
		Message:   fmt.Sprintf("all %d model tiers exhausted without a first token", len(p.tiers)),
		Retryable: true,
	}
}

// tryTier runs one tier under its own cancellable invocation. It returns
// promoted=true when the tier produced no token before its first-token
// timeout; any other failure is returned as err.
func (p *Promoter) tryTier(ctx context.Context, tier models.ModelTier, req ChatRequest) (output string, promoted bool, err error) {
	client, err := p.resolver.ForProvider(tier.Provider)
	if err != nil {
		return "", false, err
	}

	tierCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := client.Stream(tierCtx, tier.Model, req)
	if err != nil {
		return "", false, err
	}

	timer := time.NewTimer(tier.FirstTokenTimeout)
	defer timer.Stop()

	var builder strings.Builder

	// Race the first event against the tier's first-token timer.
	for {
		var ev StreamEvent
		var ok bool

		select {
		case <-timer.C:
			// An event may already be buffered on the same tick; output
			// produced within the deadline is never discarded.
			select {
			case ev, ok = <-events:
			default:
				cancel()
				drain(events)
				return "", true, nil
			}

		case <-ctx.Done():
			cancel()
			drain(events)
			return "", false, ctx.Err()

		case ev, ok = <-events:
		}

		if !ok {
			return "", false, fmt.Errorf("model stream closed without terminal event")
		}
		switch ev.Type {
		case StreamEventError:
			return "", false, ev.Err
		case StreamEventDone:
			// Model finished without emitting text.
			return builder.String(), false, nil
		case StreamEventToken:
			// First token arrived: the timer no longer matters and the
			// call proceeds to natural completion.
			timer.Stop()
			builder.WriteString(ev.Content)
			rest, err := p.consume(ctx, events, &builder)
			if err != nil {
				return "", false, err
			}
			return rest, false, nil
		}
	}
}

// consume reads the remainder of a stream after the first token.
func (p *Promoter) consume(ctx context.Context, events <-chan StreamEvent, builder *strings.Builder) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return "", fmt.Errorf("model stream closed without terminal event")
			}
			switch ev.Type {
			case StreamEventError:
				return "", ev.Err
			case StreamEventDone:
				return builder.String(), nil
			case StreamEventToken:
				builder.WriteString(ev.Content)
			}
		}
	}
}

// drain discards remaining events so the producing goroutine can exit.
func drain(events <-chan StreamEvent) {
	for range events {
	}
}
