package rotation

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	kit "linkguard/internal/transport"
	"linkguard/pkg/logx"
)

const defaultGenerateConcurrency = 4

// Generator mints one invite link per source chat.
type Generator struct {
	client      ChannelClient
	concurrency int
	log         logx.Logger
	now         func() time.Time
}

func NewGenerator(client ChannelClient, concurrency int, log logx.Logger) *Generator {
	if concurrency <= 0 {
		concurrency = defaultGenerateConcurrency
	}
	return &Generator{client: client, concurrency: concurrency, log: log, now: time.Now}
}

// GenerateAll returns one result per source, in source order. A failing
// source is reported in its result and never affects the others.
func (g *Generator) GenerateAll(ctx context.Context, sources []SourceChat, ttlMinutes, userLimit int) []LinkResult {
	results := make([]LinkResult, len(sources))
	ttl := time.Duration(ttlMinutes) * time.Minute

	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for i, src := range sources {
		eg.Go(func() error {
			results[i] = g.generateOne(ctx, src, ttl, userLimit)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func (g *Generator) generateOne(ctx context.Context, src SourceChat, ttl time.Duration, userLimit int) LinkResult {
	if err := ctx.Err(); err != nil {
		return LinkResult{Source: src, Err: &GenerationError{Source: src, Kind: kit.KindTransient, Err: err}}
	}
	token, err := g.client.CreateInviteLink(ctx, src.ID, ttl, userLimit)
	if err == nil && token == "" {
		err = errors.New("empty invite link")
	}
	if err != nil {
		kind := kit.KindOf(err)
		if kind == kit.KindUnknown && ctx.Err() != nil {
			kind = kit.KindTransient
		}
		g.log.Warn("invite link failed",
			logx.String("source", src.ID),
			logx.String("kind", kind.String()),
			logx.Err(err),
		)
		return LinkResult{Source: src, Err: &GenerationError{Source: src, Kind: kind, Err: err}}
	}
	return LinkResult{Source: src, Link: &GeneratedLink{Source: src, Token: token, CreatedAt: g.now()}}
}
