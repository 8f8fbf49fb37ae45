package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chattercast/dispatch"
	"chattercast/event"
	"chattercast/telemetry"
	"chattercast/vote"
)

// Vote starts or ends a poll. Only moderators and the channel owner may use
// it. Start bodies look like "!vote best color? 1. red 2. blue"; "!vote end"
// finalizes early.
type Vote struct{}

func (Vote) Name() string            { return "vote" }
func (Vote) Cooldown() time.Duration { return 30 * time.Second }
func (Vote) Help() string {
	return "!vote <question>? 1. <option> 2. <option> starts a poll; !vote end finishes it"
}

func (v Vote) Execute(ctx context.Context, ev event.Event, env *dispatch.Env) error {
	if !env.Moderator(ev.Username) {
		env.Send(ctx, fmt.Sprintf("@%s only moderators can run votes", ev.Username))
		return nil
	}
	_, body, _ := strings.Cut(ev.Display, " ")
	body = strings.TrimSpace(body)

	if strings.EqualFold(body, "end") {
		res, err := env.Votes.Finish()
		if err != nil {
			env.Send(ctx, "There is no vote to end")
			return nil
		}
		env.AnnounceResults(ctx, res)
		return nil
	}

	prior, err := env.Votes.Start(ev.Username, body, time.Now())
	switch err {
	case nil:
	case vote.ErrActive:
		env.Send(ctx, "A vote is already running, wait for it to finish")
		return nil
	case vote.ErrTooFewOptions:
		env.Send(ctx, "Usage: "+v.Help())
		return nil
	default:
		return err
	}
	if prior != nil {
		// The previous session had expired unnoticed; settle it first.
		env.AnnounceResults(ctx, prior)
	}
	telemetry.SetVoteActive(true)
	v.broadcastStart(ctx, env)
	return nil
}

// broadcastStart announces the new poll: overlay when a consumer is
// connected, a native channel poll otherwise, plain chat as the last resort.
func (Vote) broadcastStart(ctx context.Context, env *dispatch.Env) {
	snap, ok := env.Votes.View()
	if !ok {
		return
	}
	if env.Overlay != nil && env.Overlay.Active() {
		env.Overlay.Publish("vote_start", snap)
		return
	}
	if env.Helix != nil {
		window := time.Until(snap.EndsAt)
		err := env.Helix.CreatePoll(ctx, snap.Question, snap.Options, window)
		if err == nil {
			return
		}
		slog.Warn("native poll creation failed, falling back to chat", slog.Any("err", err))
	}
	var b strings.Builder
	b.WriteString("Vote now! ")
	b.WriteString(snap.Question)
	for i, opt := range snap.Options {
		fmt.Fprintf(&b, " %d. %s", i+1, opt)
	}
	b.WriteString(" (type the number in chat)")
	env.Send(ctx, b.String())
}
