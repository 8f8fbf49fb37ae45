// Package commands holds the chat command handlers. Each command is a small
// struct satisfying dispatch.Command; configuration (links, cue names) is
// injected at construction so handlers stay free of globals.
package commands

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"chattercast/dispatch"
	"chattercast/event"
	"chattercast/roster"
)

// Help lists the registered commands.
type Help struct{}

func (Help) Name() string            { return "help" }
func (Help) Cooldown() time.Duration { return 5 * time.Second }
func (Help) Help() string            { return "!help lists the available commands" }

func (Help) Execute(ctx context.Context, ev event.Event, env *dispatch.Env) error {
	names := env.Registry.Names()
	for i, n := range names {
		names[i] = "!" + n
	}
	env.Send(ctx, "Commands: "+strings.Join(names, ", "))
	return nil
}

// Shout narrates the rest of the message at shout volume.
type Shout struct{}

func (Shout) Name() string            { return "shout" }
func (Shout) Cooldown() time.Duration { return 10 * time.Second }
func (Shout) Help() string            { return "!shout <text> reads the text out loud, loudly" }

func (Shout) Execute(ctx context.Context, ev event.Event, env *dispatch.Env) error {
	_, rest, _ := strings.Cut(ev.Display, " ")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		env.Send(ctx, fmt.Sprintf("@%s give me something to shout", ev.Username))
		return nil
	}
	if env.Narrator == nil {
		return nil
	}
	_, err := env.Narrator.Shout(ctx, fmt.Sprintf("%s shouts %s", ev.Username, rest))
	return err
}

// Raffle draws a random viewer from the roster, excluding the invoker. An
// argument narrows the pool: "!raffle followers" or "!raffle subs".
type Raffle struct {
	Filter roster.Filter // default pool when no argument is given
}

func (Raffle) Name() string            { return "raffle" }
func (Raffle) Cooldown() time.Duration { return 5 * time.Second }
func (Raffle) Help() string            { return "!raffle [followers|subs] draws a random viewer" }

func (r Raffle) Execute(ctx context.Context, ev event.Event, env *dispatch.Env) error {
	if env.Roster == nil {
		return nil
	}
	filter := r.Filter
	_, arg, _ := strings.Cut(ev.Message, " ")
	switch strings.TrimSpace(arg) {
	case "followers":
		filter = roster.Followers
	case "subs", "subscribers":
		filter = roster.Subscribers
	case "all", "everyone":
		filter = roster.Anyone
	}
	pool := env.Roster.Eligible(filter, ev.Username)
	if len(pool) == 0 {
		env.Send(ctx, "Nobody is eligible for the raffle right now")
		return nil
	}
	winner := pool[rand.Intn(len(pool))]
	env.Send(ctx, fmt.Sprintf("The raffle winner is @%s!", winner))
	return nil
}

// Lurk acknowledges a viewer settling into lurk mode.
type Lurk struct{}

func (Lurk) Name() string            { return "lurk" }
func (Lurk) Cooldown() time.Duration { return 10 * time.Second }
func (Lurk) Help() string            { return "!lurk announces you are lurking" }

func (Lurk) Execute(ctx context.Context, ev event.Event, env *dispatch.Env) error {
	env.Send(ctx, fmt.Sprintf("@%s is settling into the shadows to lurk. Enjoy!", ev.Username))
	return nil
}

// Subs reports the channel's subscriber count.
type Subs struct{}

func (Subs) Name() string            { return "subs" }
func (Subs) Cooldown() time.Duration { return 10 * time.Second }
func (Subs) Help() string            { return "!subs shows the current subscriber count" }

func (Subs) Execute(ctx context.Context, ev event.Event, env *dispatch.Env) error {
	if env.Helix == nil {
		env.Send(ctx, "Subscriber info is not available right now")
		return nil
	}
	subs, err := env.Helix.ListSubscribers(ctx)
	if err != nil {
		env.Send(ctx, "Subscriber info is not available right now")
		return err
	}
	env.Send(ctx, fmt.Sprintf("%s has %d wonderful subscribers", env.Channel, len(subs)))
	return nil
}

// Discord replies with the community invite link.
type Discord struct {
	InviteURL string
}

func (Discord) Name() string            { return "discord" }
func (Discord) Cooldown() time.Duration { return 10 * time.Second }
func (Discord) Help() string            { return "!discord shows the community invite link" }

func (d Discord) Execute(ctx context.Context, ev event.Event, env *dispatch.Env) error {
	if d.InviteURL == "" {
		return nil
	}
	env.Send(ctx, "Join the community: "+d.InviteURL)
	return nil
}

// Hug hugs the named target, or a random viewer when none is given.
type Hug struct{}

func (Hug) Name() string            { return "hug" }
func (Hug) Cooldown() time.Duration { return 10 * time.Second }
func (Hug) Help() string            { return "!hug [target] hugs someone" }

func (Hug) Execute(ctx context.Context, ev event.Event, env *dispatch.Env) error {
	_, rest, _ := strings.Cut(ev.Message, " ")
	target := strings.TrimPrefix(strings.TrimSpace(rest), "@")
	if target == "" && env.Roster != nil {
		pool := env.Roster.Eligible(roster.Anyone, ev.Username)
		if len(pool) > 0 {
			target = pool[rand.Intn(len(pool))]
		}
	}
	if target == "" {
		env.Send(ctx, fmt.Sprintf("@%s hugs themselves. Self care!", ev.Username))
		return nil
	}
	env.Send(ctx, fmt.Sprintf("@%s gives @%s a big warm hug", ev.Username, target))
	return nil
}

// Braincells reports how many braincells the viewer has today.
type Braincells struct{}

func (Braincells) Name() string            { return "braincells" }
func (Braincells) Cooldown() time.Duration { return 10 * time.Second }
func (Braincells) Help() string            { return "!braincells counts your braincells" }

func (Braincells) Execute(ctx context.Context, ev event.Event, env *dispatch.Env) error {
	env.Send(ctx, fmt.Sprintf("@%s is working with %d braincells today", ev.Username, rand.Intn(101)))
	return nil
}

// Uptime reports how long the stream has been live.
type Uptime struct{}

func (Uptime) Name() string            { return "uptime" }
func (Uptime) Cooldown() time.Duration { return 5 * time.Second }
func (Uptime) Help() string            { return "!uptime shows how long the stream has been live" }

func (Uptime) Execute(ctx context.Context, ev event.Event, env *dispatch.Env) error {
	if env.Helix == nil {
		env.Send(ctx, "Uptime is not available right now")
		return nil
	}
	started, live, err := env.Helix.GetStreamStartedAt(ctx)
	if err != nil {
		env.Send(ctx, "Uptime is not available right now")
		return err
	}
	if !live {
		env.Send(ctx, fmt.Sprintf("%s is not live right now", env.Channel))
		return nil
	}
	env.Send(ctx, fmt.Sprintf("%s has been live for %s", env.Channel, formatUptime(time.Since(started))))
	return nil
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// Socials replies with the configured social links.
type Socials struct {
	Links string
}

func (Socials) Name() string            { return "socials" }
func (Socials) Cooldown() time.Duration { return 10 * time.Second }
func (Socials) Help() string            { return "!socials shows where else to find the streamer" }

func (s Socials) Execute(ctx context.Context, ev event.Event, env *dispatch.Env) error {
	if s.Links == "" {
		return nil
	}
	env.Send(ctx, "Find us elsewhere: "+s.Links)
	return nil
}
