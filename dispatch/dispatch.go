// Package dispatch routes normalized chat events to their handlers: explicit
// commands behind the cooldown ledger, trigger-phrase sound cues, numeric vote
// responses while a session is open, and text-to-speech narration for
// everything else. Handler panics are contained here so one bad command never
// takes down the event loop.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chattercast/cooldown"
	"chattercast/event"
	"chattercast/overlay"
	"chattercast/roster"
	"chattercast/sound"
	"chattercast/telemetry"
	"chattercast/tts"
	"chattercast/twitchapi"
	"chattercast/vote"
)

// Command is an explicit chat command. Execute runs with the shared Env;
// Cooldown is enforced per user by the dispatcher before Execute is called.
type Command interface {
	Name() string
	Cooldown() time.Duration
	Help() string
	Execute(ctx context.Context, ev event.Event, env *Env) error
}

// Env bundles the collaborators commands act on. Reply sends a line to chat;
// a nil Reply makes replies no-ops so tests can omit it.
type Env struct {
	Roster    *roster.Roster
	Votes     *vote.Session
	Cooldowns *cooldown.Ledger
	Helix     *twitchapi.HelixClient
	Narrator  tts.Narrator
	Sounds    *sound.Board
	Overlay   *overlay.Hub
	Registry  *Registry

	Channel     string
	Reply       func(ctx context.Context, text string) error
	IsModerator func(username string) bool
}

// Send replies to chat, logging instead of failing when the transport errors.
func (e *Env) Send(ctx context.Context, text string) {
	if e.Reply == nil {
		return
	}
	if err := e.Reply(ctx, text); err != nil {
		slog.Warn("chat reply failed", slog.Any("err", err))
	}
}

// Moderator reports whether username may use privileged commands. The channel
// owner is always a moderator.
func (e *Env) Moderator(username string) bool {
	if strings.EqualFold(username, e.Channel) {
		return true
	}
	return e.IsModerator != nil && e.IsModerator(username)
}

// AnnounceResults broadcasts a finished vote's tally. Connected overlay
// consumers get the structured payload; without any, the summary goes to chat.
func (e *Env) AnnounceResults(ctx context.Context, res *vote.Results) {
	if res == nil {
		return
	}
	telemetry.SetVoteActive(false)
	if e.Overlay != nil && e.Overlay.Active() {
		e.Overlay.Publish("vote_end", res)
		return
	}
	e.Send(ctx, FormatResults(res))
}

// FormatResults renders a tally line like
// "Vote ended: best color? red: 2, blue: 1. Winner: red". Ties list every
// leading option.
func FormatResults(res *vote.Results) string {
	var b strings.Builder
	b.WriteString("Vote ended: ")
	b.WriteString(res.Question)
	best := 0
	for i, opt := range res.Options {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, " %s: %d", opt, res.Counts[i])
		if res.Counts[i] > best {
			best = res.Counts[i]
		}
	}
	if best == 0 {
		b.WriteString(". No votes were cast")
		return b.String()
	}
	var winners []string
	for i, c := range res.Counts {
		if c == best {
			winners = append(winners, res.Options[i])
		}
	}
	b.WriteString(". Winner: ")
	b.WriteString(strings.Join(winners, ", "))
	return b.String()
}

// Registry maps command names to handlers.
type Registry struct {
	mu   sync.RWMutex
	cmds map[string]Command
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{cmds: make(map[string]Command)}
}

// Register adds a command, replacing any prior handler of the same name.
func (r *Registry) Register(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds[strings.ToLower(cmd.Name())] = cmd
}

// Get looks up a command by name.
func (r *Registry) Get(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.cmds[strings.ToLower(name)]
	return cmd, ok
}

// Names returns all registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.cmds))
	for name := range r.cmds {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatcher routes events. TriggerPhrase and TriggerCue configure the
// phrase-to-sound shortcut; empty TriggerPhrase disables it.
type Dispatcher struct {
	Env           *Env
	TriggerPhrase string
	TriggerCue    string

	log *slog.Logger
}

// NewDispatcher returns a dispatcher over env.
func NewDispatcher(env *Env) *Dispatcher {
	return &Dispatcher{
		Env: env,
		log: slog.Default().With(slog.String("component", "dispatch")),
	}
}

// Dispatch routes one event to completion. Routing order: explicit command,
// trigger phrase, numeric vote response during an active session, narration.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.Event) {
	telemetry.CountEvent(string(ev.Platform))
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "dispatch", "dispatch-event",
		telemetry.PlatformAttr(string(ev.Platform)))
	defer span.End()
	telemetry.TimeFunc(telemetry.DispatchDuration, func() {
		d.route(ctx, ev)
	})
}

func (d *Dispatcher) route(ctx context.Context, ev event.Event) {
	env := d.Env

	if strings.HasPrefix(ev.Message, "!") {
		name, _, _ := strings.Cut(strings.TrimPrefix(ev.Message, "!"), " ")
		if cmd, ok := env.Registry.Get(name); ok {
			d.runCommand(ctx, cmd, ev)
			return
		}
		// Unknown bang-words fall through to narration.
	}

	// The cue fires on the exact phrase only; messages merely containing it
	// are ordinary chatter.
	if d.TriggerPhrase != "" && ev.Message == d.TriggerPhrase {
		if env.Sounds != nil {
			env.Sounds.Play(ctx, d.TriggerCue, true)
		}
		return
	}

	if env.Votes != nil && env.Votes.Active() {
		// Bare positive integers only; signed forms are chatter.
		if msg := strings.TrimSpace(ev.Message); msg != "" && msg[0] >= '0' && msg[0] <= '9' {
			if choice, err := strconv.Atoi(msg); err == nil {
				d.recordVote(ctx, ev, choice)
				return
			}
		}
	}

	d.narrate(ctx, ev)
}

func (d *Dispatcher) runCommand(ctx context.Context, cmd Command, ev event.Event) {
	env := d.Env
	if ok, remaining := env.Cooldowns.TryConsume(ev.Username, cmd.Name(), cmd.Cooldown()); !ok {
		telemetry.CountCooldownRejection(cmd.Name())
		env.Send(ctx, fmt.Sprintf("@%s !%s is on cooldown, %.1fs left", ev.Username, cmd.Name(), remaining.Seconds()))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			telemetry.CountPanic()
			d.log.Error("command panicked",
				slog.String("command", cmd.Name()),
				slog.String("username", ev.Username),
				slog.Any("panic", r))
		}
	}()
	telemetry.CountCommand(cmd.Name())
	if err := cmd.Execute(ctx, ev, env); err != nil {
		d.log.Error("command failed",
			slog.String("command", cmd.Name()),
			slog.String("username", ev.Username),
			slog.Any("err", err))
	}
}

func (d *Dispatcher) recordVote(ctx context.Context, ev event.Event, choice int) {
	env := d.Env
	err := env.Votes.Respond(ev.Username, choice, time.Now())
	switch {
	case err == nil:
		telemetry.CountVote()
		if env.Overlay != nil {
			if snap, ok := env.Votes.View(); ok {
				env.Overlay.Publish("vote_update", snap)
			}
		}
	case err == vote.ErrExpired:
		if res, done := env.Votes.CheckExpired(time.Now()); done {
			env.AnnounceResults(ctx, res)
		}
	case err == vote.ErrChoiceRange:
		// Out-of-range numbers are ignored, not answered.
		d.log.Debug("vote response out of range",
			slog.String("username", ev.Username), slog.Int("choice", choice))
	}
}

func (d *Dispatcher) narrate(ctx context.Context, ev event.Event) {
	if d.Env.Narrator == nil {
		return
	}
	if _, err := d.Env.Narrator.Speak(ctx, fmt.Sprintf("%s said %s", ev.Username, ev.Display)); err != nil {
		d.log.Warn("narration failed", slog.String("username", ev.Username), slog.Any("err", err))
	}
}
