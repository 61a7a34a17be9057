// Package discord connects the command dispatcher to a Discord gateway
// session: slash commands, prefixed messages and autocomplete.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/nuget-tracker/internal/config"
	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/keshon/nuget-tracker/pkg/cmd/dispatch"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const autocompleteTimeout = 2500 * time.Millisecond

// Options configure a Bot.
type Options struct {
	Config     *config.Config
	Dispatcher *dispatch.Dispatcher
	Search     Searcher
	Packages   PackageLister
	Log        zerolog.Logger
}

// Bot is a Discord bot
type Bot struct {
	cfg       *config.Config
	dg        *discordgo.Session
	disp      *dispatch.Dispatcher
	transport *Transport
	completer *completer
	cache     *hashCache
	syncer    *syncer
	defs      []*discordgo.ApplicationCommand
	log       zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	guilds map[string]bool
}

// New creates the session and slash definitions. Nothing connects until Run.
func New(opts Options) (*Bot, error) {
	if err := opts.Config.RequireToken(); err != nil {
		return nil, err
	}
	dg, err := discordgo.New("Bot " + opts.Config.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	log := opts.Log.With().Str("component", "discord").Logger()
	defs, err := Definitions(opts.Dispatcher.Registry(), func(p *cmd.Parameter) bool { return IsAutocompleted(p.Name) })
	if err != nil {
		log.Warn().Err(err).Msg("some commands have no slash definition")
	}

	cache, err := openHashCache(opts.Config.CommandCachePath, log)
	if err != nil {
		return nil, fmt.Errorf("open command cache: %w", err)
	}

	return &Bot{
		cfg:       opts.Config,
		dg:        dg,
		disp:      opts.Dispatcher,
		transport: NewTransport(dg),
		completer: &completer{search: opts.Search, store: opts.Packages},
		cache:     cache,
		syncer:    newSyncer(dg, cache, rate.NewLimiter(rate.Every(500*time.Millisecond), 2), log),
		defs:      defs,
		log:       log,
		ctx:       context.Background(),
		guilds:    make(map[string]bool),
	}, nil
}

// Latency is the gateway heartbeat round trip.
func (b *Bot) Latency() time.Duration {
	return b.dg.HeartbeatLatency()
}

// Run connects to Discord and serves events until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onMessageCreate)
	b.dg.AddHandler(b.onInteractionCreate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, cleaning up")

	b.disp.Wait()
	return errors.Join(b.dg.Close(), b.cache.Close())
}

func (b *Bot) context() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}

// markGuild records a guild and reports whether it was new.
func (b *Bot) markGuild(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.guilds[id] {
		return false
	}
	b.guilds[id] = true
	return true
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	var pending []string
	for _, g := range r.Guilds {
		if !b.markGuild(g.ID) {
			continue
		}
		if b.cfg.IsBlacklisted(g.ID) {
			b.leave(g.ID)
			continue
		}
		pending = append(pending, g.ID)
	}

	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord bot is running")

	if !b.cfg.InitSlashCommands {
		b.log.Info().Msg("slash command registration skipped")
		return
	}
	appID := applicationID(r)
	go func() {
		if err := b.syncer.SyncAll(b.context(), appID, pending, b.defs); err != nil {
			b.log.Error().Err(err).Msg("slash command sync failed")
		}
	}()
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if !b.markGuild(g.ID) {
		return
	}
	b.log.Info().Str("guild", g.ID).Str("name", g.Name).Msg("bot added to guild")

	if b.cfg.IsBlacklisted(g.ID) {
		b.leave(g.ID)
		return
	}
	if !b.cfg.InitSlashCommands || s.State.User == nil {
		return
	}
	go func() {
		if err := b.syncer.Sync(b.context(), s.State.User.ID, g.ID, b.defs); err != nil {
			b.log.Error().Err(err).Str("guild", g.ID).Msg("slash command sync failed")
		}
	}()
}

// leave removes the bot's commands from a blacklisted guild and leaves it.
func (b *Bot) leave(guildID string) {
	log := b.log.With().Str("guild", guildID).Logger()
	log.Info().Msg("leaving blacklisted guild")
	if u := b.dg.State.User; u != nil {
		if err := b.syncer.Clear(b.context(), u.ID, guildID); err != nil {
			log.Warn().Err(err).Msg("failed to remove commands")
		}
	}
	if err := b.dg.GuildLeave(guildID); err != nil {
		log.Error().Err(err).Msg("failed to leave guild")
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" || b.cfg.IsBlacklisted(m.GuildID) {
		return
	}
	input, ok := strings.CutPrefix(m.Content, b.cfg.CommandPrefix)
	if !ok || strings.TrimSpace(input) == "" {
		return
	}

	inv := cmd.NewInvocation(cmd.SurfaceText, b.transport)
	inv.UserID = m.Author.ID
	inv.Username = m.Author.Username
	inv.GuildID = m.GuildID
	inv.ChannelID = m.ChannelID
	inv.IsAdmin = memberIsAdmin(s.State, m.GuildID, m.Member, m.Author.ID)
	inv.Input = input
	inv.Data = m

	b.disp.ExecuteText(b.context(), inv, input)
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID != "" && b.cfg.IsBlacklisted(i.GuildID) {
		return
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		inv := cmd.NewInvocation(cmd.SurfaceInteraction, b.transport)
		fillInteractionCaller(inv, i)
		inv.Input = commandPath(data)
		b.disp.ExecuteInteraction(b.context(), inv, dispatch.Interaction{
			Name:    data.Name,
			Options: rawOptions(data.Options),
		})

	case discordgo.InteractionApplicationCommandAutocomplete:
		b.autocomplete(s, i)
	}
}

func (b *Bot) autocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	focused := focusedOption(data.Options)
	if focused == nil {
		return
	}
	ctx, cancel := context.WithTimeout(b.context(), autocompleteTimeout)
	defer cancel()

	typed, _ := focused.Value.(string)
	choices, err := b.completer.choices(ctx, i.GuildID, commandPath(data), focused.Name, typed)
	if err != nil {
		b.log.Warn().Err(err).Str("command", data.Name).Msg("autocomplete failed")
	}
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}, discordgo.WithContext(ctx))
	if err != nil {
		b.log.Debug().Err(err).Msg("autocomplete response rejected")
	}
}

func fillInteractionCaller(inv *cmd.Invocation, i *discordgo.InteractionCreate) {
	inv.GuildID = i.GuildID
	inv.ChannelID = i.ChannelID
	inv.IsAdmin = interactionIsAdmin(i.Interaction)
	inv.Data = i
	switch {
	case i.Member != nil && i.Member.User != nil:
		inv.UserID, inv.Username = i.Member.User.ID, i.Member.User.Username
	case i.User != nil:
		inv.UserID, inv.Username = i.User.ID, i.User.Username
	}
}

func applicationID(r *discordgo.Ready) string {
	if r.Application != nil && r.Application.ID != "" {
		return r.Application.ID
	}
	return r.User.ID
}
