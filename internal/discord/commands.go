package discord

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	maxDescription = 100
	// Discord allows a command, one sub-command group and one sub-command.
	maxKeyDepth = 3
)

var ErrDefinitionConflict = errors.New("command cannot be expressed as a slash command")

// Definitions builds slash command definitions from the registry. The first
// token of a key names the top-level command; further tokens become
// sub-command groups and sub-commands. autocomplete marks parameters whose
// values are suggested while typing.
func Definitions(reg *cmd.Registry, autocomplete func(*cmd.Parameter) bool) ([]*discordgo.ApplicationCommand, error) {
	var (
		errs  []error
		top   = make(map[string]*discordgo.ApplicationCommand)
		leafs = make(map[string]bool)
		seen  = make(map[string]bool)
	)

	for _, c := range reg.Commands() {
		key := c.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		if best, ok := reg.Lookup(key); ok {
			c = best
		}

		tokens := strings.Fields(key)
		if len(tokens) == 0 || len(tokens) > maxKeyDepth {
			errs = append(errs, fmt.Errorf("%q: %w", key, ErrDefinitionConflict))
			continue
		}

		root, exists := top[tokens[0]]
		switch {
		case len(tokens) == 1 && exists:
			errs = append(errs, fmt.Errorf("%q collides with a command group: %w", key, ErrDefinitionConflict))
			continue
		case len(tokens) > 1 && leafs[tokens[0]]:
			errs = append(errs, fmt.Errorf("%q is nested under a command: %w", key, ErrDefinitionConflict))
			continue
		}
		if !exists {
			root = &discordgo.ApplicationCommand{
				Name:        tokens[0],
				Description: describe(groupSummary(c, len(tokens)-1), tokens[0]),
				Type:        discordgo.ChatApplicationCommand,
			}
			top[tokens[0]] = root
		}

		if len(tokens) == 1 {
			leafs[tokens[0]] = true
			root.Description = describe(c.Summary, c.Name)
			root.Options = parameterOptions(c, autocomplete)
			continue
		}

		sub := &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        tokens[len(tokens)-1],
			Description: describe(c.Summary, c.Name),
			Options:     parameterOptions(c, autocomplete),
		}
		if len(tokens) == 2 {
			root.Options = append(root.Options, sub)
			continue
		}

		group := findOption(root.Options, tokens[1])
		if group == nil {
			group = &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
				Name:        tokens[1],
				Description: describe(groupSummary(c, 1), tokens[1]),
			}
			root.Options = append(root.Options, group)
		} else if group.Type != discordgo.ApplicationCommandOptionSubCommandGroup {
			errs = append(errs, fmt.Errorf("%q collides with sub-command %q: %w", key, tokens[1], ErrDefinitionConflict))
			continue
		}
		group.Options = append(group.Options, sub)
	}

	defs := make([]*discordgo.ApplicationCommand, 0, len(top))
	for _, def := range top {
		defs = append(defs, def)
	}
	slices.SortFunc(defs, func(a, b *discordgo.ApplicationCommand) int { return strings.Compare(a.Name, b.Name) })
	return defs, errors.Join(errs...)
}

// groupSummary returns the summary of the module that owns the group n
// levels above the command.
func groupSummary(c *cmd.Command, n int) string {
	m := c.Module
	for i := 1; i < n && m != nil; i++ {
		m = m.Parent
	}
	if m == nil {
		return ""
	}
	return m.Summary
}

func findOption(opts []*discordgo.ApplicationCommandOption, name string) *discordgo.ApplicationCommandOption {
	for _, o := range opts {
		if o.Name == name {
			return o
		}
	}
	return nil
}

func parameterOptions(c *cmd.Command, autocomplete func(*cmd.Parameter) bool) []*discordgo.ApplicationCommandOption {
	var opts []*discordgo.ApplicationCommandOption
	for _, p := range c.Parameters {
		o := &discordgo.ApplicationCommandOption{
			Type:        optionType(p),
			Name:        p.Name,
			Description: describe(p.Summary, p.Name),
			Required:    !p.IsOptional,
		}
		if autocomplete != nil && o.Type == discordgo.ApplicationCommandOptionString && autocomplete(p) {
			o.Autocomplete = true
		}
		opts = append(opts, o)
	}
	// Discord rejects optional options placed before required ones.
	slices.SortStableFunc(opts, func(a, b *discordgo.ApplicationCommandOption) int {
		switch {
		case a.Required == b.Required:
			return 0
		case a.Required:
			return -1
		}
		return 1
	})
	return opts
}

func optionType(p *cmd.Parameter) discordgo.ApplicationCommandOptionType {
	t := p.Type
	if t == nil || p.IsMultiple || p.IsRemainder {
		return discordgo.ApplicationCommandOptionString
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return discordgo.ApplicationCommandOptionBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return discordgo.ApplicationCommandOptionInteger
	case reflect.Float32, reflect.Float64:
		return discordgo.ApplicationCommandOptionNumber
	}
	return discordgo.ApplicationCommandOptionString
}

func describe(summary, fallback string) string {
	s := strings.TrimSpace(summary)
	if s == "" {
		s = fallback
	}
	if r := []rune(s); len(r) > maxDescription {
		s = string(r[:maxDescription-3]) + "..."
	}
	return s
}

// --- Guild sync ---

// CommandAPI is the part of *discordgo.Session used to manage guild commands.
type CommandAPI interface {
	ApplicationCommands(appID, guildID string, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	ApplicationCommandCreate(appID string, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error
}

// syncer pushes command definitions to guilds, skipping definitions whose
// digest matches the one cached from the previous push.
type syncer struct {
	api     CommandAPI
	cache   *hashCache
	limiter *rate.Limiter
	log     zerolog.Logger
}

func newSyncer(api CommandAPI, cache *hashCache, limiter *rate.Limiter, log zerolog.Logger) *syncer {
	return &syncer{api: api, cache: cache, limiter: limiter, log: log}
}

// SyncAll syncs every guild, a few at a time.
func (s *syncer) SyncAll(ctx context.Context, appID string, guildIDs []string, defs []*discordgo.ApplicationCommand) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for _, id := range guildIDs {
		g.Go(func() error {
			if err := s.Sync(ctx, appID, id, defs); err != nil {
				return fmt.Errorf("guild %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Sync deletes commands the bot no longer defines and registers changed ones.
func (s *syncer) Sync(ctx context.Context, appID, guildID string, defs []*discordgo.ApplicationCommand) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	remote, err := s.api.ApplicationCommands(appID, guildID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("list commands: %w", err)
	}

	local := make(map[string]bool, len(defs))
	for _, d := range defs {
		local[d.Name] = true
	}
	registered := make(map[string]bool, len(remote))
	hashes := s.cache.load(guildID)
	log := s.log.With().Str("guild", guildID).Logger()

	var errs []error
	for _, rc := range remote {
		if local[rc.Name] {
			registered[rc.Name] = true
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := s.api.ApplicationCommandDelete(appID, guildID, rc.ID, discordgo.WithContext(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", rc.Name, err))
			continue
		}
		delete(hashes, rc.Name)
		log.Info().Str("command", rc.Name).Msg("obsolete command deleted")
	}

	for _, d := range defs {
		h := hashCommand(d)
		if registered[d.Name] && hashes[d.Name] == h {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := s.api.ApplicationCommandCreate(appID, guildID, d, discordgo.WithContext(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("register %s: %w", d.Name, err))
			continue
		}
		hashes[d.Name] = h
		log.Info().Str("command", d.Name).Msg("command registered")
	}

	if err := s.cache.save(guildID, hashes); err != nil {
		errs = append(errs, fmt.Errorf("save hashes: %w", err))
	}
	return errors.Join(errs...)
}

// Clear removes every command of the bot from a guild.
func (s *syncer) Clear(ctx context.Context, appID, guildID string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	remote, err := s.api.ApplicationCommands(appID, guildID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("list commands: %w", err)
	}
	var errs []error
	for _, rc := range remote {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := s.api.ApplicationCommandDelete(appID, guildID, rc.ID, discordgo.WithContext(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", rc.Name, err))
		}
	}
	if err := s.cache.save(guildID, nil); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
