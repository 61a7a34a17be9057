package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/keshon/nuget-tracker/pkg/cmd/dispatch"
)

// console prints replies as plain text. Every invocation it sees is a
// free-text one, so Defer and follow-ups never reach it.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) SendDirect(_ context.Context, _ *cmd.Invocation, msg cmd.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return render(c.out, msg)
}

func (c *console) Defer(context.Context, *cmd.Invocation) error { return nil }

func (c *console) SendFollowUp(ctx context.Context, inv *cmd.Invocation, msg cmd.Message) error {
	return c.SendDirect(ctx, inv, msg)
}

// report prints every failed result, unknown commands included.
func (c *console) report(_ context.Context, _ *cmd.Invocation, res cmd.Result) {
	if res.IsSuccess() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "! %s: %s\n", res.Kind, res.Reason)
}

func render(w io.Writer, msg cmd.Message) error {
	var b strings.Builder
	if msg.Content != "" {
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	if e := msg.Embed; e != nil {
		if e.Author != "" {
			fmt.Fprintf(&b, "[%s]\n", e.Author)
		}
		if e.Title != "" {
			fmt.Fprintf(&b, "== %s ==\n", e.Title)
		}
		if e.Description != "" {
			b.WriteString(e.Description)
			b.WriteString("\n")
		}
		for _, f := range e.Fields {
			fmt.Fprintf(&b, "%s\n%s\n", f.Name, f.Value)
		}
		if e.Footer != "" {
			fmt.Fprintf(&b, "-- %s\n", e.Footer)
		}
	}
	for _, f := range msg.Files {
		fmt.Fprintf(&b, "--- %s ---\n", f.Name)
		if f.Reader != nil {
			if _, err := io.Copy(&b, f.Reader); err != nil {
				return fmt.Errorf("read attachment %s: %w", f.Name, err)
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// caller is who console invocations run as.
type caller struct {
	UserID  string
	GuildID string
	Admin   bool
}

func (c *console) invocation(who caller, input string) *cmd.Invocation {
	inv := cmd.NewInvocation(cmd.SurfaceText, c)
	inv.UserID = who.UserID
	inv.Username = who.UserID
	inv.GuildID = who.GuildID
	inv.ChannelID = "console"
	inv.IsAdmin = who.Admin
	inv.Input = input
	return inv
}

// repl executes one command per input line until EOF or "exit".
func (c *console) repl(ctx context.Context, d *dispatch.Dispatcher, who caller, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		if _, err := io.WriteString(c.out, "> "); err != nil {
			return err
		}
		if !sc.Scan() {
			_, _ = io.WriteString(c.out, "\n")
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		d.ExecuteText(ctx, c.invocation(who, line), line)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
