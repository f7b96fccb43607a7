// Package digest renders a user's tracked threads (and optionally todos)
// into the text shown by watchers and thread listings.
package digest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vexx32/thread-tracker/internal/category"
	"github.com/vexx32/thread-tracker/internal/reply"
	"github.com/vexx32/thread-tracker/internal/storage"
	"github.com/vexx32/thread-tracker/internal/transport"
	logx "github.com/vexx32/thread-tracker/pkg/logx"
)

// Sort selects the ordering of category groups in the digest.
type Sort int

const (
	// SortInsertion orders groups by first appearance of their category.
	SortInsertion Sort = iota
	// SortByCategory orders groups alphabetically by category name.
	SortByCategory
)

// MaxPartChars is the platform's hard limit for a single message.
const MaxPartChars = 4096

// Options parameterizes one digest rendering.
type Options struct {
	GuildID        int64
	UserID         int64
	Categories     []string
	Sort           Sort
	IncludeTodos   bool
	ShowTimestamps bool
}

// ThreadResolution pairs a tracked thread with its resolver outcome, so the
// caller can observe reply-state transitions.
type ThreadResolution struct {
	Thread storage.TrackedThread
	Res    reply.Resolution
}

// Digest is a rendered digest, split into platform-sized parts.
type Digest struct {
	Parts       []string
	Resolutions []ThreadResolution
}

// Renderer builds digests from the store and the reply resolver.
//
// Rendering is deterministic for a fixed snapshot of the underlying data:
// the same threads, muses, todos, and reply states always produce
// byte-identical output. Watchers rely on this to avoid redundant edits.
type Renderer struct {
	store    storage.Store
	resolver *reply.Resolver
	log      logx.Logger
}

func NewRenderer(store storage.Store, resolver *reply.Resolver, log logx.Logger) *Renderer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Renderer{store: store, resolver: resolver, log: log}
}

// Render builds the digest for one user in one guild.
func (r *Renderer) Render(ctx context.Context, opts Options) (Digest, error) {
	threads, err := r.store.ListThreads(ctx, opts.GuildID, opts.UserID)
	if err != nil {
		return Digest{}, fmt.Errorf("listing threads: %w", err)
	}
	muses, err := r.store.ListMuses(ctx, opts.GuildID, opts.UserID)
	if err != nil {
		return Digest{}, fmt.Errorf("listing muses: %w", err)
	}

	var b strings.Builder
	var resolutions []ThreadResolution

	groups := groupThreads(threads, opts.Categories, opts.Sort)
	for _, g := range groups {
		if g.name != "" {
			b.WriteString("*" + g.name + "*\n")
		}
		for _, thread := range g.threads {
			res, err := r.resolver.Resolve(ctx, thread, muses)
			switch {
			case errors.Is(err, transport.ErrChannelUnavailable):
				// Stale thread; keep the line so the owner notices.
				res = reply.Resolution{Author: "(channel unavailable)"}
			case err != nil:
				r.log.Warn("resolving thread failed",
					logx.Int64("channel_id", thread.ChannelID), logx.Err(err))
				res = reply.Resolution{Author: "(unavailable)"}
			default:
				resolutions = append(resolutions, ThreadResolution{Thread: thread, Res: res})
			}
			b.WriteString(threadLine(thread, res, opts.ShowTimestamps))
		}
		b.WriteString("\n")
	}

	if opts.IncludeTodos {
		todos, err := r.store.ListTodos(ctx, opts.GuildID, opts.UserID)
		if err != nil {
			return Digest{}, fmt.Errorf("listing todos: %w", err)
		}
		renderTodos(&b, todos, opts.Categories, opts.Sort)
	}

	text := strings.TrimRight(b.String(), "\n")
	if text == "" {
		text = "No threads are currently being tracked."
	}

	return Digest{Parts: splitParts(text, MaxPartChars), Resolutions: resolutions}, nil
}

// ResolveAll resolves the reply state of every thread the user tracks,
// ignoring category filters. Threads whose channel cannot be read are
// skipped.
func (r *Renderer) ResolveAll(ctx context.Context, guildID, userID int64) ([]ThreadResolution, error) {
	threads, err := r.store.ListThreads(ctx, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	muses, err := r.store.ListMuses(ctx, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("listing muses: %w", err)
	}

	out := make([]ThreadResolution, 0, len(threads))
	for _, thread := range threads {
		res, err := r.resolver.Resolve(ctx, thread, muses)
		if err != nil {
			if !errors.Is(err, transport.ErrChannelUnavailable) {
				r.log.Warn("resolving thread failed",
					logx.Int64("channel_id", thread.ChannelID), logx.Err(err))
			}
			continue
		}
		out = append(out, ThreadResolution{Thread: thread, Res: res})
	}
	return out, nil
}

func threadLine(thread storage.TrackedThread, res reply.Resolution, showTimestamp bool) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("• #%d — ", thread.ChannelID))
	if res.Class.AwaitingReply() {
		b.WriteString("*" + res.Author + "*")
	} else {
		b.WriteString(res.Author)
	}
	if showTimestamp && !res.At.IsZero() {
		b.WriteString(" (" + res.At.UTC().Format("2006-01-02 15:04 UTC") + ")")
	}
	b.WriteString("\n")
	return b.String()
}

type group struct {
	name    string
	threads []storage.TrackedThread
}

// groupThreads filters threads against the requested categories and groups
// them by category, uncategorized last.
func groupThreads(threads []storage.TrackedThread, requested []string, order Sort) []group {
	byName := map[string]*group{}
	var named []*group
	var uncategorized *group

	for _, t := range threads {
		if !category.Matches(t.Category, requested) {
			continue
		}
		if t.Category == "" {
			if uncategorized == nil {
				uncategorized = &group{}
			}
			uncategorized.threads = append(uncategorized.threads, t)
			continue
		}
		key := strings.ToLower(t.Category)
		g, ok := byName[key]
		if !ok {
			g = &group{name: t.Category}
			byName[key] = g
			named = append(named, g)
		}
		g.threads = append(g.threads, t)
	}

	if order == SortByCategory {
		sort.Slice(named, func(i, j int) bool {
			return strings.ToLower(named[i].name) < strings.ToLower(named[j].name)
		})
	}

	out := make([]group, 0, len(named)+1)
	for _, g := range named {
		out = append(out, *g)
	}
	if uncategorized != nil {
		out = append(out, *uncategorized)
	}
	return out
}

// renderTodos appends the todo section. Todo categories keep their "!"
// marker in storage; headers display them without it.
func renderTodos(b *strings.Builder, todos []storage.Todo, requested []string, order Sort) {
	byName := map[string]*struct {
		name  string
		items []string
	}{}
	var named []string
	var uncategorized []string

	for _, td := range todos {
		if !category.Matches(td.Category, requested) {
			continue
		}
		if td.Category == "" {
			uncategorized = append(uncategorized, td.Content)
			continue
		}
		key := strings.ToLower(td.Category)
		g, ok := byName[key]
		if !ok {
			g = &struct {
				name  string
				items []string
			}{name: category.TrimTodoMarker(td.Category)}
			byName[key] = g
			named = append(named, key)
		}
		g.items = append(g.items, td.Content)
	}

	if order == SortByCategory {
		sort.Strings(named)
	}

	for _, key := range named {
		g := byName[key]
		b.WriteString("*To do — " + g.name + "*\n")
		for _, item := range g.items {
			b.WriteString("• " + item + "\n")
		}
		b.WriteString("\n")
	}
	if len(uncategorized) > 0 {
		b.WriteString("*To do*\n")
		for _, item := range uncategorized {
			b.WriteString("• " + item + "\n")
		}
		b.WriteString("\n")
	}
}

// splitParts breaks text into chunks that fit the platform message limit,
// cutting on line boundaries. Multi-part output is numbered so readers can
// tell the pieces apart.
func splitParts(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	// Reserve room for the "(part N/M)" header line.
	const headerRoom = 16
	budget := limit - headerRoom

	var chunks []string
	var cur strings.Builder
	for _, line := range strings.Split(text, "\n") {
		// A single oversized line is cut hard; it cannot fit anywhere.
		for len(line) > budget {
			chunks = append(chunks, flush(&cur))
			chunks = append(chunks, line[:budget])
			line = line[budget:]
		}
		if cur.Len()+len(line)+1 > budget {
			chunks = append(chunks, flush(&cur))
		}
		if cur.Len() > 0 {
			cur.WriteString("\n")
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, flush(&cur))
	}

	// Drop empty chunks produced by flushing an empty builder.
	parts := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			parts = append(parts, c)
		}
	}

	for i := range parts {
		parts[i] = fmt.Sprintf("(part %d/%d)\n%s", i+1, len(parts), parts[i])
	}
	return parts
}

func flush(b *strings.Builder) string {
	s := b.String()
	b.Reset()
	return s
}
