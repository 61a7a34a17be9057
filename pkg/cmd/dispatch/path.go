package dispatch

import (
	"errors"
	"strings"

	"github.com/keshon/nuget-tracker/pkg/cmd"
)

// DefaultMaxPathDepth bounds sub-command descent. Platforms nest at most two
// levels below the root; anything deeper is malformed input.
const DefaultMaxPathDepth = 4

var ErrPathTooDeep = errors.New("sub-command path too deep")

// Path is a flattened sub-command chain.
type Path struct {
	Key     string
	Options []cmd.RawValue
	Depth   int
}

// ResolvePath walks nested options while each level holds exactly one
// option of sub-command kind, joining names into a dispatch key. Options
// holds the leaf level's values. Descending past maxDepth fails.
func ResolvePath(root string, opts []cmd.RawValue, maxDepth int) (Path, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxPathDepth
	}
	parts := make([]string, 0, 3)
	if s := strings.TrimSpace(root); s != "" {
		parts = append(parts, s)
	}

	depth := 0
	for len(opts) == 1 && opts[0].Kind.IsSubCommand() {
		if depth == maxDepth {
			return Path{}, ErrPathTooDeep
		}
		depth++
		parts = append(parts, strings.TrimSpace(opts[0].Name))
		opts = opts[0].Options
	}
	return Path{Key: strings.Join(parts, " "), Options: opts, Depth: depth}, nil
}
