package release

import (
	"fmt"
	"strings"
)

// Request is everything an operator supplies for a single publish run.
type Request struct {
	// ProjectPath is the plugin directory.
	ProjectPath string
	// Slug is the plugin identifier.
	Slug string
	// Bump selects the next version.
	Bump BumpKind
	// Changelog holds one entry per line, in the order given.
	Changelog []string
	// IsStable marks the new version as suitable for default update channels.
	IsStable bool
}

// Validate normalizes the request and reports the first problem found.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.ProjectPath) == "" {
		return fmt.Errorf("%w: project path is required", ErrInvalidRequest)
	}

	if strings.TrimSpace(r.Slug) == "" {
		return fmt.Errorf("%w: slug is required", ErrInvalidRequest)
	}

	kind, err := ParseBumpKind(string(r.Bump))
	if err != nil {
		return err
	}

	r.Bump = kind

	lines := make([]string, 0, len(r.Changelog))
	for _, line := range r.Changelog {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) == 0 {
		return fmt.Errorf("%w: changelog cannot be empty", ErrInvalidRequest)
	}

	r.Changelog = lines

	return nil
}
