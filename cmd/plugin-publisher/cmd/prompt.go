package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/oshokin/plugin-publisher/internal/domain/release"
)

var errEmptyChangelog = errors.New("changelog cannot be empty")

// provided tells which request fields came from flags.
type provided struct {
	slug   bool
	bump   bool
	stable bool
}

// promptMissing asks for every request field that was not supplied through flags.
func promptMissing(req *release.Request, given provided) error {
	var fields []huh.Field

	if !given.slug {
		fields = append(fields, huh.NewInput().
			Title("Plugin slug").
			Description("Names the entry file and the folder inside the archive.").
			Value(&req.Slug).
			Validate(func(v string) error {
				if strings.TrimSpace(v) == "" {
					return fmt.Errorf("%w: slug is required", release.ErrInvalidRequest)
				}

				return nil
			}))
	}

	bump := string(req.Bump)
	if !given.bump {
		options := make([]huh.Option[string], 0, len(release.BumpKinds()))
		for _, kind := range release.BumpKinds() {
			options = append(options, huh.NewOption(bumpLabel(kind), string(kind)))
		}

		fields = append(fields, huh.NewSelect[string]().
			Title("Version bump").
			Options(options...).
			Value(&bump))
	}

	message := strings.Join(req.Changelog, "\n")
	if len(req.Changelog) == 0 {
		fields = append(fields, huh.NewText().
			Title("Changelog").
			Description("One entry per line.").
			Lines(6).
			Value(&message).
			Validate(func(v string) error {
				if strings.TrimSpace(v) == "" {
					return errEmptyChangelog
				}

				return nil
			}))
	}

	if !given.stable {
		fields = append(fields, huh.NewConfirm().
			Title("Mark this release as stable?").
			Affirmative("Stable").
			Negative("Beta").
			Value(&req.IsStable))
	}

	if len(fields) == 0 {
		return nil
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).WithShowHelp(true).Run(); err != nil {
		return err
	}

	req.Bump = release.BumpKind(bump)
	req.Changelog = strings.Split(message, "\n")

	return nil
}

func bumpLabel(kind release.BumpKind) string {
	switch kind {
	case release.BumpMajor:
		return "major (X.0.0), breaking changes"
	case release.BumpMinor:
		return "minor (0.X.0), new features"
	default:
		return "patch (0.0.X), bug fixes"
	}
}
