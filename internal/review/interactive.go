package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
)

const (
	PromptMerge   = "Merge"
	PromptDismiss = "Dismiss"
	PromptSkip    = "Skip"
	PromptQuit    = "Quit"
)

// Prompter asks the reviewer to pick one of items.
type Prompter interface {
	Select(label string, items []string) (string, error)
}

// Terminal prompts on the terminal with promptui.
type Terminal struct{}

func (Terminal) Select(label string, items []string) (string, error) {
	prompt := promptui.Select{
		Label: label,
		Items: items,
		Size:  len(items),
	}
	_, selected, err := prompt.Run()
	return selected, err
}

// Tally counts the decisions of an interactive session.
type Tally struct {
	Merged    int
	Dismissed int
	Skipped   int
}

// Interactive walks the pending candidates and applies the reviewer's
// choices. Ctrl-C ends the session without error.
func (s *Service) Interactive(ctx context.Context, p Prompter, reviewer string, limit int) (Tally, error) {
	var tally Tally

	candidates, err := s.Pending(ctx, limit)
	if err != nil {
		return tally, err
	}

	for i, c := range candidates {
		label := fmt.Sprintf("[%d/%d] job %d %q duplicates %d %q (similarity %.2f)",
			i+1, len(candidates),
			c.Job.ID, c.Job.TitleRaw,
			c.Canonical.ID, c.Canonical.TitleRaw,
			c.Map.Similarity,
		)

		selected, err := p.Select(label, []string{PromptMerge, PromptDismiss, PromptSkip, PromptQuit})
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return tally, nil
		}
		if err != nil {
			return tally, err
		}

		switch selected {
		case PromptMerge:
			if _, err := s.Merge(ctx, c.Job.ID, reviewer); err != nil {
				return tally, err
			}
			tally.Merged++
		case PromptDismiss:
			if err := s.Dismiss(ctx, c.Job.ID, reviewer); err != nil {
				return tally, err
			}
			tally.Dismissed++
		case PromptSkip:
			tally.Skipped++
		case PromptQuit:
			return tally, nil
		default:
			return tally, fmt.Errorf("invalid action: %s", selected)
		}
	}
	return tally, nil
}
