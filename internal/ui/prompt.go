package ui

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/manifoldco/promptui"
)

// ErrCancelled is returned when the user aborts a prompt
var ErrCancelled = errors.New("operation cancelled by user")

// ConfirmPrompt asks a yes/no confirmation question
func ConfirmPrompt(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}

	result, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		if errors.Is(err, promptui.ErrInterrupt) {
			return false, ErrCancelled
		}
		return false, err
	}

	return strings.EqualFold(result, "y"), nil
}

// SelectPrompt presents a searchable list and returns the chosen item
func SelectPrompt(label string, items []string) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("nothing to select")
	}

	prompt := promptui.Select{
		Label:    label,
		Items:    items,
		Size:     min(10, len(items)),
		Searcher: fuzzySearcher(items),
	}

	_, result, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return "", ErrCancelled
		}
		return "", err
	}

	return result, nil
}

func fuzzySearcher(items []string) func(input string, index int) bool {
	return func(input string, index int) bool {
		if index < 0 || index >= len(items) {
			return false
		}
		input = strings.TrimSpace(input)
		if input == "" {
			return true
		}
		return fuzzy.MatchNormalizedFold(input, items[index])
	}
}

// Suggest returns up to limit candidates closest to query, best match first
func Suggest(query string, candidates []string, limit int) []string {
	ranks := fuzzy.RankFindNormalizedFold(query, candidates)
	sort.Sort(ranks)

	out := make([]string, 0, min(limit, len(ranks)))
	for _, r := range ranks {
		if len(out) == limit {
			break
		}
		out = append(out, r.Target)
	}
	return out
}
