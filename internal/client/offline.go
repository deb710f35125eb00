package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Offline-flow steps. The flow is a linear three-step conversation served
// entirely from the local replica; nothing said here is ever replayed to
// the server after reconnect.
const (
	stepIdle      = 0 // any input produces the count prompt
	stepConfirm   = 1 // awaiting yes/no on listing the recipes
	stepSelection = 2 // awaiting a numeric selection from the listing
)

// Affirmative and negative term sets for the confirmation step. Matching
// is case-insensitive substring containment.
var (
	affirmatives = []string{"yes", "yeah", "yep", "sure", "ok"}
	negatives    = []string{"no", "nope", "nah"}
)

// OfflineFlow is the degraded conversation used while disconnected. It is
// driven from the session's single event loop, so it needs no locking;
// the current step is explicit state, never an implicit closure variable.
type OfflineFlow struct {
	replica *Replica
	step    int
	listing []LocalRecipe
	titles  cases.Caser
}

// NewOfflineFlow constructs the flow over the given replica.
func NewOfflineFlow(replica *Replica) *OfflineFlow {
	return &OfflineFlow{
		replica: replica,
		titles:  cases.Title(language.English, cases.NoLower),
	}
}

// Reset returns the flow to the idle step, e.g. when the channel comes
// back up.
func (f *OfflineFlow) Reset() {
	f.step = stepIdle
	f.listing = nil
}

// Handle advances the flow by one user input and returns the reply. Input
// errors (unrecognized confirmation, bad selection) are recoverable: the
// flow re-prompts without corrupting its state. Replica errors surface to
// the caller.
func (f *OfflineFlow) Handle(ctx context.Context, input string) (string, error) {
	switch f.step {
	case stepConfirm:
		return f.confirm(ctx, input)
	case stepSelection:
		return f.selection(input)
	default:
		return f.prompt(ctx)
	}
}

// prompt answers any input while idle with a count of locally available
// recipes and a yes/no question.
func (f *OfflineFlow) prompt(ctx context.Context) (string, error) {
	count, err := f.replica.Count(ctx)
	if err != nil {
		return "", err
	}
	f.step = stepConfirm
	return fmt.Sprintf("It looks like we're offline. I still have %d recipes stored locally. Would you like to see them? (yes/no)", count), nil
}

// confirm handles the yes/no answer. Affirmative enumerates the listing
// and moves to selection; negative acknowledges and resets; anything else
// re-prompts and stays put.
func (f *OfflineFlow) confirm(ctx context.Context, input string) (string, error) {
	in := strings.ToLower(input)
	switch {
	case containsAny(in, affirmatives):
		listing, err := f.replica.List(ctx)
		if err != nil {
			return "", err
		}
		f.listing = listing
		if len(listing) == 0 {
			f.step = stepIdle
			return "I have no recipes stored locally yet. Ask me again once we've cooked together online.", nil
		}
		f.step = stepSelection
		var b strings.Builder
		b.WriteString("Here's what I have. Reply with a number to see the recipe:\n")
		for i, rec := range listing {
			fmt.Fprintf(&b, "%d. %s\n", i+1, f.titles.String(rec.Title))
		}
		return b.String(), nil
	case containsAny(in, negatives):
		f.step = stepIdle
		return "No problem. I'll be here when we're back online.", nil
	default:
		return "Sorry, I didn't catch that. Would you like to see the recipes I have stored locally? (yes/no)", nil
	}
}

// selection resolves a numeric choice against the enumerated listing. A
// non-numeric or out-of-range input re-prompts and reverts to the
// confirmation step.
func (f *OfflineFlow) selection(input string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > len(f.listing) {
		f.step = stepConfirm
		return fmt.Sprintf("That wasn't a number between 1 and %d. Would you like to see the list again? (yes/no)", len(f.listing)), nil
	}
	rec := f.listing[n-1]
	f.step = stepIdle
	f.listing = nil
	return rec.Instructions, nil
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
