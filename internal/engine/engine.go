// Package engine holds the rule-based conversation logic that turns an
// inbound chat message into a reply. It decides whether the user named
// ingredients, a cuisine, or picked a suggested recipe, records every
// interaction in the store, and answers from the cached recipe payloads
// attached to ingredient and cuisine documents.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/souschef/recipe-assistant/internal/domain"
)

// Interactions is the store surface the engine drives. Each Add method
// resolves the canonical document and records the request against the
// user in one call.
type Interactions interface {
	EnsureUser(ctx context.Context, name string) (*domain.User, error)
	AddIngredient(ctx context.Context, text string, matching json.RawMessage, user *domain.User) (*domain.Ingredient, error)
	AddCuisine(ctx context.Context, text string, matching json.RawMessage, user *domain.User) (*domain.Cuisine, error)
	AddRecipe(ctx context.Context, recipeID, title, instructions string, user *domain.User) (*domain.Recipe, error)
}

// suggestion is one entry of the cached recipe payload stored on
// ingredient and cuisine documents.
type suggestion struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Instructions string `json:"instructions"`
}

// conversation is the per-session dialogue state: the identity we write
// interactions under and the last list of suggestions, so a numeric
// reply can be resolved to a recipe.
type conversation struct {
	user        *domain.User
	suggestions []suggestion
}

// cuisines the single-word classifier recognizes.
var cuisines = map[string]bool{
	"american": true, "chinese": true, "french": true, "greek": true,
	"indian": true, "italian": true, "japanese": true, "mexican": true,
	"spanish": true, "thai": true,
}

// Bot is a Responder for the websocket relay. Conversation state is keyed
// by session id; Forget must be called when a session closes.
type Bot struct {
	store Interactions
	log   zerolog.Logger

	mu    sync.Mutex
	convs map[string]*conversation
}

// NewBot constructs a Bot over the given store.
func NewBot(store Interactions) *Bot {
	return &Bot{
		store: store,
		log:   log.With().Str("component", "engine").Logger(),
		convs: make(map[string]*conversation),
	}
}

// Forget drops the conversation state for a closed session.
func (b *Bot) Forget(sessionID string) {
	b.mu.Lock()
	delete(b.convs, sessionID)
	b.mu.Unlock()
}

// Respond produces the reply for one inbound message. Store failures are
// logged and degrade the answer; they never drop the conversation.
func (b *Bot) Respond(ctx context.Context, sessionID, text string) string {
	conv, err := b.conversation(ctx, sessionID)
	if err != nil {
		b.log.Error().Err(err).Str("session_id", sessionID).Msg("user lookup failed")
		return "Sorry, something went wrong on my end. Please try again."
	}

	input := strings.TrimSpace(text)
	if input == "" {
		return "Tell me what ingredients you have, or name a cuisine."
	}

	if n, err := strconv.Atoi(input); err == nil {
		return b.selectRecipe(ctx, conv, n)
	}
	if !strings.Contains(input, ",") && cuisines[strings.ToLower(input)] {
		return b.suggestForCuisine(ctx, conv, input)
	}
	return b.suggestForIngredients(ctx, conv, input)
}

func (b *Bot) conversation(ctx context.Context, sessionID string) (*conversation, error) {
	b.mu.Lock()
	conv, ok := b.convs[sessionID]
	b.mu.Unlock()
	if ok {
		return conv, nil
	}

	user, err := b.store.EnsureUser(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	conv = &conversation{user: user}

	b.mu.Lock()
	b.convs[sessionID] = conv
	b.mu.Unlock()
	return conv, nil
}

func (b *Bot) suggestForIngredients(ctx context.Context, conv *conversation, text string) string {
	ing, err := b.store.AddIngredient(ctx, text, nil, conv.user)
	if err != nil {
		b.log.Error().Err(err).Msg("ingredient upsert failed")
		return "I couldn't save that just now, but tell me more about what you have."
	}
	return b.present(conv, ing.Recipes, "with "+strings.TrimSpace(text))
}

func (b *Bot) suggestForCuisine(ctx context.Context, conv *conversation, text string) string {
	c, err := b.store.AddCuisine(ctx, text, nil, conv.user)
	if err != nil {
		b.log.Error().Err(err).Msg("cuisine upsert failed")
		return "I couldn't save that just now, but tell me more about what you're craving."
	}
	return b.present(conv, c.Recipes, "for "+strings.ToLower(strings.TrimSpace(text))+" food")
}

// present decodes a cached recipe payload, remembers it as the active
// suggestion list, and renders it as a numbered menu.
func (b *Bot) present(conv *conversation, payload json.RawMessage, topic string) string {
	conv.suggestions = nil
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &conv.suggestions); err != nil {
			b.log.Warn().Err(err).Msg("cached recipe payload unreadable")
			conv.suggestions = nil
		}
	}
	if len(conv.suggestions) == 0 {
		return "I don't have any recipes " + topic + " yet. Try different ingredients or a cuisine."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Here's what I can make %s. Reply with a number for the directions:\n", topic)
	for i, s := range conv.suggestions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s.Title)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) selectRecipe(ctx context.Context, conv *conversation, n int) string {
	if len(conv.suggestions) == 0 {
		return "I haven't suggested anything yet. Tell me what ingredients you have, or name a cuisine."
	}
	if n < 1 || n > len(conv.suggestions) {
		return fmt.Sprintf("Please pick a number between 1 and %d.", len(conv.suggestions))
	}

	pick := conv.suggestions[n-1]
	rec, err := b.store.AddRecipe(ctx, pick.ID, pick.Title, pick.Instructions, conv.user)
	if err != nil {
		b.log.Error().Err(err).Str("recipe_id", pick.ID).Msg("recipe upsert failed")
		return "I couldn't pull up that recipe. Please try again."
	}

	conv.suggestions = nil
	return rec.Instructions
}
