package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agegate/internal/util"
	"agegate/pkg/ai"
	"agegate/pkg/domain"
	"agegate/pkg/policy"
	"agegate/pkg/store"
)

// Fixed replies. Policy refusals and degraded paths always answer with one
// of these; they are part of the service contract, not error strings.
const (
	dobPrompt = "Before we can chat, please share your date of birth (YYYY-MM-DD)."

	childRedirectReply = "Let's talk about something else! I can help with school subjects, science, reading, and other fun topics."

	childConsentReply = "That sounds like a fun topic! Please ask a parent or guardian to turn on consent so we can keep exploring together."

	teenRefusalReply = "I can't help with that topic. If you or someone you know needs support, please talk to a trusted adult."

	fallbackReply = "I'm having trouble answering right now. Please try again in a moment."

	// Stored in place of a refused teen message so history shows the turn
	// happened without keeping any of its content.
	blockedMarker = "[message withheld by content policy]"
)

const (
	teenSystemPrompt  = "You are a helpful assistant talking to a teenager. Keep answers age-appropriate, avoid mature themes, and never include links, phone numbers, or email addresses."
	adultSystemPrompt = "You are a helpful assistant. Answer clearly and concisely."
)

const (
	defaultHistoryLimit    = 6
	defaultGenerateTimeout = 20 * time.Second
)

// Config holds runtime configuration for the core application.
type Config struct {
	Store     store.Store
	Generator ai.TextGenerator
	// Rules overrides term lists; empty lists keep the defaults.
	Rules           policy.Rules
	HistoryLimit    int
	GenerateTimeout time.Duration
	// Now supplies "today" for age classification. Test hook; defaults to
	// time.Now in UTC.
	Now func() time.Time
}

// App is the chat orchestrator: it resolves the caller's profile, enforces
// the one-time date-of-birth gate, runs the content guard, calls the model,
// sanitizes its output, and writes history under the retention policy.
type App struct {
	store           store.Store
	conversations   *store.Conversations
	guard           *policy.Guard
	sanitizer       *policy.Sanitizer
	generator       ai.TextGenerator
	historyLimit    int
	generateTimeout time.Duration
	now             func() time.Time
}

// New constructs the application core.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("text generator required")
	}
	rules := policy.DefaultRules().Merge(cfg.Rules)
	sanitizer := policy.NewSanitizer(rules)
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	generateTimeout := cfg.GenerateTimeout
	if generateTimeout <= 0 {
		generateTimeout = defaultGenerateTimeout
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &App{
		store:           cfg.Store,
		conversations:   store.NewConversations(cfg.Store, sanitizer),
		guard:           policy.NewGuard(rules),
		sanitizer:       sanitizer,
		generator:       cfg.Generator,
		historyLimit:    historyLimit,
		generateTimeout: generateTimeout,
		now:             now,
	}, nil
}

// VerifyAge accepts a date of birth for a user, derives the tier, and marks
// the profile verified. Calling it again is the explicit re-verification
// action; a birth date supplied on an already-verified chat request is
// ignored instead.
func (a *App) VerifyAge(userID, dateOfBirth string) (domain.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserProfile{}, fmt.Errorf("user id required")
	}
	birth, err := policy.ParseBirthDate(dateOfBirth)
	if err != nil {
		return domain.UserProfile{}, err
	}
	now := a.now()
	tier, err := policy.Classify(birth, now)
	if err != nil {
		return domain.UserProfile{}, err
	}

	profile, ok, err := a.store.GetProfile(userID)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("load profile: %w", err)
	}
	if !ok {
		profile = domain.UserProfile{
			UserID:    userID,
			Tier:      domain.DefaultTier,
			CreatedAt: now,
		}
	}
	profile.BirthDate = &birth
	profile.Tier = tier
	profile.Verified = true
	profile.UpdatedAt = now
	if err := a.store.SaveProfile(profile); err != nil {
		return domain.UserProfile{}, fmt.Errorf("save profile: %w", err)
	}
	return profile, nil
}

// SetGuardianConsent flips the consent flag on an existing profile. The flag
// is self-reported; no verification mechanism stands behind it.
func (a *App) SetGuardianConsent(userID string, consent bool) (domain.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserProfile{}, fmt.Errorf("user id required")
	}
	profile, ok, err := a.store.GetProfile(userID)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("load profile: %w", err)
	}
	if !ok {
		return domain.UserProfile{}, ErrProfileNotFound
	}
	profile.GuardianConsent = consent
	profile.UpdatedAt = a.now()
	if err := a.store.SaveProfile(profile); err != nil {
		return domain.UserProfile{}, fmt.Errorf("save profile: %w", err)
	}
	return profile, nil
}

// Chat runs one turn. Every outcome, including refusals and model failures,
// is a well-formed ChatResult; errors are reserved for invalid input and
// storage faults.
func (a *App) Chat(ctx context.Context, userID, message, dateOfBirth string) (domain.ChatResult, error) {
	userID = strings.TrimSpace(userID)
	message = strings.TrimSpace(message)
	if userID == "" {
		return domain.ChatResult{}, fmt.Errorf("user id required")
	}
	if message == "" {
		return domain.ChatResult{}, fmt.Errorf("message required")
	}

	profile, ok, err := a.store.GetProfile(userID)
	if err != nil {
		return domain.ChatResult{}, fmt.Errorf("load profile: %w", err)
	}
	if (!ok || !profile.Verified) && strings.TrimSpace(dateOfBirth) != "" {
		profile, err = a.VerifyAge(userID, dateOfBirth)
		if err != nil {
			return domain.ChatResult{}, err
		}
		ok = true
	}
	if !ok || !profile.Verified {
		return domain.ChatResult{NeedsDateOfBirth: true, Prompt: dobPrompt}, nil
	}

	switch profile.Tier {
	case domain.TierChild:
		return a.childTurn(profile, message), nil
	case domain.TierTeen:
		return a.teenTurn(ctx, profile, message)
	case domain.TierAdult:
		return a.adultTurn(ctx, profile, message)
	default:
		// A stored tier outside the known set refuses conservatively.
		return domain.ChatResult{Reply: teenRefusalReply, Tier: profile.Tier, Stored: false}, nil
	}
}

// childTurn never calls the model and never stores anything.
func (a *App) childTurn(profile domain.UserProfile, message string) domain.ChatResult {
	result := domain.ChatResult{Tier: domain.TierChild, Stored: false}
	switch a.guard.Evaluate(domain.TierChild, message, profile.GuardianConsent) {
	case policy.Block:
		result.Reply = childRedirectReply
	case policy.RequireConsent:
		result.Reply = childConsentReply
	case policy.Allow:
		result.Reply = a.sanitizer.ChildReply(a.guard.SafeTopic(message))
	}
	return result
}

func (a *App) teenTurn(ctx context.Context, profile domain.UserProfile, message string) (domain.ChatResult, error) {
	if a.guard.Evaluate(domain.TierTeen, message, profile.GuardianConsent) == policy.Block {
		// Keep a content-free marker so the turn is visible in history.
		stored, err := a.conversations.Append(profile.UserID, domain.RoleUser, blockedMarker, domain.TierTeen)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("store blocked marker", "err", err)
			stored = false
		}
		return domain.ChatResult{Reply: teenRefusalReply, Tier: domain.TierTeen, Stored: stored}, nil
	}

	sanitizedInput, _ := a.sanitizer.Transform(domain.TierTeen, message)
	reply, degraded := a.generate(ctx, profile.UserID, domain.TierTeen, teenSystemPrompt, sanitizedInput)
	if degraded {
		return domain.ChatResult{Reply: reply, Tier: domain.TierTeen, Stored: false}, nil
	}
	sanitizedReply, _ := a.sanitizer.Transform(domain.TierTeen, reply)

	stored, err := a.storeTurns(ctx, profile.UserID, domain.TierTeen, message, reply)
	if err != nil {
		return domain.ChatResult{}, err
	}
	return domain.ChatResult{Reply: sanitizedReply, Tier: domain.TierTeen, Stored: stored}, nil
}

func (a *App) adultTurn(ctx context.Context, profile domain.UserProfile, message string) (domain.ChatResult, error) {
	cappedInput, _ := a.sanitizer.Transform(domain.TierAdult, message)
	reply, degraded := a.generate(ctx, profile.UserID, domain.TierAdult, adultSystemPrompt, cappedInput)
	if degraded {
		return domain.ChatResult{Reply: reply, Tier: domain.TierAdult, Stored: false}, nil
	}
	cappedReply, _ := a.sanitizer.Transform(domain.TierAdult, reply)

	stored, err := a.storeTurns(ctx, profile.UserID, domain.TierAdult, message, reply)
	if err != nil {
		return domain.ChatResult{}, err
	}
	return domain.ChatResult{Reply: cappedReply, Tier: domain.TierAdult, Stored: stored}, nil
}

// storeTurns persists the user and assistant turns; the conversation layer
// applies the tier's storage contract to each.
func (a *App) storeTurns(ctx context.Context, userID string, tier domain.Tier, userText, assistantText string) (bool, error) {
	storedUser, err := a.conversations.Append(userID, domain.RoleUser, userText, tier)
	if err != nil {
		return false, fmt.Errorf("store user turn: %w", err)
	}
	storedAssistant, err := a.conversations.Append(userID, domain.RoleAssistant, assistantText, tier)
	if err != nil {
		return false, fmt.Errorf("store assistant turn: %w", err)
	}
	return storedUser && storedAssistant, nil
}

// generate calls the model with bounded recent context and a bounded
// timeout. Failures degrade to the fixed fallback reply; the orchestrator
// never surfaces a raw model error.
func (a *App) generate(ctx context.Context, userID string, tier domain.Tier, systemPrompt, input string) (reply string, degraded bool) {
	recent, err := a.conversations.Recall(userID, a.historyLimit)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("load recent context", "err", err)
		recent = nil
	}
	prompt := buildPrompt(recent, input)

	gctx, cancel := context.WithTimeout(ctx, a.generateTimeout)
	defer cancel()
	out, err := a.generator.GenerateText(gctx, systemPrompt, prompt)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("model call failed", "tier", string(tier), "err", err)
		return fallbackReply, true
	}
	return out, false
}

// History returns recent entries for the user, newest first, under the
// recall policy.
func (a *App) History(userID string, limit int) ([]domain.ConversationEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id required")
	}
	return a.conversations.Recall(userID, limit)
}

// Purge erases all data held for the user.
func (a *App) Purge(userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("user id required")
	}
	return a.conversations.Purge(userID)
}

// buildPrompt folds recent history (given newest first) into the prompt in
// chronological order.
func buildPrompt(recent []domain.ConversationEntry, message string) string {
	if len(recent) == 0 {
		return message
	}
	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	for i := len(recent) - 1; i >= 0; i-- {
		entry := recent[i]
		sb.WriteString(string(entry.Role))
		sb.WriteString(": ")
		sb.WriteString(entry.Text)
		sb.WriteString("\n")
	}
	sb.WriteString("\nCurrent message: ")
	sb.WriteString(message)
	return sb.String()
}
