// Package a2a exposes the chat facade as an A2A agent so other agents can
// hold conversations with the admin assistant.
package a2a

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/zhengjr9/admin-chat/internal/chat"
)

// Sender starts turns. *session.Service satisfies it; the caller's token
// travels in the context (see auth.ContextWithToken).
type Sender interface {
	SendMessage(ctx context.Context, sessionID, message string) (*chat.Turn, error)
}

// AgentConfig holds the configuration for the chat-backed A2A agent.
type AgentConfig struct {
	// Name is the agent name exposed via A2A AgentCard.
	Name string
	// Description is exposed via A2A AgentCard.
	Description string
	// Sender runs each turn.
	Sender Sender
}

// New returns an agent.Agent whose Run logic sends the user's text as one
// chat turn and converts the fragments into session.Events that the ADK
// runner understands.
func New(cfg AgentConfig) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, errors.New("a2a agent: Name must not be empty")
	}
	if cfg.Sender == nil {
		return nil, errors.New("a2a agent: Sender must not be nil")
	}

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Run:         runFunc(cfg),
	})
}

func runFunc(cfg AgentConfig) func(agent.InvocationContext) iter.Seq2[*session.Event, error] {
	return func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
		return func(yield func(*session.Event, error) bool) {
			newEvent := func(text string, partial bool) *session.Event {
				ev := session.NewEvent(ctx.InvocationID())
				ev.Author = cfg.Name
				ev.Branch = ctx.Branch()
				ev.LLMResponse = model.LLMResponse{
					Content: textContent(text),
					Partial: partial,
				}
				return ev
			}

			query := extractQuery(ctx.UserContent())
			if query == "" {
				yield(newEvent("(empty input)", false), nil)
				return
			}

			err := Relay(ctx, cfg.Sender, query, func(text string, partial bool) bool {
				return yield(newEvent(text, partial), nil)
			})
			if err != nil {
				yield(nil, err)
			}
		}
	}
}

// Relay runs one turn for query and calls emit with each fragment
// (partial=true), then once with the full reply (partial=false) when the
// turn completes. It stops early, cancelling the turn, when emit returns
// false. Failed turns are reported as an error after any partial text.
func Relay(ctx context.Context, s Sender, query string, emit func(text string, partial bool) bool) error {
	turn, err := s.SendMessage(ctx, "", query)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	var full strings.Builder
	for ev := range turn.Events() {
		if !ev.IsOutcome() {
			full.WriteString(ev.Fragment)
			if !emit(ev.Fragment, true) {
				return nil
			}
			continue
		}

		out := *ev.Outcome
		switch {
		case out.Completed():
			emit(full.String(), false)
			return nil
		case out.Cancelled():
			if cause := context.Cause(ctx); cause != nil {
				return cause
			}
			return errors.New("chat turn cancelled")
		default:
			return fmt.Errorf("chat turn failed: %s: %w", out.Reason(), out.Err)
		}
	}
	return nil
}

// extractQuery pulls the plain-text content from the genai.Content that ADK
// puts in the InvocationContext when the caller sends a message.
func extractQuery(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func textContent(text string) *genai.Content {
	return &genai.Content{
		Role:  genai.RoleModel,
		Parts: []*genai.Part{{Text: text}},
	}
}
