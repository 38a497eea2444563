package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/mafa-systems/mafa-agents/agent/contract"
)

const (
	memoryTopK       = 5
	memoryMaxContent = 2000
)

// Completer is the single LLM round the runners need. *llm.Client satisfies
// it; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// primeFunc fetches turn-specific account data to fold into the system
// prompt. Priming failures degrade to an unprimed turn, they never fail it.
type primeFunc func(ctx context.Context) (string, error)

// runner is the shared agent shape: memory recall, optional data priming,
// one completion round, then a memory write-back.
type runner struct {
	name         string
	systemPrompt string
	model        Completer
	memory       contractx.MemoryStore
	prime        primeFunc
}

func (r *runner) Run(ctx context.Context, req contractx.AgentRequest) (string, error) {
	system := r.systemPrompt

	if recalled := r.recall(ctx, req); recalled != "" {
		system += "\n\nRelevant context from earlier conversations:\n" + recalled
	}

	if r.prime != nil {
		primed, err := r.prime(ctx)
		if err != nil {
			log.Warn().Err(err).Str("agent", r.name).Msg("data priming failed, continuing without account data")
		} else if primed != "" {
			system += "\n\nCurrent account data:\n" + primed
		}
	}

	reply, err := r.model.Complete(ctx, system, req.Query)
	if err != nil {
		return "", err
	}

	r.remember(ctx, req, reply)
	return reply, nil
}

func (r *runner) recall(ctx context.Context, req contractx.AgentRequest) string {
	matches, err := r.memory.ReadContext(ctx, req.UserID, r.name, req.Query, memoryTopK)
	if err != nil {
		log.Debug().Err(err).Str("agent", r.name).Msg("memory recall failed")
		return ""
	}
	if len(matches) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, m := range matches {
		sb.WriteString("- ")
		sb.WriteString(m.Content)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (r *runner) remember(ctx context.Context, req contractx.AgentRequest, reply string) {
	entry := truncate(fmt.Sprintf("User: %s\nAssistant: %s", req.Query, reply), memoryMaxContent)
	metadata := map[string]any{}
	if req.SessionID != "" {
		metadata["session_id"] = req.SessionID
	}
	if err := r.memory.WriteContext(ctx, req.UserID, r.name, entry, metadata); err != nil {
		log.Debug().Err(err).Str("agent", r.name).Msg("memory write failed")
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var _ contractx.Agent = (*runner)(nil)
