package main

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Canonical critic names. criticOrder in consensus.go fixes their iteration
// order for deterministic merging.
const (
	CriticGemini    = "gemini"
	CriticOpenAI    = "openai"
	CriticAnthropic = "anthropic"
)

// Critic is one provider's view of a photograph.
type Critic interface {
	Name() string
	Analyze(ctx context.Context, item WorkItem) (Critique, error)
}

// activeCritic pairs a critic with its trip switch. A fatal provider error
// (bad credentials, exhausted quota) trips the critic for the remainder of
// the run; other critics keep going.
type activeCritic struct {
	Critic
	tripped atomic.Bool
}

// buildCritics constructs the active critic set from whichever credentials
// are configured. A provider without a credential is simply absent, not an
// error; the caller enforces the at-least-one rule.
func buildCritics(cfg *Config, logger *zap.SugaredLogger) []*activeCritic {
	var critics []*activeCritic

	if cfg.Providers.GeminiKey != "" {
		critics = append(critics, &activeCritic{Critic: newGeminiCritic(cfg, logger)})
		logger.Infof("Initialized %s critic", CriticGemini)
	}
	if cfg.Providers.OpenAIKey != "" {
		critics = append(critics, &activeCritic{Critic: newOpenAICritic(cfg, logger)})
		logger.Infof("Initialized %s critic", CriticOpenAI)
	}
	if cfg.Providers.AnthropicKey != "" {
		critics = append(critics, &activeCritic{Critic: newClaudeCritic(cfg, logger)})
		logger.Infof("Initialized %s critic", CriticAnthropic)
	}

	return critics
}

// collectCritiques fans one photograph out to every untripped critic
// concurrently, each call wrapped in the retry executor. Failed or invalid
// responses become tagged invalid critiques so no provider silently
// disappears from the record.
func collectCritiques(ctx context.Context, critics []*activeCritic, backoff *Backoff, item WorkItem, logger *zap.SugaredLogger) []Critique {
	critiques := make([]Critique, len(critics))

	var wg sync.WaitGroup
	for i, critic := range critics {
		if critic.tripped.Load() {
			critiques[i] = invalidCritique(critic.Name(), markFatal(errProviderTripped))
			continue
		}

		wg.Add(1)
		go func(i int, critic *activeCritic) {
			defer wg.Done()

			var critique Critique
			err := backoff.Do(ctx, func() error {
				var opErr error
				critique, opErr = critic.Analyze(ctx, item)
				return opErr
			}, classifyProviderError)

			if err != nil {
				if (isFatalProvider(err) || fatalProviderStatus(err)) && critic.tripped.CompareAndSwap(false, true) {
					logger.Warnf("✗ %s critic disabled for this run: %v", critic.Name(), err)
				} else {
					logger.Warnf("✗ %s critique failed for %s: %v", critic.Name(), item.Name, err)
				}
				critiques[i] = invalidCritique(critic.Name(), err)
				return
			}

			logger.Debugf("  %s scored %s at %.0f/100", critic.Name(), item.Name, critique.Score)
			critiques[i] = critique
		}(i, critic)
	}
	wg.Wait()

	return critiques
}
