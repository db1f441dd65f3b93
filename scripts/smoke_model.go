//go:build integration
// +build integration

package scripts

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
)

// RunSmokeModel sends one grounded environment question to the live model
// and prints the answer with its resolved sources.
func RunSmokeModel(question string) {
	fmt.Println("Smoke test: live model")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := zerolog.New(os.Stderr)
	client, err := adapters.NewGenAIClient(ctx, os.Getenv("GEMINI_API_KEY"))
	must(err, "client")
	provider := adapters.NewGenAIProvider(client, fitcheck.DefaultModelID, logger)
	orch := harness.NewHarnessOrchestrator(provider, nil, nil, adapters.NewZerologTracer(logger), logger)

	agent := harness.DefaultAgents()[harness.AgentEnvironment]
	agent.ModelID = fitcheck.DefaultModelID
	resp, err := orch.Run(ctx, &harness.Request{
		Agent:    agent,
		Messages: []ports.PromptMessage{{Role: ports.RoleUser, Content: question}},
		Scope:    ports.NewTaskScope("smoke", "smoke", nil),
	})
	must(err, "run")
	if resp.Text == "" {
		log.Fatalf("empty answer")
	}
	fmt.Println("OK:", resp.Text)

	resolver := adapters.NewURLResolver(nil, adapters.NewLRUCache(16), 60, logger)
	for _, src := range resolver.ResolveAll(ctx, resp.GroundingSources) {
		fmt.Println("  source:", src)
	}
}
