// Command demo-client submits a canned incident to a locally running
// decision engine and polls until the decision is ready.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/decisionstack/decision-engine/pkg/client"
)

func main() {
	var baseURL string
	flag.StringVar(&baseURL, "url", "http://localhost:8080", "decision engine base URL")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c := client.New(baseURL)

	incident := client.Incident{
		Service:  "payment-api",
		Metric:   "latency_p99",
		DeltaPct: 400,
		Severity: "high",
		Details: map[string]any{
			"region": "us-east-1",
		},
	}

	id, err := c.Submit(ctx, incident)
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("submitted incident, job %s\n", id)

	status, err := c.AwaitDecision(ctx, id)
	if err != nil {
		if errors.Is(err, client.ErrDecisionPending) {
			fmt.Fprintf(os.Stderr, "gave up waiting, job %s still %s\n", id, status.State)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "await: %v\n", err)
		os.Exit(1)
	}

	if status.State == "failed" {
		fmt.Fprintf(os.Stderr, "job failed: %s %s\n", status.Error.Code, status.Error.Message)
		os.Exit(1)
	}

	decision, err := status.Decision()
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("decision: %s (confidence %.2f)\n", decision.FinalDecision, decision.Confidence)
	fmt.Printf("impact: saves ~%.0f minutes, risk reduction %.1f/10\n",
		decision.Impact.EstimatedTimeSavedMinutes, decision.Impact.EstimatedRiskReductionScore)
	if status.Explanation != "" {
		fmt.Printf("explanation: %s\n", status.Explanation)
	}
	for _, entry := range decision.ReasoningTrace {
		fmt.Printf("  [%s] %s\n", entry.Agent, entry.Thought)
	}
}
