// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/kadirpekel/contentgraph/pkg/agentproto"
	"github.com/kadirpekel/contentgraph/pkg/breaker"
	"github.com/kadirpekel/contentgraph/pkg/checkpoint"
	"github.com/kadirpekel/contentgraph/pkg/config"
	"github.com/kadirpekel/contentgraph/pkg/embedder"
	"github.com/kadirpekel/contentgraph/pkg/embedders"
	"github.com/kadirpekel/contentgraph/pkg/observability"
	"github.com/kadirpekel/contentgraph/pkg/orchestrator"
)

// ValidateCmd loads a manifest and runs it through Submit's structural
// checks (duplicate/unknown/circular dependencies) without dispatching
// any agent.
type ValidateCmd struct {
	Manifest string `arg:"" help:"Path to the DAG manifest YAML file." type:"path"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	m, err := loadManifest(c.Manifest)
	if err != nil {
		return err
	}

	agents := make(map[string]orchestrator.Agent, len(m.agentIDs()))
	for _, id := range m.agentIDs() {
		agents[id] = orchestrator.AgentFunc(func(ctx context.Context, taskID string, in orchestrator.InputSet, deadline time.Time) (orchestrator.Payload, error) {
			return orchestrator.Payload{}, fmt.Errorf("validate: agent %s should never be invoked (task %s)", id, taskID)
		})
	}

	opts, manager, err := loadOptions(context.Background(), cli, agents)
	if err != nil {
		return err
	}
	defer manager.Shutdown(context.Background())

	if _, err := orchestrator.Submit(m.nodes(), nil, opts); err != nil {
		return fmt.Errorf("manifest invalid: %w", err)
	}
	fmt.Printf("manifest valid: %d tasks\n", len(m.Tasks))
	return nil
}

// RunCmd submits and runs a manifest against stdio-fake agents,
// printing progress as tasks complete and a final summary.
type RunCmd struct {
	Manifest    string `arg:"" help:"Path to the DAG manifest YAML file." type:"path"`
	Interactive bool   `help:"Prompt on stdin for each task's fake output instead of generating one."`
	Watch       bool   `help:"Watch the manifest file and re-run the DAG on change."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("orchestrate: shutting down")
		cancel()
	}()

	if err := c.runOnce(ctx, cli); err != nil {
		return err
	}
	if !c.Watch {
		return nil
	}

	return watchManifest(ctx, c.Manifest, func() {
		if err := c.runOnce(ctx, cli); err != nil {
			slog.Error("orchestrate: re-run after manifest change failed", "error", err)
		}
	})
}

func (c *RunCmd) runOnce(ctx context.Context, cli *CLI) error {
	m, err := loadManifest(c.Manifest)
	if err != nil {
		return err
	}

	if c.Interactive && !term.IsTerminal(int(os.Stdin.Fd())) {
		slog.Warn("orchestrate: --interactive set but stdin is not a terminal, prompts will read from the pipe")
	}

	scanner := bufio.NewScanner(os.Stdin)
	remote := m.remoteAgents()
	agents := make(map[string]orchestrator.Agent, len(m.agentIDs()))
	for _, id := range m.agentIDs() {
		if r, ok := remote[id]; ok {
			peer, err := agentproto.NewA2APeer(id, id, r[0], r[1])
			if err != nil {
				return fmt.Errorf("remote agent %s: %w", id, err)
			}
			agents[id] = peer
			continue
		}
		agents[id] = newStdioFakeAgent(id, c.Interactive, scanner)
	}

	opts, manager, err := loadOptions(ctx, cli, agents)
	if err != nil {
		return err
	}
	defer manager.Shutdown(context.Background())

	handle, err := orchestrator.Submit(m.nodes(), nil, opts)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	stopProgress := make(chan struct{})
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		tick := time.NewTicker(250 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				printProgress(orchestrator.Inspect(handle))
			case <-stopProgress:
				return
			}
		}
	}()

	result, runErr := orchestrator.Run(ctx, handle)
	close(stopProgress)
	<-progressDone
	if runErr != nil {
		return fmt.Errorf("run: %w", runErr)
	}

	printResult(result)
	return nil
}

func printProgress(snap orchestrator.Snapshot) {
	succeeded, failed, running := 0, 0, 0
	for _, st := range snap.Tasks {
		switch st.Status {
		case orchestrator.StatusSucceeded:
			succeeded++
		case orchestrator.StatusFailed:
			failed++
		case orchestrator.StatusRunning:
			running++
		}
	}
	fmt.Printf("\r[run %s] running=%d succeeded=%d failed=%d       ", snap.RunID, running, succeeded, failed)
}

func printResult(res *orchestrator.Result) {
	fmt.Println()
	if res.Failed {
		fmt.Println("run finished with failures:")
	} else {
		fmt.Println("run finished successfully:")
	}
	for id, st := range res.Tasks {
		line := fmt.Sprintf("  %-16s %s", id, st.Status)
		if st.Err != nil {
			line += fmt.Sprintf(" (%s: %v)", st.Err.Kind, st.Err.Cause)
		}
		if st.Output != nil && st.Output.RequiresHumanReview() {
			line += " [requires human review]"
		}
		fmt.Println(line)
	}
}

// loadOptions loads tunables from cli.Config if given, else falls back
// to config defaults, wires fresh breaker/checkpoint/embedder
// infrastructure around the caller-supplied agent table, and builds an
// observability Manager from the CLI's --metrics/--tracing flags so the
// returned Options carries a Sink that records task transitions as
// Prometheus metrics and OpenTelemetry spans. The caller must Shutdown
// the returned Manager once the run is complete.
func loadOptions(ctx context.Context, cli *CLI, agents map[string]orchestrator.Agent) (*orchestrator.Options, *observability.Manager, error) {
	var cfg *config.Options
	if cli.Config != "" {
		loaded, err := config.Load(cli.Config)
		if err != nil {
			slog.Warn("orchestrate: failed to load options, using defaults", "path", cli.Config, "error", err)
		} else {
			cfg = loaded
		}
	}
	if cfg == nil {
		cfg = &config.Options{}
		cfg.SetDefaults()
	}

	manager, err := observability.NewManager(ctx, &observability.Config{
		Tracing: observability.TracingConfig{
			Enabled:  cli.Tracing,
			Exporter: cli.TraceExporter,
		},
		Metrics: observability.MetricsConfig{
			Enabled: cli.Metrics,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("observability: %w", err)
	}

	emb, err := embedders.FromConfig(cfg.Embedder)
	if err != nil {
		return nil, nil, fmt.Errorf("embedder: %w", err)
	}
	cache, err := embedder.NewCache()
	if err != nil {
		return nil, nil, fmt.Errorf("embedder cache: %w", err)
	}

	breakers := breaker.NewRegistry(&breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
	})
	checkpoints := checkpoint.NewVerifier(&checkpoint.Config{DefaultTTL: cfg.DefaultTTL})
	opts := orchestrator.FromConfig(cfg, agents, breakers, checkpoints, emb, cache)
	opts.Sink = observability.NewEventSink(manager, slog.Default())
	return opts, manager, nil
}
