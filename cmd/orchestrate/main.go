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

// Command orchestrate is the CLI for the orchestration core.
//
// Usage:
//
//	orchestrate validate dag.yaml
//	orchestrate run dag.yaml --config options.yaml
//	orchestrate run dag.yaml --interactive --watch
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/contentgraph/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Validate ValidateCmd `cmd:"" help:"Validate a DAG manifest without running it."`
	Run      RunCmd      `cmd:"" help:"Submit and run a DAG manifest against stdio-fake agents."`

	Config    string `short:"c" help:"Path to an options YAML file (tunables: fanout limit, backoff, confidence, adversarial)." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple, verbose, or custom)." default:"simple"`

	Metrics       bool   `help:"Enable Prometheus metrics collection for the run."`
	Tracing       bool   `help:"Enable OpenTelemetry tracing for the run."`
	TraceExporter string `help:"Trace exporter to use when --tracing is set (otlp, stdout)." default:"stdout"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("orchestrate version %s\n", version)
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("orchestrate"),
		kong.Description("DAG agent orchestration core - CLI driver"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	logger.Init(level, os.Stderr, cli.LogFormat)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
