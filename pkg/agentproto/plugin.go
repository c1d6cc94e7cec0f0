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

package agentproto

import (
	"context"
	"fmt"
	"net/rpc"
	"os/exec"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/kadirpekel/contentgraph/pkg/orchestrator"
)

// pluginLogger is the hclog.Logger go-plugin uses for its own
// handshake/subprocess diagnostics, separate from the host's slog
// output used for task events.
var pluginLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "contentgraph-agent-plugin",
	Level: hclog.Warn,
})

// Handshake is the shared handshake both the host and a plugin
// subprocess must agree on before go-plugin will complete the
// connection. Mirrors the teacher's fixed magic-cookie idiom so a
// misbuilt or unrelated binary can't be loaded as an agent plugin by
// accident.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "CONTENTGRAPH_AGENT_PLUGIN",
	MagicCookieValue: "orchestrator-agent-v1",
}

// invokeArgs/invokeReply are the net/rpc wire types for AgentPlugin's
// single remote method. net/rpc requires exported fields and gob
// encoding, so they reuse the same wirePayload/wireRequest shapes as
// the A2A and gRPC transports.
type invokeArgs struct {
	Request wireRequest
}

type invokeReply struct {
	Payload wirePayload
}

// AgentRPCServer is the go-plugin server-side stub: it runs inside the
// plugin subprocess and forwards incoming calls to the real Impl.
type AgentRPCServer struct {
	Impl orchestrator.Agent
}

func (s *AgentRPCServer) Invoke(args *invokeArgs, reply *invokeReply) error {
	in := make(orchestrator.InputSet, len(args.Request.Inputs))
	for id, w := range args.Request.Inputs {
		p, err := decodePayload(w)
		if err != nil {
			return err
		}
		in[id] = p
	}
	deadline := time.Now().Add(time.Minute)
	if args.Request.Deadline != "" {
		if t, err := time.Parse(time.RFC3339Nano, args.Request.Deadline); err == nil {
			deadline = t
		}
	}
	out, err := s.Impl.Invoke(context.Background(), args.Request.TaskID, in, deadline)
	if err != nil {
		return err
	}
	reply.Payload = encodePayload(out)
	return nil
}

// AgentRPCClient is the go-plugin client-side stub: it runs in the
// host process and marshals Invoke calls to the subprocess over
// net/rpc.
type AgentRPCClient struct {
	client *rpc.Client
}

func (c *AgentRPCClient) Invoke(ctx context.Context, taskID string, in orchestrator.InputSet, deadline time.Time) (orchestrator.Payload, error) {
	args := &invokeArgs{Request: encodeRequest(taskID, in, deadline)}
	reply := &invokeReply{}

	done := make(chan error, 1)
	call := c.client.Go("Plugin.Invoke", args, reply, nil)
	go func() { done <- (<-call.Done).Error }()

	select {
	case <-ctx.Done():
		return orchestrator.Payload{}, ctx.Err()
	case err := <-done:
		if err != nil {
			return orchestrator.Payload{}, fmt.Errorf("agentproto: plugin rpc: %w", err)
		}
		return decodePayload(reply.Payload)
	}
}

// AgentPlugin implements go-plugin's Plugin interface (the net/rpc
// flavor) for orchestrator.Agent: Server runs in the subprocess,
// Client runs in the host.
type AgentPlugin struct {
	Impl orchestrator.Agent
}

func (p *AgentPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &AgentRPCServer{Impl: p.Impl}, nil
}

func (p *AgentPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &AgentRPCClient{client: c}, nil
}

// pluginKey is the name a host and plugin binary must agree the
// single agent implementation is registered under.
const pluginKey = "agent"

// ExternalPlugin wraps a go-plugin subprocess as an orchestrator.Agent.
// The subprocess is started once, at construction, and torn down by
// Close; Invoke dispatches over the already-established RPC channel.
type ExternalPlugin struct {
	client *plugin.Client
	agent  orchestrator.Agent
}

// NewExternalPlugin launches the binary at path as a plugin subprocess
// and dials its AgentPlugin implementation.
func NewExternalPlugin(path string, args ...string) (*ExternalPlugin, error) {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          plugin.PluginSet{pluginKey: &AgentPlugin{}},
		Cmd:              exec.Command(path, args...),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		Logger:           pluginLogger,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("agentproto: plugin: dial %s: %w", path, err)
	}
	raw, err := rpcClient.Dispense(pluginKey)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("agentproto: plugin: dispense %s: %w", path, err)
	}
	agent, ok := raw.(orchestrator.Agent)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("agentproto: plugin: %s does not implement orchestrator.Agent", path)
	}
	return &ExternalPlugin{client: client, agent: agent}, nil
}

func (e *ExternalPlugin) Invoke(ctx context.Context, taskID string, in orchestrator.InputSet, deadline time.Time) (orchestrator.Payload, error) {
	return e.agent.Invoke(ctx, taskID, in, deadline)
}

// Close terminates the plugin subprocess.
func (e *ExternalPlugin) Close() error {
	e.client.Kill()
	return nil
}

// ServePlugin is what a standalone agent-plugin binary's main() calls:
// it blocks serving impl over go-plugin's handshake protocol until the
// host disconnects.
func ServePlugin(impl orchestrator.Agent) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins:         plugin.PluginSet{pluginKey: &AgentPlugin{Impl: impl}},
		Logger:          pluginLogger,
	})
}
