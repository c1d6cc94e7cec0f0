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
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kadirpekel/contentgraph/pkg/orchestrator"
)

// invokeMethod is the single fully-qualified gRPC method every agent
// service implements. Using one generic method with a structpb
// payload - rather than a per-deployment .proto/codegen pair - means a
// new agent service doesn't need its own compiled stub to be wired in.
const invokeMethod = "/contentgraph.agentproto.AgentService/Invoke"

// GRPCAgent invokes a remote agent over an established gRPC channel.
type GRPCAgent struct {
	Conn *grpc.ClientConn
}

// NewGRPCAgent dials target with the given dial options (the caller
// supplies TLS/insecure credentials, matching the teacher's pattern of
// leaving transport security to the call site rather than hardcoding
// it).
func NewGRPCAgent(ctx context.Context, target string, opts ...grpc.DialOption) (*GRPCAgent, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("agentproto: grpc: dial %s: %w", target, err)
	}
	return &GRPCAgent{Conn: conn}, nil
}

func (a *GRPCAgent) Invoke(ctx context.Context, taskID string, in orchestrator.InputSet, deadline time.Time) (orchestrator.Payload, error) {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	req, err := structFromRequest(encodeRequest(taskID, in, deadline))
	if err != nil {
		return orchestrator.Payload{}, fmt.Errorf("agentproto: grpc: encode request: %w", err)
	}

	reply := &structpb.Struct{}
	if err := a.Conn.Invoke(ctx, invokeMethod, req, reply); err != nil {
		return orchestrator.Payload{}, fmt.Errorf("agentproto: grpc: invoke %s: %w", taskID, err)
	}
	return payloadFromStruct(reply)
}

// Close tears down the underlying gRPC connection.
func (a *GRPCAgent) Close() error { return a.Conn.Close() }

// structFromRequest/payloadFromStruct round-trip wireRequest/wirePayload
// through encoding/json then protojson so a plain Go struct can cross
// the gRPC wire as a structpb.Struct without a compiled .proto message
// of its own.
func structFromRequest(req wireRequest) (*structpb.Struct, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	return s, nil
}

func payloadFromStruct(s *structpb.Struct) (orchestrator.Payload, error) {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return orchestrator.Payload{}, err
	}
	var w wirePayload
	if err := json.Unmarshal(raw, &w); err != nil {
		return orchestrator.Payload{}, err
	}
	return decodePayload(w)
}

// GRPCAgentServer adapts an orchestrator.Agent into the generic
// AgentService a GRPCAgent client dials. Registered with a
// *grpc.Server via RegisterGRPCAgentServer.
type GRPCAgentServer struct {
	Impl orchestrator.Agent
}

// Invoke is exported so grpc.Server's reflection-free generic handler
// registration (ServiceDesc below) can bind directly to it.
func (s *GRPCAgentServer) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := protojson.Marshal(req)
	if err != nil {
		return nil, err
	}
	var wreq wireRequest
	if err := json.Unmarshal(raw, &wreq); err != nil {
		return nil, err
	}

	in := make(orchestrator.InputSet, len(wreq.Inputs))
	for id, w := range wreq.Inputs {
		p, err := decodePayload(w)
		if err != nil {
			return nil, err
		}
		in[id] = p
	}
	deadline := time.Now().Add(time.Minute)
	if wreq.Deadline != "" {
		if t, err := time.Parse(time.RFC3339Nano, wreq.Deadline); err == nil {
			deadline = t
		}
	}

	out, err := s.Impl.Invoke(ctx, wreq.TaskID, in, deadline)
	if err != nil {
		return nil, err
	}
	return structFromPayload(encodePayload(out))
}

func structFromPayload(w wirePayload) (*structpb.Struct, error) {
	raw, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	return s, nil
}

// serviceDesc is the hand-written grpc.ServiceDesc for AgentService,
// standing in for generated protoc-gen-go-grpc output.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "contentgraph.agentproto.AgentService",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				req := &structpb.Struct{}
				if err := dec(req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*GRPCAgentServer).Invoke(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: invokeMethod}
				handler := func(ctx context.Context, req any) (any, error) {
					return srv.(*GRPCAgentServer).Invoke(ctx, req.(*structpb.Struct))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "agentproto.proto",
}

// RegisterGRPCAgentServer registers impl's agent on s so a GRPCAgent
// client can dial and invoke it.
func RegisterGRPCAgentServer(s *grpc.Server, impl orchestrator.Agent) {
	s.RegisterService(&serviceDesc, &GRPCAgentServer{Impl: impl})
}
