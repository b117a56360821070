// Copyright 2025 The autocore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package agent implements collab.AgentClient over gRPC, the
// transport the teacher's agent-to-agent protocol uses for
// cross-process invocation.
package agent

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/corerr"
)

// invokeMethod is the fully-qualified gRPC method the remote agent
// service exposes. The service accepts and returns a
// google.protobuf.Struct, so no generated stub is required here;
// per-agent payload shape is validated at a higher layer via JSON
// Schema (see pkg/collab/schema).
const invokeMethod = "/autocore.agent.v1.AgentService/Invoke"

// GRPCClient is a collab.AgentClient backed by a gRPC connection to an
// external agent-invocation service.
type GRPCClient struct {
	conn grpc.ClientConnInterface
}

// NewGRPCClient wraps an established connection.
func NewGRPCClient(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

// Invoke performs a unary RPC to the remote agent service.
func (c *GRPCClient) Invoke(ctx context.Context, req collab.InvokeRequest) (collab.InvokeResult, error) {
	timeout := req.Options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	rpcCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := structpb.NewStruct(map[string]any{
		"agent":   string(req.Agent),
		"task":    req.Task,
		"context": req.Context,
	})
	if err != nil {
		return collab.InvokeResult{}, &corerr.AgentFailureError{Agent: string(req.Agent), Cause: err}
	}

	resp := &structpb.Struct{}
	start := time.Now()
	if err := c.conn.Invoke(rpcCtx, invokeMethod, payload, resp); err != nil {
		return collab.InvokeResult{Success: false, Error: err}, &corerr.AgentFailureError{Agent: string(req.Agent), Cause: err}
	}
	duration := time.Since(start)

	fields := resp.GetFields()
	output := ""
	if v, ok := fields["output"]; ok {
		output = v.GetStringValue()
	}
	success := true
	if v, ok := fields["success"]; ok {
		success = v.GetBoolValue()
	}

	return collab.InvokeResult{
		Success:  success,
		Output:   output,
		Duration: duration,
		Metadata: resp.AsMap(),
	}, nil
}
