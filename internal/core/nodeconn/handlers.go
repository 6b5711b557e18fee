package nodeconn

import (
	"context"
	"fmt"

	"github.com/dep2p/go-secretmesh/internal/core/rpc"
	"github.com/dep2p/go-secretmesh/pkg/types"
)

// RegisterHandlers 在 RPC 服务端注册节点方法
func (m *Manager) RegisterHandlers(srv *rpc.Server) {
	srv.Register(MethodClosestLocalNodes, m.handleClosestLocalNodes)
	srv.Register(MethodHolePunchMessage, m.handleHolePunchMessage)
}

func (m *Manager) handleClosestLocalNodes(_ context.Context, call *rpc.Call) (any, error) {
	var req ClosestNodesRequest
	if err := call.Decode(&req); err != nil {
		return nil, err
	}
	closest, err := m.graph.GetClosestNodes(req.Target, m.graph.BucketSize())
	if err != nil {
		return nil, err
	}
	resp := ClosestNodesResponse{Nodes: make([]types.NodeData, 0, len(closest))}
	for _, n := range closest {
		resp.Nodes = append(resp.Nodes, types.NodeData{ID: n.ID, Address: n.Address})
	}
	return resp, nil
}

// handleHolePunchMessage 发给本节点的消息直接处理，否则中继
//
// 已经中继过的消息不再转发。
func (m *Manager) handleHolePunchMessage(ctx context.Context, call *rpc.Call) (any, error) {
	var msg HolePunchMessage
	if err := call.Decode(&msg); err != nil {
		return nil, err
	}

	var observed types.NodeAddress
	if !msg.Relayed {
		// 只有调用方就是来源时才信任观察到的地址
		if caller, addr, ok := m.observedAddress(call.Remote); ok && caller == msg.SourceID {
			observed = addr
		}
	}

	if msg.TargetID == m.signer.NodeID() {
		return nil, m.HandleHolePunchMessage(ctx, &msg, observed)
	}
	if msg.Relayed {
		return nil, fmt.Errorf("%w: already relayed", ErrInvalidHolePunch)
	}
	return nil, m.RelayHolePunchMessage(ctx, &msg, observed)
}
