package tap

import (
	"context"
	"sync"

	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// Hooks manages registered hooks and dispatches events.
type Hooks struct {
	mu sync.RWMutex

	connection []ConnectionHook
	packets    []PacketHook
	errs       []ErrorHook
}

// NewHooks creates a new hook manager.
func NewHooks() *Hooks {
	return &Hooks{}
}

// Register registers a hook. The hook is checked for all supported interfaces.
func (h *Hooks) Register(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := hook.(ConnectionHook); ok {
		h.connection = append(h.connection, ch)
	}
	if ph, ok := hook.(PacketHook); ok {
		h.packets = append(h.packets, ph)
	}
	if eh, ok := hook.(ErrorHook); ok {
		h.errs = append(h.errs, eh)
	}
}

// OnConnect notifies all connection hooks of a new connection.
func (h *Hooks) OnConnect(ctx context.Context, conn ConnInfo) {
	h.mu.RLock()
	hooks := h.connection
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnConnect(ctx, conn)
	}
}

// OnDisconnect notifies all connection hooks that a connection ended.
func (h *Hooks) OnDisconnect(ctx context.Context, conn ConnInfo, err error) {
	h.mu.RLock()
	hooks := h.connection
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnDisconnect(ctx, conn, err)
	}
}

// OnPacket passes a decoded packet to all packet hooks.
func (h *Hooks) OnPacket(ctx context.Context, conn ConnInfo, dir Direction, pkt packet.Packet, frame []byte) {
	h.mu.RLock()
	hooks := h.packets
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnPacket(ctx, conn, dir, pkt, frame)
	}
}

// OnDecodeError passes a decode failure to all error hooks.
func (h *Hooks) OnDecodeError(ctx context.Context, conn ConnInfo, dir Direction, frame []byte, err error) {
	h.mu.RLock()
	hooks := h.errs
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnDecodeError(ctx, conn, dir, frame, err)
	}
}
