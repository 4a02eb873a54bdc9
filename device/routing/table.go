// Package routing maintains the node's view of the network tree: one
// next-hop entry per descendant address, plus the per-peer signing
// requirement bitmap. Both live in nonvolatile storage so a repeater
// rejoins with its topology intact.
package routing

import (
	"log/slog"

	"github.com/sensornet/sensornet-go/core/codec"
	"github.com/sensornet/sensornet-go/core/nvm"
)

// Table wraps the persisted routing state. Route entries are read straight
// from the store (they are consulted once per forwarded message); the
// signing bitmap is cached because it is consulted on every send.
type Table struct {
	store  nvm.Store
	log    *slog.Logger
	doSign [nvm.SigningTableSize]byte
}

// New loads the routing state from store.
func New(store nvm.Store, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Table{
		store: store,
		log:   logger.WithGroup("routing"),
	}
	t.store.ReadBlock(t.doSign[:], nvm.AddrSigningTable)
	// An erased store reads all ones, which would demand signing toward
	// every peer on first boot. Treat it as an empty table; the first
	// REQUEST_SIGNING write persists a real bitmap.
	blank := true
	for _, b := range t.doSign {
		if b != nvm.Erased {
			blank = false
			break
		}
	}
	if blank {
		t.doSign = [nvm.SigningTableSize]byte{}
	}
	return t
}

// NextHop returns the next hop toward dest. Entries that cannot be a real
// downstream hop (the gateway, the broadcast value, or anything outside
// the node range) are reported as unknown.
func (t *Table) NextHop(dest uint8) (hop uint8, ok bool) {
	route := t.store.ReadByte(nvm.AddrRoutes + int(dest))
	if route <= codec.GatewayAddress || route >= codec.BroadcastAddress {
		return codec.BroadcastAddress, false
	}
	return route, true
}

// Learn records that child is reached via the immediate hop via. The store
// is only touched when the entry actually changes.
func (t *Table) Learn(child, via uint8) {
	if t.store.ReadByte(nvm.AddrRoutes+int(child)) == via {
		return
	}
	t.store.WriteByte(nvm.AddrRoutes+int(child), via)
	t.log.Debug("learned route", "child", child, "via", via)
}

// SignRequired reports whether outbound messages to peer must be signed.
func (t *Table) SignRequired(peer uint8) bool {
	return t.doSign[peer>>3]&(1<<(peer&7)) != 0
}

// SetSignRequired updates the signing requirement for peer and persists
// the bitmap.
func (t *Table) SetSignRequired(peer uint8, required bool) {
	if required {
		t.doSign[peer>>3] |= 1 << (peer & 7)
	} else {
		t.doSign[peer>>3] &^= 1 << (peer & 7)
	}
	t.store.WriteBlock(nvm.AddrSigningTable, t.doSign[:])
	t.log.Debug("signing requirement updated", "peer", peer, "required", required)
}
