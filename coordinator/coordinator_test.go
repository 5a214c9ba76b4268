package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshcore-sim/mc-ns/firmware"
	"github.com/meshcore-sim/mc-ns/linkmodel"
	"github.com/meshcore-sim/mc-ns/radio"
	"github.com/meshcore-sim/mc-ns/radiomodel"
	"github.com/meshcore-sim/mc-ns/router"
	"github.com/meshcore-sim/mc-ns/simtime"
	"github.com/meshcore-sim/mc-ns/worker"
)

// idleEntity never transmits and never requests a wake; it exists purely
// to occupy a node worker slot as a receiver in scenario tests.
type idleEntity struct {
	fs        *firmware.MemFS
	delivered []radio.Packet
}

func newIdleEntity() *idleEntity { return &idleEntity{fs: firmware.NewMemFS()} }

func (e *idleEntity) Close() error                                     { return nil }
func (e *idleEntity) Step(uint64, uint64) firmware.YieldResult         { return firmware.YieldResult{Reason: firmware.YieldIdle} }
func (e *idleEntity) InjectRadioRx(pkt radio.Packet, _, _ radio.DbValue) {
	e.delivered = append(e.delivered, pkt)
}
func (e *idleEntity) InjectSerialRx([]byte)               {}
func (e *idleEntity) NotifyTxComplete()                   {}
func (e *idleEntity) NotifyStateChange(uint64)            {}
func (e *idleEntity) GetPublicKey() [32]byte              { return [32]byte{} }
func (e *idleEntity) Reboot(any) error                    { return nil }
func (e *idleEntity) Filesystem() firmware.Filesystem     { return e.fs }

// txOnceEntity yields RadioTxStart exactly once, on its first Step call,
// then goes idle.
type txOnceEntity struct {
	fs      *firmware.MemFS
	pkt     radio.Packet
	params  radio.Params
	fired   bool
}

func newTxOnceEntity(pkt radio.Packet, params radio.Params) *txOnceEntity {
	return &txOnceEntity{fs: firmware.NewMemFS(), pkt: pkt, params: params}
}

func (e *txOnceEntity) Close() error { return nil }
func (e *txOnceEntity) Step(uint64, uint64) firmware.YieldResult {
	if e.fired {
		return firmware.YieldResult{Reason: firmware.YieldIdle}
	}
	e.fired = true
	return firmware.YieldResult{Reason: firmware.YieldRadioTxStart, TxPacket: e.pkt, TxParams: e.params}
}
func (e *txOnceEntity) InjectRadioRx(radio.Packet, radio.DbValue, radio.DbValue) {}
func (e *txOnceEntity) InjectSerialRx([]byte)                                   {}
func (e *txOnceEntity) NotifyTxComplete()                                       {}
func (e *txOnceEntity) NotifyStateChange(uint64)                                {}
func (e *txOnceEntity) GetPublicKey() [32]byte                                  { return [32]byte{} }
func (e *txOnceEntity) Reboot(any) error                                        { return nil }
func (e *txOnceEntity) Filesystem() firmware.Filesystem                        { return e.fs }

const (
	nodeA simtime.NodeId = 1
	nodeB simtime.NodeId = 2
)

// harness wires up a small two-node (or more) run: one worker goroutine
// per node, a shared report channel, and a Coordinator driving them to
// runDuration.
type harness struct {
	coord    *Coordinator
	reports  chan worker.Report
	cancel   context.CancelFunc
	entities map[simtime.NodeId]firmware.Entity
}

func newHarness(t *testing.T, runDuration simtime.SimTime, edges []linkmodel.Edge, entities map[simtime.NodeId]firmware.Entity) *harness {
	t.Helper()

	var nodes []simtime.NodeId
	for id := range entities {
		nodes = append(nodes, id)
	}
	links, err := linkmodel.NewTableModel(nodes, edges, 1)
	require.NoError(t, err)

	reports := make(chan worker.Report, 16)
	workersByNode := map[simtime.NodeId]chan<- worker.Command{}
	ctx, cancel := context.WithCancel(context.Background())

	for id, entity := range entities {
		radioModel := radiomodel.New(id)
		fw := firmware.New(id, entity, 0)
		w := worker.New(id, radioModel, fw, nil, reports, 8)
		workersByNode[id] = w.Commands
		go w.Run(ctx)
	}

	r := router.New(links, nodes)
	c := New(runDuration, r, workersByNode, reports)

	return &harness{coord: c, reports: reports, cancel: cancel, entities: entities}
}

func (h *harness) run(t *testing.T) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- h.coord.Run(context.Background()) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator run timed out")
		return nil
	}
}

// Scenario 1: two-peer, one-hop delivery.
func TestTwoPeerOneHopDelivery(t *testing.T) {
	pkt := radio.Packet{Id: 1, Payload: make([]byte, 32)}
	params := radio.DefaultParams()
	params.SpreadingFactor = 11
	params.BandwidthHz = 125_000

	txEntity := newTxOnceEntity(pkt, params)
	rxEntity := newIdleEntity()

	h := newHarness(t, 2_000_000, []linkmodel.Edge{
		{From: nodeA, To: nodeB, MeanSnrDb: 5},
	}, map[simtime.NodeId]firmware.Entity{nodeA: txEntity, nodeB: rxEntity})
	defer h.cancel()

	err := h.run(t)
	require.NoError(t, err)

	require.Len(t, rxEntity.delivered, 1)
	assert.Equal(t, pkt.Id, rxEntity.delivered[0].Id)
}

// Scenario 4: receiver busy — B is transmitting when A's signal would
// arrive, so no ActiveReception is created at B and nothing is
// delivered.
func TestReceiverBusyDropsTransmission(t *testing.T) {
	pktA := radio.Packet{Id: 1, Payload: make([]byte, 32)}
	pktB := radio.Packet{Id: 2, Payload: make([]byte, 32)}
	params := radio.DefaultParams()

	txA := newTxOnceEntity(pktA, params)
	txB := newTxOnceEntity(pktB, params) // B also transmits immediately, so it is busy the whole run

	h := newHarness(t, 2_000_000, []linkmodel.Edge{
		{From: nodeA, To: nodeB, MeanSnrDb: 5},
		{From: nodeB, To: nodeA, MeanSnrDb: 5},
	}, map[simtime.NodeId]firmware.Entity{nodeA: txA, nodeB: txB})
	defer h.cancel()

	err := h.run(t)
	require.NoError(t, err)
	// Both transmit near-simultaneously; since both begin turnaround at
	// t=0 neither can be the other's receiver, so no InjectRadioRx was
	// ever recorded on the (stub) entities above — nothing to assert
	// beyond a clean run completing without a determinism-violation abort.
}

// Scenario 2: mutual collision. A and B transmit simultaneously on the
// same frequency to shared receivers C and D; both arriving signals
// overlap at each receiver, so neither ActiveReception should ever be
// delivered to firmware. This drives the real TransmitAir -> Route ->
// ReceiveAir path (through the Graph Router), rather than calling
// radiomodel.Model.ReceiveAir directly with hand-picked packet ids, so it
// also exercises the transmitter-stamped packetId threading end to end.
func TestMutualCollisionNeitherSharedReceiverDelivers(t *testing.T) {
	const (
		nodeC simtime.NodeId = 3
		nodeD simtime.NodeId = 4
	)

	pktA := radio.Packet{Payload: make([]byte, 32)}
	pktB := radio.Packet{Payload: make([]byte, 32)}
	params := radio.DefaultParams()

	txA := newTxOnceEntity(pktA, params)
	txB := newTxOnceEntity(pktB, params)
	rxC := newIdleEntity()
	rxD := newIdleEntity()

	h := newHarness(t, 2_000_000, []linkmodel.Edge{
		{From: nodeA, To: nodeC, MeanSnrDb: 5},
		{From: nodeA, To: nodeD, MeanSnrDb: 5},
		{From: nodeB, To: nodeC, MeanSnrDb: 5},
		{From: nodeB, To: nodeD, MeanSnrDb: 5},
	}, map[simtime.NodeId]firmware.Entity{
		nodeA: txA, nodeB: txB, nodeC: rxC, nodeD: rxD,
	})
	defer h.cancel()

	err := h.run(t)
	require.NoError(t, err)

	assert.Empty(t, rxC.delivered, "C's two overlapping same-frequency receptions must both collide and never deliver")
	assert.Empty(t, rxD.delivered, "D's two overlapping same-frequency receptions must both collide and never deliver")
}

// Scenario 6 (first half): determinism. Two independent harnesses built
// from the same seed and topology must deliver the same packet.
func TestDeterministicRunsDeliverSamePacket(t *testing.T) {
	build := func() *idleEntity {
		return newIdleEntity()
	}
	pkt := radio.Packet{Id: 42, Payload: make([]byte, 32)}
	params := radio.DefaultParams()

	run := func() []radio.Packet {
		rx := build()
		tx := newTxOnceEntity(pkt, params)
		h := newHarness(t, 2_000_000, []linkmodel.Edge{
			{From: nodeA, To: nodeB, MeanSnrDb: 5},
		}, map[simtime.NodeId]firmware.Entity{nodeA: tx, nodeB: rx})
		defer h.cancel()
		require.NoError(t, h.run(t))
		return rx.delivered
	}

	d1 := run()
	d2 := run()
	assert.Equal(t, d1, d2)
	require.Len(t, d1, 1)
}
