package firmware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshcore-sim/mc-ns/event"
	"github.com/meshcore-sim/mc-ns/radio"
)

// fakeEntity is a minimal, scriptable Entity used to drive Adapter tests
// without a real firmware implementation.
type fakeEntity struct {
	fs             *MemFS
	nextStep       YieldResult
	injectedRx     []radio.Packet
	injectedSerial [][]byte
	stateNotifies  []uint64
	txCompletes    int
	closed         bool
	lastMillis     uint64
	lastRtcSecs    uint64
}

func newFakeEntity() *fakeEntity {
	return &fakeEntity{fs: NewMemFS()}
}

func (f *fakeEntity) Close() error { f.closed = true; return nil }

func (f *fakeEntity) Step(millis uint64, rtcSecs uint64) YieldResult {
	f.lastMillis = millis
	f.lastRtcSecs = rtcSecs
	return f.nextStep
}

func (f *fakeEntity) InjectRadioRx(pkt radio.Packet, _, _ radio.DbValue) {
	f.injectedRx = append(f.injectedRx, pkt)
}

func (f *fakeEntity) InjectSerialRx(data []byte) {
	f.injectedSerial = append(f.injectedSerial, data)
}

func (f *fakeEntity) NotifyTxComplete() { f.txCompletes++ }

func (f *fakeEntity) NotifyStateChange(version uint64) {
	f.stateNotifies = append(f.stateNotifies, version)
}

func (f *fakeEntity) GetPublicKey() [32]byte { return [32]byte{} }

func (f *fakeEntity) Reboot(any) error { return nil }

func (f *fakeEntity) Filesystem() Filesystem { return f.fs }

func TestStepIdleProducesNoLocalEvents(t *testing.T) {
	fe := newFakeEntity()
	fe.nextStep = YieldResult{Reason: YieldIdle}
	a := New(1, fe, 0)

	out := a.Step(1_000_000)
	assert.Empty(t, out.Local)
	assert.NoError(t, out.Err)
}

func TestStepRadioTxStartEmitsTxStartRequested(t *testing.T) {
	fe := newFakeEntity()
	pkt := radio.Packet{Id: 1, Payload: []byte("hi")}
	params := radio.DefaultParams()
	fe.nextStep = YieldResult{Reason: YieldRadioTxStart, TxPacket: pkt, TxParams: params}
	a := New(1, fe, 0)

	out := a.Step(0)
	require.Len(t, out.Local, 1)
	assert.Equal(t, event.KindTxStartRequested, out.Local[0].Kind)
	assert.Equal(t, pkt, out.Local[0].Packet)
}

func TestStepWakeMillisSchedulesTimer(t *testing.T) {
	fe := newFakeEntity()
	wake := uint64(5000)
	fe.nextStep = YieldResult{Reason: YieldIdle, WakeMillis: &wake}
	a := New(1, fe, 0)

	out := a.Step(0)
	require.Len(t, out.Local, 1)
	assert.Equal(t, event.KindTimer, out.Local[0].Kind)
	assert.Equal(t, wake*1000, uint64(out.Local[0].Time))
}

func TestStepErrorYieldReturnsFatalError(t *testing.T) {
	fe := newFakeEntity()
	fe.nextStep = YieldResult{Reason: YieldError, ErrorMsg: "boom"}
	a := New(1, fe, 0)

	out := a.Step(0)
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "boom")
}

func TestRadioRxDeliverIsFifoBoundedAtAdapter(t *testing.T) {
	fe := newFakeEntity()
	fe.nextStep = YieldResult{Reason: YieldIdle}
	a := New(1, fe, 0)

	for i := 0; i < RxFifoDepth+3; i++ {
		a.Dispatch(event.NewRadioRxDeliver(0, radio.Packet{Id: uint64(i)}, 5, -90))
	}
	a.Step(0)
	assert.Len(t, fe.injectedRx, RxFifoDepth, "arrivals beyond FIFO depth must be dropped at the adapter boundary")
}

func TestRadioStateChangeNotifiesEntity(t *testing.T) {
	fe := newFakeEntity()
	a := New(1, fe, 0)
	a.Dispatch(event.NewRadioStateChange(0, event.RadioStateTransmitting, 7))
	require.Len(t, fe.stateNotifies, 1)
	assert.Equal(t, uint64(7), fe.stateNotifies[0])
}

func TestSerialRxFromAgentInjectsBytes(t *testing.T) {
	fe := newFakeEntity()
	a := New(1, fe, 0)
	a.Dispatch(event.NewSerialRxFromAgent(0, []byte("hello")))
	require.Len(t, fe.injectedSerial, 1)
	assert.Equal(t, []byte("hello"), fe.injectedSerial[0])
}

func TestNotifyTxCompleteForwardsToEntity(t *testing.T) {
	fe := newFakeEntity()
	a := New(1, fe, 0)
	a.NotifyTxComplete()
	assert.Equal(t, 1, fe.txCompletes)
}

func TestDispatchPanicsOnUnroutableKind(t *testing.T) {
	fe := newFakeEntity()
	a := New(1, fe, 0)
	assert.Panics(t, func() {
		a.Dispatch(event.NewTimer(0, 1))
	})
}

func TestRtcSecondsAdvancesWithVirtualTime(t *testing.T) {
	fe := newFakeEntity()
	fe.nextStep = YieldResult{Reason: YieldIdle}
	a := New(1, fe, 1_000)

	a.Step(2_000_000) // 2 seconds of virtual time
	assert.Equal(t, uint64(1002), fe.lastRtcSecs)
	assert.Equal(t, uint64(2000), fe.lastMillis)
}
