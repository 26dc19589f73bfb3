package block

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu     sync.Mutex
	pushes []pushedBlock
	errs   []error
}

type pushedBlock struct {
	id      ID
	records []Record
}

func (l *recordingListener) OnPushBlock(id ID, records []Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := make([]Record, len(records))
	copy(cp, records)
	l.pushes = append(l.pushes, pushedBlock{id: id, records: cp})
}

func (l *recordingListener) OnError(message string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, fmtErr(message, err))
}

func fmtErr(message string, err error) error {
	return errors.Join(errors.New(message), err)
}

func (l *recordingListener) snapshot() ([]pushedBlock, []error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pushes := make([]pushedBlock, len(l.pushes))
	copy(pushes, l.pushes)
	errs := make([]error, len(l.errs))
	copy(errs, l.errs)
	return pushes, errs
}

func TestGenerator_OrdersRecordsWithinAndAcrossBlocks(t *testing.T) {
	listener := &recordingListener{}
	g := NewGenerator("receiver-1", 20*time.Millisecond, 4, listener)
	g.Start()

	g.Append(Record("a"))
	g.Append(Record("b"))
	time.Sleep(40 * time.Millisecond)
	g.Append(Record("c"))

	g.Stop(true)

	pushes, errs := listener.snapshot()
	require.Empty(t, errs)
	require.GreaterOrEqual(t, len(pushes), 1)

	var all []Record
	for _, p := range pushes {
		all = append(all, p.records...)
	}
	require.Equal(t, []Record{Record("a"), Record("b"), Record("c")}, all)
}

func TestGenerator_CallbackFiresExactlyOnceAfterItsBlockIsPushed(t *testing.T) {
	listener := &recordingListener{}
	g := NewGenerator("receiver-1", 15*time.Millisecond, 4, listener)
	g.Start()

	var fired int32
	var mu sync.Mutex
	var firedAfterPush bool

	g.AppendWithCallback(Record("x"), func(arg any) {
		mu.Lock()
		defer mu.Unlock()
		fired++
		pushes, _ := listener.snapshot()
		firedAfterPush = len(pushes) >= 1
	}, nil)

	g.Stop(true)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, int32(1), fired)
	require.True(t, firedAfterPush)
}

func TestGenerator_EmptyIntervalCutsNothing(t *testing.T) {
	listener := &recordingListener{}
	g := NewGenerator("receiver-1", 10*time.Millisecond, 4, listener)
	g.Start()

	time.Sleep(35 * time.Millisecond)
	g.Stop(false)

	pushes, errs := listener.snapshot()
	require.Empty(t, errs)
	require.Empty(t, pushes)
}

// blockingListener never returns from OnPushBlock until released, so the
// generator's bounded queue fills up and timer-driven cuts start to back
// up behind it.
type blockingListener struct {
	release chan struct{}
	entered chan struct{}
}

func newBlockingListener() *blockingListener {
	return &blockingListener{
		release: make(chan struct{}),
		entered: make(chan struct{}, 64),
	}
}

func (l *blockingListener) OnPushBlock(id ID, records []Record) {
	l.entered <- struct{}{}
	<-l.release
}

func (l *blockingListener) OnError(message string, err error) {}

func TestGenerator_BackpressureBlocksCutWhenQueueIsFull(t *testing.T) {
	listener := newBlockingListener()
	interval := 5 * time.Millisecond
	g := NewGenerator("receiver-1", interval, 1, listener)
	g.Start()

	g.Append(Record("seed"))

	select {
	case <-listener.entered:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first push to begin")
	}

	for i := 0; i < 3; i++ {
		g.Append(Record("r"))
		time.Sleep(interval * 2)
	}

	done := make(chan struct{})
	go func() {
		close(listener.release)
		g.Stop(true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("generator failed to stop after releasing the blocked listener")
	}
}

func TestGenerator_StopWithFinalCutFlushesTrailingRecords(t *testing.T) {
	listener := &recordingListener{}
	g := NewGenerator("receiver-1", time.Hour, 4, listener)
	g.Start()

	g.Append(Record("trailing"))
	g.Stop(true)

	pushes, errs := listener.snapshot()
	require.Empty(t, errs)
	require.Len(t, pushes, 1)
	require.Equal(t, []Record{Record("trailing")}, pushes[0].records)
}

func TestGenerator_StopWithoutFinalCutDropsTrailingRecords(t *testing.T) {
	listener := &recordingListener{}
	g := NewGenerator("receiver-1", time.Hour, 4, listener)
	g.Start()

	g.Append(Record("trailing"))
	g.Stop(false)

	pushes, errs := listener.snapshot()
	require.Empty(t, errs)
	require.Empty(t, pushes)
}

type recordingMetrics struct {
	mu          sync.Mutex
	appended    int
	cuts        int
	queueDepths []int
	pushes      int
}

func (m *recordingMetrics) IncAppended() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended++
}

func (m *recordingMetrics) IncCut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cuts++
}

func (m *recordingMetrics) SetQueueDepth(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepths = append(m.queueDepths, n)
}

func (m *recordingMetrics) ObservePush(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes++
}

func (m *recordingMetrics) snapshot() (appended, cuts, pushes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appended, m.cuts, m.pushes
}

func TestGenerator_MetricsObserveAppendsCutsAndPushes(t *testing.T) {
	listener := &recordingListener{}
	metrics := &recordingMetrics{}
	g := NewGenerator("receiver-1", 15*time.Millisecond, 4, listener, WithMetrics(metrics))
	g.Start()

	g.Append(Record("a"))
	g.Append(Record("b"))
	g.Stop(true)

	appended, cuts, pushes := metrics.snapshot()
	require.Equal(t, 2, appended)
	require.GreaterOrEqual(t, cuts, 1)
	require.GreaterOrEqual(t, pushes, 1)
}

func TestNextBoundary_AlignsToIntervalMultiple(t *testing.T) {
	base := time.Unix(0, 0)
	interval := 200 * time.Millisecond

	now := base.Add(130 * time.Millisecond)
	got := nextBoundary(now, interval)
	require.Equal(t, base.Add(200*time.Millisecond), got)

	onBoundary := base.Add(400 * time.Millisecond)
	got = nextBoundary(onBoundary, interval)
	require.Equal(t, base.Add(600*time.Millisecond), got)
}
