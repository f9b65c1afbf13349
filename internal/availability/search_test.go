package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-voice-booking/internal/dentally"
)

func TestInitialWindow(t *testing.T) {
	s := newTestSearcher(&fakeSource{}, 5)

	w := s.InitialWindow(testT, testNow)
	assert.Equal(t, testT.Add(-12*time.Hour), w.Start)
	assert.Equal(t, testT.Add(25*time.Hour), w.End)

	soon := testNow.Add(3 * time.Hour)
	w = s.InitialWindow(soon, testNow)
	assert.Equal(t, testNow.Add(time.Hour), w.Start, "lookback is floored at now+1h")
	assert.Equal(t, soon.Add(25*time.Hour), w.End)

	past := testNow.Add(-48 * time.Hour)
	w = s.InitialWindow(past, testNow)
	assert.True(t, w.End.After(w.Start))
}

func TestSearchExactMatchNoExpansion(t *testing.T) {
	src := &fakeSource{blocks: []FreeBlock{block(10, testT, 2*time.Hour)}}
	res := newTestSearcher(src, 5).Search(context.Background(), SearchRequest{
		ServiceID: 1, DurationMinutes: 60, RequestedStart: testT, PractitionerIDs: []int{10},
	})

	require.NotEmpty(t, res.Slots)
	assert.Equal(t, testT, res.Slots[0].Start)
	assert.True(t, res.ExactMatch(testT))
	assert.Equal(t, 1, res.Attempts())
	assert.Equal(t, 1, src.calls)
	assert.False(t, res.Exhausted)
}

func TestSearchZeroPractitionersSkipsGateway(t *testing.T) {
	src := &fakeSource{blocks: []FreeBlock{block(10, testT, 2*time.Hour)}}
	res := newTestSearcher(src, 5).Search(context.Background(), SearchRequest{
		ServiceID: 2, DurationMinutes: 30, RequestedStart: testT,
	})
	assert.True(t, res.Exhausted)
	assert.Empty(t, res.Slots)
	assert.Equal(t, 0, src.calls)
}

func TestSearchExpandsWindows(t *testing.T) {
	later := testT.Add(60 * time.Hour)
	src := &fakeSource{blocks: []FreeBlock{block(10, later, time.Hour)}}
	res := newTestSearcher(src, 5).Search(context.Background(), SearchRequest{
		ServiceID: 1, DurationMinutes: 60, RequestedStart: testT, PractitionerIDs: []int{10},
	})

	require.Len(t, res.Slots, 1)
	assert.Equal(t, later, res.Slots[0].Start)
	assert.Equal(t, 3, res.Attempts())
	for i := 1; i < len(res.Windows); i++ {
		assert.Equal(t, res.Windows[i-1].End, res.Windows[i].Start, "windows must be contiguous")
		assert.Equal(t, 25*time.Hour, res.Windows[i].Length())
	}
}

func TestSearchTerminatesWhenGatewayAlwaysFails(t *testing.T) {
	remote := &stubRemote{err: errors.New("dial tcp: i/o timeout")}
	gateway := NewGateway(remote, nil, nil)
	res := newTestSearcher(gateway, 6).Search(context.Background(), SearchRequest{
		ServiceID: 1, DurationMinutes: 60, RequestedStart: testT, PractitionerIDs: []int{10},
	})

	assert.True(t, res.Exhausted)
	assert.Equal(t, 6, remote.calls)
	assert.Equal(t, "no slots found after searching 6 windows", res.Message)
}

func TestSearchAbsentAvailabilityWidens(t *testing.T) {
	remote := &stubRemote{res: &dentally.AvailabilityResult{}}
	res := newTestSearcher(NewGateway(remote, nil, nil), 3).Search(context.Background(), SearchRequest{
		ServiceID: 1, DurationMinutes: 60, RequestedStart: testT, PractitionerIDs: []int{10},
	})
	assert.True(t, res.Exhausted)
	assert.Equal(t, 3, remote.calls)
}

func TestSearchRequestAttemptOverride(t *testing.T) {
	src := &fakeSource{}
	res := newTestSearcher(src, 7).Search(context.Background(), SearchRequest{
		ServiceID: 1, DurationMinutes: 60, RequestedStart: testT, PractitionerIDs: []int{10}, MaxAttempts: 2,
	})
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, 2, res.Attempts())
}

func TestSearchAfterFilter(t *testing.T) {
	src := &fakeSource{blocks: []FreeBlock{block(20, testT, 3*time.Hour)}}
	res := newTestSearcher(src, 5).Search(context.Background(), SearchRequest{
		ServiceID: 2, DurationMinutes: 30, RequestedStart: testT.Add(time.Hour),
		PractitionerIDs: []int{20}, After: testT.Add(time.Hour),
	})
	require.NotEmpty(t, res.Slots)
	for _, s := range res.Slots {
		assert.True(t, s.Start.After(testT.Add(time.Hour)))
	}
	assert.Equal(t, testT.Add(90*time.Minute), res.Slots[0].Start)
}

func TestSearchRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{}
	res := newTestSearcher(src, 5).Search(ctx, SearchRequest{
		ServiceID: 1, DurationMinutes: 60, RequestedStart: testT, PractitionerIDs: []int{10},
	})
	assert.True(t, res.Exhausted)
	assert.Equal(t, 0, src.calls)
}
