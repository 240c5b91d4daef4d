package virtual

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type scrollRecorder struct {
	calls []float64
}

func (r *scrollRecorder) scrollTo(off float64) { r.calls = append(r.calls, off) }

func fixed(size float64) func(int) float64 {
	return func(int) float64 { return size }
}

func TestVirtualItems_WindowIsBounded(t *testing.T) {
	v := New(Options{
		Count:        1000,
		EstimateSize: fixed(50),
		ViewportSize: 800,
		Overscan:     8,
	})

	for _, off := range []float64{0, 25, 12_345, 25_000, 49_200} {
		v.SetScrollOffset(off)
		first, last, ok := v.VisibleRange()
		if !ok {
			t.Fatalf("offset %v: nothing visible", off)
		}
		visible := last - first + 1
		items := v.VirtualItems()
		if len(items) > visible+16 {
			t.Fatalf("offset %v: %d items for %d visible", off, len(items), visible)
		}
		if items[0].Index != max(0, first-8) || items[len(items)-1].Index != min(999, last+8) {
			t.Fatalf("offset %v: window [%d,%d] for visible [%d,%d]",
				off, items[0].Index, items[len(items)-1].Index, first, last)
		}
	}

	v.SetScrollOffset(25_000)
	got := v.VirtualItems()[8]
	want := Item{Index: 500, Key: "500", Start: 25_000, End: 25_050, Size: 50, State: Estimated}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("first visible item (-want +got):\n%s", diff)
	}
}

func TestVirtualItems_EmptyList(t *testing.T) {
	v := New(Options{EstimateSize: fixed(50), ViewportSize: 800, PaddingStart: 10, PaddingEnd: 6})
	if items := v.VirtualItems(); items != nil {
		t.Fatalf("got %v", items)
	}
	if got := v.TotalSize(); got != 16 {
		t.Fatalf("TotalSize = %v, want 16", got)
	}
}

func TestTotalSize_PaddingGapAndMargin(t *testing.T) {
	v := New(Options{
		Count:        3,
		EstimateSize: fixed(100),
		Gap:          10,
		PaddingStart: 20,
		PaddingEnd:   30,
		ScrollMargin: 500,
	})
	if got := v.TotalSize(); got != 20+100+10+100+10+100+30 {
		t.Fatalf("TotalSize = %v", got)
	}
	it, _ := v.Item(1)
	if it.Start != 500+20+110 {
		t.Fatalf("item 1 start = %v", it.Start)
	}
}

func TestSetCount_AppendKeepsOffsetsAndNeverScrolls(t *testing.T) {
	rec := &scrollRecorder{}
	v := New(Options{
		Count:        100,
		EstimateSize: fixed(40),
		Gap:          4,
		ViewportSize: 800,
		ScrollTo:     rec.scrollTo,
	})
	v.SetScrollOffset(1000)
	before := v.VirtualItems()
	total := v.TotalSize()

	v.SetCount(110)

	if diff := cmp.Diff(before, v.VirtualItems()); diff != "" {
		t.Fatalf("window moved after append (-before +after):\n%s", diff)
	}
	wantPending := []int{100, 101, 102, 103, 104, 105, 106, 107, 108, 109}
	if diff := cmp.Diff(wantPending, v.PendingMeasurements()); diff != "" {
		t.Fatalf("pending (-want +got):\n%s", diff)
	}

	for i := 100; i < 110; i++ {
		if !v.MeasureElement(i, 60) {
			t.Fatalf("appended item %d not measured", i)
		}
	}
	if got, want := v.TotalSize(), total+10*(60+4); got != want {
		t.Fatalf("TotalSize = %v, want %v", got, want)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("ScrollTo called %v", rec.calls)
	}
	if len(v.PendingMeasurements()) != 0 {
		t.Fatal("pending measurements not drained")
	}
	if v.ScrollOffset() != 1000 {
		t.Fatalf("offset = %v", v.ScrollOffset())
	}
}

func TestMeasureElement_ShiftsLaterItems(t *testing.T) {
	v := New(Options{Count: 10, EstimateSize: fixed(50), Gap: 2, ViewportSize: 500})

	if !v.MeasureElement(0, 80) {
		t.Fatal("first measurement rejected")
	}
	if v.MeasureElement(0, 80) {
		t.Fatal("identical measurement reported a change")
	}
	first, _ := v.Item(0)
	second, _ := v.Item(1)
	if first.State != Measured || first.Size != 80 {
		t.Fatalf("item 0 = %+v", first)
	}
	if second.Start != 82 || second.State != Estimated {
		t.Fatalf("item 1 = %+v", second)
	}
	if v.MeasureElement(10, 1) || v.MeasureElement(-1, 1) {
		t.Fatal("out of range index accepted")
	}
}

func TestMeasureElement_FarItemsAreMeasuredOnce(t *testing.T) {
	v := New(Options{Count: 1000, EstimateSize: fixed(50), ViewportSize: 800})

	if !v.MeasureElement(900, 80) {
		t.Fatal("first measurement of a far item must apply")
	}
	if v.MeasureElement(900, 90) {
		t.Fatal("far item re-measured")
	}

	v.SetScrollOffset(45_000)
	if !v.MeasureElement(900, 90) {
		t.Fatal("item inside the proximity zone not re-measured")
	}
	it, _ := v.Item(900)
	if it.Size != 90 {
		t.Fatalf("size = %v", it.Size)
	}
}

func TestMeasureElement_ResizeAboveViewportKeepsContent(t *testing.T) {
	rec := &scrollRecorder{}
	v := New(Options{Count: 100, EstimateSize: fixed(50), ViewportSize: 800, ScrollTo: rec.scrollTo})
	v.SetScrollOffset(1000)

	v.MeasureElement(0, 70)

	if diff := cmp.Diff([]float64{1020}, rec.calls); diff != "" {
		t.Fatalf("ScrollTo calls (-want +got):\n%s", diff)
	}
	if v.ScrollOffset() != 1020 {
		t.Fatalf("offset = %v", v.ScrollOffset())
	}
}

func keyed(keys []string) func(int) string {
	return func(i int) string { return keys[i] }
}

func TestSetKeys_IdentityChangeRevertsMeasurement(t *testing.T) {
	v := New(Options{Count: 3, EstimateSize: fixed(50), ItemKey: keyed([]string{"a", "b", "c"}), ViewportSize: 800})
	v.MeasureElement(1, 99)

	v.SetKeys([]string{"z", "a", "b", "c"})
	it, _ := v.Item(2)
	if it.Key != "b" || it.State != Measured || it.Size != 99 {
		t.Fatalf("measurement did not follow its key: %+v", it)
	}

	v.SetKeys([]string{"z", "a", "x", "c"})
	it, _ = v.Item(2)
	if it.State != Estimated || it.Size != 50 {
		t.Fatalf("changed identity kept its measurement: %+v", it)
	}

	v.SetKeys([]string{"z", "a", "b", "c"})
	it, _ = v.Item(2)
	if it.State != Estimated {
		t.Fatalf("returning identity reused a dropped measurement: %+v", it)
	}
}

func TestSetKeys_TailKeysMeasuredImmediately(t *testing.T) {
	v := New(Options{Count: 2, EstimateSize: fixed(50), ItemKey: keyed([]string{"a", "b"})})
	v.SetKeys([]string{"new", "a", "b", "c", "d"})

	if diff := cmp.Diff([]int{3, 4}, v.PendingMeasurements()); diff != "" {
		t.Fatalf("pending (-want +got):\n%s", diff)
	}
}

func TestCommitMutation_RestoreOnDeltaCorrectsOnce(t *testing.T) {
	rec := &scrollRecorder{}
	keys := make([]string, 100)
	for i := range keys {
		keys[i] = "post" + strconv.Itoa(i)
	}
	v := New(Options{Count: 100, EstimateSize: fixed(100), ItemKey: keyed(keys), ViewportSize: 800, ScrollTo: rec.scrollTo})
	v.SetScrollOffset(1000)

	anchor := v.BeginMutation()
	if anchor.Offset != 1000 || anchor.Key != "post10" {
		t.Fatalf("anchor = %+v", anchor)
	}
	v.SetKeys(append([]string{"new0", "new1", "new2"}, keys...))

	if !v.CommitMutation(1300) {
		t.Fatal("large drift not corrected")
	}
	if v.CommitMutation(1300) {
		t.Fatal("drift corrected twice")
	}
	if diff := cmp.Diff([]float64{1000}, rec.calls); diff != "" {
		t.Fatalf("ScrollTo calls (-want +got):\n%s", diff)
	}

	v.BeginMutation()
	if v.CommitMutation(1300 + 4) {
		t.Fatal("drift within tolerance corrected")
	}
}

func TestCommitMutation_AppendOnlyNeverCorrects(t *testing.T) {
	rec := &scrollRecorder{}
	v := New(Options{Count: 100, EstimateSize: fixed(100), ViewportSize: 800, Policy: AppendOnly{}, ScrollTo: rec.scrollTo})
	v.SetScrollOffset(1000)

	v.BeginMutation()
	v.SetCount(103)
	if v.CommitMutation(5000) {
		t.Fatal("AppendOnly corrected")
	}
	if len(rec.calls) != 0 || v.ScrollOffset() != 5000 {
		t.Fatalf("calls=%v offset=%v", rec.calls, v.ScrollOffset())
	}
}

func TestRestoreOnDelta(t *testing.T) {
	p := RestoreOnDelta{Tolerance: 5}
	if _, ok := p.Correct(100, 105); ok {
		t.Fatal("delta equal to tolerance corrected")
	}
	if got, ok := p.Correct(100, 94); !ok || got != 100 {
		t.Fatalf("got %v, %v", got, ok)
	}
}
