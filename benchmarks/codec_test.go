package benchmarks

import (
	"strconv"
	"testing"
	"time"

	"github.com/glowdan/framework/pkg/framework/event"
)

// smallEvent is a typical domain event.
func smallEvent() *event.Event {
	return event.MustNew("order.created", event.Params{
		"id":     42,
		"amount": 19.99,
		"paid":   true,
		"at":     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
}

// wideEvent carries n scalar parameters.
func wideEvent(n int) *event.Event {
	params := make(event.Params, n)
	for i := 0; i < n; i++ {
		params["field_"+strconv.Itoa(i)] = i
	}
	return event.MustNew("batch.imported", params)
}

// nestedEvent carries a map nested depth levels deep.
func nestedEvent(depth int) *event.Event {
	var v any = "leaf"
	for i := 0; i < depth; i++ {
		v = map[string]any{"child": v, "level": i}
	}
	return event.MustNew("tree.built", event.Params{"root": v})
}

func benchSerialize(b *testing.B, evt *event.Event) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := evt.Serialize(); err != nil {
			b.Fatal(err)
		}
	}
}

func benchRestore(b *testing.B, evt *event.Event) {
	data, err := evt.Serialize()
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := event.Decode(data); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSerialize_Small measures encoding a four-parameter event.
func BenchmarkSerialize_Small(b *testing.B) {
	benchSerialize(b, smallEvent())
}

// BenchmarkSerialize_Wide_100 measures encoding 100 parameters.
func BenchmarkSerialize_Wide_100(b *testing.B) {
	benchSerialize(b, wideEvent(100))
}

// BenchmarkSerialize_Nested_32 measures encoding a 32-level nested map.
func BenchmarkSerialize_Nested_32(b *testing.B) {
	benchSerialize(b, nestedEvent(32))
}

// BenchmarkRestore_Small measures decoding a four-parameter event.
func BenchmarkRestore_Small(b *testing.B) {
	benchRestore(b, smallEvent())
}

// BenchmarkRestore_Wide_100 measures decoding 100 parameters.
func BenchmarkRestore_Wide_100(b *testing.B) {
	benchRestore(b, wideEvent(100))
}

// BenchmarkRestore_Nested_32 measures decoding a 32-level nested map.
func BenchmarkRestore_Nested_32(b *testing.B) {
	benchRestore(b, nestedEvent(32))
}

// BenchmarkRestore_Rejected measures refusing a payload with an
// extension type in the parameters.
func BenchmarkRestore_Rejected(b *testing.B) {
	data := []byte{0x93, 0xa3, 'x', '.', 'y', 0x81, 0xa1, 'k', 0xd4, 0x2a, 0x00, 0xc2}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := event.Decode(data); err == nil {
			b.Fatal("expected rejection")
		}
	}
}

// BenchmarkRoundTrip_Parallel serializes and restores from many goroutines.
func BenchmarkRoundTrip_Parallel(b *testing.B) {
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		evt := smallEvent()
		for pb.Next() {
			data, err := evt.Serialize()
			if err != nil {
				b.Fatal(err)
			}
			if _, err := event.Decode(data); err != nil {
				b.Fatal(err)
			}
		}
	})
}
