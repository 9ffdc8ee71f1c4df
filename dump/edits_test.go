package dump

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/voxelsplace/voxcore/chunk"
)

func TestEditsRoundTrip(t *testing.T) {
	d := chunk.Default
	edits := []Edit{{0, 1}, {511, 0}, {146, 1 << 20}, {7, 300}}
	b, err := EncodeEdits(d, edits)
	if err != nil {
		t.Fatal(err)
	}
	// count + ceil(4*9/8) index bytes + varints 1, 0, 3 bytes, 2 bytes
	if want := 1 + 5 + 1 + 1 + 3 + 2; len(b) != want {
		t.Fatalf("stream is %d bytes, want %d", len(b), want)
	}
	got, err := DecodeEdits(d, b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(edits, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestEditsEmpty(t *testing.T) {
	b, err := EncodeEdits(chunk.Default, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeEdits(chunk.Default, b)
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestEditsRejects(t *testing.T) {
	d := chunk.Dims{X: 2, Y: 2, Z: 2}
	if _, err := EncodeEdits(d, []Edit{{8, 1}}); !errors.Is(err, ErrEditIndex) {
		t.Fatalf("want ErrEditIndex, got %v", err)
	}
	b, _ := EncodeEdits(d, []Edit{{3, 1}, {4, 2}})
	if _, err := DecodeEdits(d, b[:len(b)-1]); err == nil {
		t.Fatal("truncated stream decoded")
	}
	if _, err := DecodeEdits(d, append(b, 0)); !errors.Is(err, ErrFormat) {
		t.Fatalf("want ErrFormat for trailing bytes, got %v", err)
	}
	if _, err := DecodeEdits(d, []byte{200, 1}); !errors.Is(err, ErrFormat) {
		t.Fatalf("want ErrFormat for short index section, got %v", err)
	}
}

func TestApplyEditsAndDiff(t *testing.T) {
	from := []uint32{0, 1, 2, 3}
	to := []uint32{0, 5, 2, 0}
	edits, err := Diff(from, to)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Edit{{1, 5}, {3, 0}}, edits); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	raw := append([]uint32(nil), from...)
	if err := ApplyEdits(raw, edits); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(to, raw); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if err := ApplyEdits(raw, []Edit{{0, 9}, {4, 1}}); !errors.Is(err, ErrEditIndex) {
		t.Fatalf("want ErrEditIndex, got %v", err)
	}
	if raw[0] != 0 {
		t.Fatal("partial apply after a bad edit")
	}
}

func TestPackRoundTrip(t *testing.T) {
	d := chunk.Dims{X: 16, Y: 16, Z: 16}
	var p Pack
	want := map[string][]byte{}
	for i := range 6 {
		// Chunks 0, 2, 4 share the same terrain.
		b, err := Encode(d, terrain(d, int64(i%2)), Options{})
		if err != nil {
			t.Fatal(err)
		}
		name := string(rune('a' + i))
		p.Add(name, b)
		want[name] = b
	}
	for _, comp := range []Compression{CompNone, CompZstd} {
		data, err := p.Marshal(comp)
		if err != nil {
			t.Fatal(err)
		}
		got, gotComp, err := UnmarshalPack(data)
		if err != nil {
			t.Fatal(err)
		}
		if gotComp != comp || len(got.Entries) != 6 {
			t.Fatalf("comp %v entries %d", gotComp, len(got.Entries))
		}
		for _, e := range got.Entries {
			if diff := cmp.Diff(want[e.Name], e.Dump); diff != "" {
				t.Fatalf("%s (-want +got):\n%s", e.Name, diff)
			}
		}
	}
}

func TestPackDeduplicates(t *testing.T) {
	d := chunk.Dims{X: 16, Y: 16, Z: 16}
	b, _ := Encode(d, terrain(d, 3), Options{})
	var one, many Pack
	one.Add("x", b)
	for range 8 {
		many.Add("x", b)
	}
	a, _ := one.Marshal(CompNone)
	m, _ := many.Marshal(CompNone)
	// Repeats only add per-entry references.
	if len(m)-len(a) > 8*64 {
		t.Fatalf("pack of 8 copies is %d bytes, single %d", len(m), len(a))
	}
}

func TestUnmarshalPackRejects(t *testing.T) {
	if _, _, err := UnmarshalPack([]byte("VXCDPACK")); !errors.Is(err, ErrFormat) {
		t.Fatalf("want ErrFormat, got %v", err)
	}
	var p Pack
	p.Add("a", []byte("hello"))
	data, _ := p.Marshal(CompNone)
	data[len(packMagic)] = 7
	if _, _, err := UnmarshalPack(data); !errors.Is(err, ErrVersion) {
		t.Fatalf("want ErrVersion, got %v", err)
	}

	// one 5-byte block referenced once, entry claiming almost 4 GiB
	inflated := []byte(packMagic)
	inflated = append(inflated, packVersion1, byte(CompNone))
	le := binary.LittleEndian
	inflated = le.AppendUint32(inflated, 1)
	inflated = le.AppendUint32(inflated, 5)
	inflated = append(inflated, "hello"...)
	inflated = le.AppendUint32(inflated, 1)
	inflated = le.AppendUint16(inflated, 1)
	inflated = append(inflated, 'a')
	inflated = le.AppendUint32(inflated, 0xFFFFFFF0)
	inflated = le.AppendUint32(inflated, 1)
	inflated = le.AppendUint32(inflated, 0)
	if _, _, err := UnmarshalPack(inflated); !errors.Is(err, ErrFormat) {
		t.Fatalf("inflated entry length: want ErrFormat, got %v", err)
	}
}
