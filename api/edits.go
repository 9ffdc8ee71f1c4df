package api

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/muhammadmuzzammil1998/jsonc"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/voxelsplace/voxcore/dump"
)

// An edit document maps chunk names to {"<cell index>": block} objects.
// Comments are allowed.
const editsSchema = `{
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "propertyNames": {"pattern": "^[0-9]+$"},
    "additionalProperties": {"type": "integer", "minimum": 0, "maximum": 4294967295}
  }
}`

var compiledEdits = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("edits.schema.json", editsSchema)
})

// EditsFromJSON parses an edit document. Edits for each chunk are sorted by
// cell index.
func EditsFromJSON(b []byte) (map[string][]dump.Edit, error) {
	plain := jsonc.ToJSON(b)
	schema, err := compiledEdits()
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(plain))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("api: edits: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("api: edits: %w", err)
	}

	var raw map[string]map[string]uint32
	if err := json.Unmarshal(plain, &raw); err != nil {
		return nil, fmt.Errorf("api: edits: %w", err)
	}
	out := make(map[string][]dump.Edit, len(raw))
	for name, cells := range raw {
		edits := make([]dump.Edit, 0, len(cells))
		for k, v := range cells {
			i, err := strconv.ParseUint(k, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("api: edits: %s: %w", name, err)
			}
			edits = append(edits, dump.Edit{Index: uint32(i), Block: v})
		}
		slices.SortFunc(edits, func(a, b dump.Edit) int { return cmp.Compare(a.Index, b.Index) })
		out[name] = edits
	}
	return out, nil
}

// EditsToJSON is the inverse of EditsFromJSON.
func EditsToJSON(edits map[string][]dump.Edit) ([]byte, error) {
	doc := make(map[string]map[string]uint32, len(edits))
	for _, name := range slices.Sorted(maps.Keys(edits)) {
		cells := make(map[string]uint32, len(edits[name]))
		for _, e := range edits[name] {
			cells[strconv.FormatUint(uint64(e.Index), 10)] = e.Block
		}
		doc[name] = cells
	}
	return json.MarshalIndent(doc, "", "  ")
}

// PatchDump applies edits to a dump and re-encodes it with the dump's own
// compression and layout.
func PatchDump(b []byte, edits []dump.Edit) ([]byte, error) {
	c, err := dump.Decode(b)
	if err != nil {
		return nil, err
	}
	if err := dump.ApplyEdits(c.Raw, edits); err != nil {
		return nil, err
	}
	return dump.Encode(c.Dims, c.Raw, dump.Options{Compression: c.Compression, Layout: c.Layout, Optimize: true})
}

// PatchPack applies per-entry edits to a pack. Names without a matching
// entry are an error.
func PatchPack(b []byte, edits map[string][]dump.Edit) ([]byte, error) {
	pk, comp, err := dump.UnmarshalPack(b)
	if err != nil {
		return nil, err
	}
	done := 0
	for i, e := range pk.Entries {
		ed, ok := edits[e.Name]
		if !ok {
			continue
		}
		patched, err := PatchDump(e.Dump, ed)
		if err != nil {
			return nil, fmt.Errorf("api: pack entry %q: %w", e.Name, err)
		}
		pk.Entries[i].Dump = patched
		done++
	}
	if done != len(edits) {
		return nil, fmt.Errorf("api: edits name %d chunks, pack matched %d", len(edits), done)
	}
	return pk.Marshal(comp)
}
