//go:build js && wasm

package main

import (
	"syscall/js"

	"github.com/voxelsplace/voxcore/api"
	"github.com/voxelsplace/voxcore/chunk"
	"github.com/voxelsplace/voxcore/dump"
	"github.com/voxelsplace/voxcore/export"
)

func toJS(b []byte) js.Value {
	arr := js.Global().Get("Uint8Array").New(len(b))
	js.CopyBytesToJS(arr, b)
	return arr
}

func fromJS(v js.Value) []byte {
	b := make([]byte, v.Get("length").Int())
	js.CopyBytesToGo(b, v)
	return b
}

// rle2dump(rle, [x, y, z]) builds a zstd dump. Dimensions default to 8x8x8.
func rle2dump(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing rle string")
	}
	d := chunk.Default
	if len(args) > 1 && args[1].Length() == 3 {
		d = chunk.Dims{X: args[1].Index(0).Int(), Y: args[1].Index(1).Int(), Z: args[1].Index(2).Int()}
	}
	out, err := api.RLEToDump(args[0].String(), d, dump.Options{Compression: dump.CompZstd})
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return toJS(out)
}

// dump2glb(bytes, greedy) meshes a dump into binary glTF.
func dump2glb(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing dump bytes")
	}
	greedy := len(args) < 2 || args[1].Truthy()
	out, err := api.DumpToGLB(fromJS(args[0]), greedy, export.BlockColor)
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return toJS(out)
}

func pack2glb(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing pack bytes")
	}
	greedy := len(args) < 2 || args[1].Truthy()
	out, err := api.PackToGLB(fromJS(args[0]), greedy, export.BlockColor)
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return toJS(out)
}

func packDumps(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing files object")
	}
	filesObj := args[0]
	files := map[string][]byte{}
	keys := js.Global().Get("Object").Call("keys", filesObj)
	for i := 0; i < keys.Length(); i++ {
		k := keys.Index(i).String()
		files[k] = fromJS(filesObj.Get(k))
	}
	out, err := api.PackDumps(files, dump.CompZstd)
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return toJS(out)
}

func unpackDumps(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing pack bytes")
	}
	files, err := api.UnpackDumps(fromJS(args[0]))
	if err != nil {
		return js.ValueOf(err.Error())
	}
	result := js.Global().Get("Object").New()
	for name, b := range files {
		result.Set(name, toJS(b))
	}
	return result
}

// applyEdits(bytes, jsonText) patches a dump or a pack.
func applyEdits(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return js.ValueOf("missing bytes or edits")
	}
	edits, err := api.EditsFromJSON([]byte(args[1].String()))
	if err != nil {
		return js.ValueOf(err.Error())
	}
	b := fromJS(args[0])
	var out []byte
	if _, _, perr := dump.UnmarshalPack(b); perr == nil {
		out, err = api.PatchPack(b, edits)
	} else if len(edits) != 1 {
		return js.ValueOf("a dump takes edits for exactly one chunk")
	} else {
		for _, ed := range edits {
			out, err = api.PatchDump(b, ed)
			break
		}
	}
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return toJS(out)
}

func main() {
	js.Global().Set("rle2dump", js.FuncOf(rle2dump))
	js.Global().Set("dump2glb", js.FuncOf(dump2glb))
	js.Global().Set("pack2glb", js.FuncOf(pack2glb))
	js.Global().Set("packDumps", js.FuncOf(packDumps))
	js.Global().Set("unpackDumps", js.FuncOf(unpackDumps))
	js.Global().Set("applyEdits", js.FuncOf(applyEdits))
	select {}
}
