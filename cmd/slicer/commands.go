package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/KevoDB/rowslice/pkg/common/iterator"
	"github.com/KevoDB/rowslice/pkg/common/iterator/filtered"
	"github.com/KevoDB/rowslice/pkg/sstable/atom"
	"github.com/KevoDB/rowslice/pkg/sstable/slice"
)

var errUsage = errors.New("usage error")

// bound turns a command argument into a slice bound; "-" is unbounded
func bound(arg string) []byte {
	if arg == "-" {
		return nil
	}
	return []byte(arg)
}

// sliceRequest is a parsed SLICE command
type sliceRequest struct {
	key    []byte
	slice  slice.Slice
	live   bool
	prefix []byte
}

const sliceUsage = "SLICE key [start] [finish] [REVERSE] [LIVE] [PREFIX p]"

// parseSliceArgs parses: key [start] [finish] followed by any of the
// REVERSE, LIVE and PREFIX p modifiers
func parseSliceArgs(args []string) (sliceRequest, error) {
	var req sliceRequest
	var positional []string
	for i := 0; i < len(args); i++ {
		switch strings.ToUpper(args[i]) {
		case "REVERSE":
			req.slice.Reversed = true
		case "LIVE":
			req.live = true
		case "PREFIX":
			if i+1 >= len(args) {
				return req, fmt.Errorf("%w: PREFIX needs a value", errUsage)
			}
			i++
			req.prefix = []byte(args[i])
		default:
			positional = append(positional, args[i])
		}
	}
	if len(positional) < 1 || len(positional) > 3 {
		return req, fmt.Errorf("%w: %s", errUsage, sliceUsage)
	}
	req.key = []byte(positional[0])
	if len(positional) > 1 {
		req.slice.Start = bound(positional[1])
	}
	if len(positional) > 2 {
		req.slice.Finish = bound(positional[2])
	}
	return req, nil
}

// filter wraps it with the filters the request asks for
func (req sliceRequest) filter(it iterator.AtomIterator) iterator.AtomIterator {
	if req.prefix != nil {
		it = filtered.NewPrefixIterator(it, req.prefix)
	}
	if req.live {
		it = filtered.NewLiveIterator(it)
	}
	return it
}

type genArgs struct {
	dir     string
	name    string
	rows    int
	columns int
}

// parseGenArgs parses: DIR NAME ROWS COLS
func parseGenArgs(args []string) (genArgs, error) {
	if len(args) != 4 {
		return genArgs{}, fmt.Errorf("%w: .gen DIR NAME ROWS COLS", errUsage)
	}
	rows, err := strconv.Atoi(args[2])
	if err != nil || rows < 0 {
		return genArgs{}, fmt.Errorf("%w: invalid row count %q", errUsage, args[2])
	}
	cols, err := strconv.Atoi(args[3])
	if err != nil || cols < 0 {
		return genArgs{}, fmt.Errorf("%w: invalid column count %q", errUsage, args[3])
	}
	return genArgs{dir: args[0], name: args[1], rows: rows, columns: cols}, nil
}

func rowKey(i int) []byte {
	return []byte(fmt.Sprintf("row%06d", i))
}

func columnName(i int) []byte {
	return []byte(fmt.Sprintf("col%06d", i))
}

// formatAtom renders one atom for the REPL
func formatAtom(a *atom.Atom) string {
	switch a.Kind {
	case atom.KindColumn:
		return fmt.Sprintf("%s = %s @%d", a.Name, a.Value, a.Timestamp)
	case atom.KindTombstone:
		return fmt.Sprintf("%s <deleted> @%d", a.Name, a.Timestamp)
	case atom.KindRangeTombstone:
		return fmt.Sprintf("[%s..%s] <deleted> @%d", a.Name, a.End, a.DeletedAt)
	default:
		return a.String()
	}
}

func counter(all map[string]interface{}, key string) uint64 {
	v, _ := all[key].(uint64)
	return v
}

// printStats prints collector statistics in a stable order
func printStats(all map[string]interface{}) {
	fmt.Println("Read Statistics:")
	fmt.Printf("  Operations: %d opens, %d slices, %d gets, %d cursors, %d writes\n",
		counter(all, "open_ops"), counter(all, "slice_ops"), counter(all, "get_ops"),
		counter(all, "cursor_ops"), counter(all, "write_ops"))
	fmt.Printf("  Volume: %d atoms read, %d blocks read, %d rows written\n",
		counter(all, "atoms_read"), counter(all, "blocks_read"), counter(all, "rows_written"))

	if errs, ok := all["errors"].(map[string]uint64); ok && len(errs) > 0 {
		names := make([]string, 0, len(errs))
		for name := range errs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  Errors (%s): %d\n", name, errs[name])
		}
	}

	for _, op := range []string{"slice", "get"} {
		if lat, ok := all[op+"_latency"].(map[string]interface{}); ok {
			fmt.Printf("  %s latency: avg %d ns over %d\n", op, lat["avg_ns"], lat["count"])
		}
	}
}
