package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/KevoDB/rowslice/pkg/common/log"
	"github.com/KevoDB/rowslice/pkg/config"
	"github.com/KevoDB/rowslice/pkg/sstable"
	"github.com/KevoDB/rowslice/pkg/sstable/atom"
	"github.com/KevoDB/rowslice/pkg/sstable/slice"
	"github.com/KevoDB/rowslice/pkg/stats"
	"github.com/KevoDB/rowslice/pkg/telemetry"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".gen"),
	readline.PcItem(".open"),
	readline.PcItem(".close"),
	readline.PcItem(".keys"),
	readline.PcItem(".stats"),
	readline.PcItem(".exit"),
	readline.PcItem("SLICE"),
	readline.PcItem("GET"),
)

const helpText = `
rowslice (slicer) - interactive row slicing over an sstable

Usage:
  slicer [dir name]           - Start with an optional table to open

Commands:
  .help                       - Show this help message
  .gen DIR NAME ROWS COLS     - Write a table of ROWS rows with COLS columns each
  .open DIR NAME              - Open the table NAME in DIR
  .close                      - Close the current table
  .keys                       - List partition keys
  .stats                      - Show read statistics
  .exit                       - Exit the program

  SLICE key [start] [finish] [REVERSE] [LIVE] [PREFIX p]
                              - Print the atoms of key's row in [start, finish]
                              - Use - for an unbounded start or finish
                              - LIVE drops deleted and shadowed columns
                              - PREFIX keeps names starting with p
  GET key column              - Print one column of key's row
`

type session struct {
	cfg     *config.Config
	metrics slice.SliceMetrics
	stats   *stats.AtomicCollector
	logger  log.Logger

	reader *sstable.Reader
	table  string
}

func (s *session) options() sstable.Options {
	opts := sstable.OptionsFromConfig(s.cfg)
	opts.Logger = s.logger
	opts.Metrics = s.metrics
	opts.Stats = s.stats
	return opts
}

func (s *session) open(dir, name string) error {
	r, err := sstable.Open(dir, name, s.options())
	if err != nil {
		return err
	}
	s.close()
	s.reader = r
	s.table = name
	return nil
}

func (s *session) close() {
	if s.reader == nil {
		return
	}
	s.reader.Close()
	s.reader = nil
	s.table = ""
}

func (s *session) generate(g genArgs) error {
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return err
	}
	w, err := sstable.NewWriter(g.dir, g.name, s.options())
	if err != nil {
		return err
	}
	for i := 0; i < g.rows; i++ {
		if err := w.BeginRow(rowKey(i), atom.LiveDeletion); err != nil {
			w.Abort()
			return err
		}
		for c := 0; c < g.columns; c++ {
			value := []byte(fmt.Sprintf("value-%d-%d", i, c))
			if err := w.AddColumn(columnName(c), value, time.Now().UnixMicro()); err != nil {
				w.Abort()
				return err
			}
		}
		if err := w.EndRow(); err != nil {
			w.Abort()
			return err
		}
	}
	return w.Finish()
}

func (s *session) slice(ctx context.Context, args []string) error {
	req, err := parseSliceArgs(args)
	if err != nil {
		return err
	}
	sliceIt, err := s.reader.Slice(ctx, req.key, req.slice)
	if err != nil {
		return err
	}
	it := req.filter(sliceIt)

	startTime := time.Now()
	count := 0
	for {
		ok, err := it.HasNext()
		if err != nil {
			it.Close()
			return err
		}
		if !ok {
			break
		}
		a, err := it.Next()
		if err != nil {
			it.Close()
			return err
		}
		fmt.Println(formatAtom(a))
		count++
	}
	if err := it.Close(); err != nil {
		return err
	}

	fmt.Printf("%d atoms (%s, %.2f ms)\n", count, sliceIt.Strategy(),
		float64(time.Since(startTime).Microseconds())/1000.0)
	return nil
}

func main() {
	fmt.Println("rowslice (slicer) version 1.0.0")
	fmt.Println("Enter .help for usage hints.")

	cfg, err := config.LoadConfig(".")
	if err != nil {
		if !errors.Is(err, config.ErrConfigNotFound) {
			fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
			os.Exit(1)
		}
		cfg = config.NewDefaultConfig(".")
	}
	log.SetLevel(cfg.Level())

	telCfg := telemetry.DefaultConfig()
	telCfg.Enabled = false
	if err := telCfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading telemetry settings: %s\n", err)
		os.Exit(1)
	}
	tel, err := telemetry.New(telCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing telemetry: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tel.Shutdown(ctx)
	}()

	s := &session{
		cfg:     cfg,
		metrics: slice.NewSliceMetrics(tel),
		stats:   stats.NewAtomicCollector(),
		logger:  log.GetDefaultLogger().WithField("component", "slicer"),
	}
	defer s.close()

	if len(os.Args) > 2 {
		if err := s.open(os.Args[1], os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error opening table: %s\n", err)
			os.Exit(1)
		}
		fmt.Printf("Table %s opened (%d rows)\n", s.table, s.reader.RowCount())
	}

	historyFile := filepath.Join(os.TempDir(), ".slicer_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "slicer> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	ctx := context.Background()
	for {
		if s.table != "" {
			rl.SetPrompt(fmt.Sprintf("slicer:%s> ", s.table))
		} else {
			rl.SetPrompt("slicer> ")
		}

		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := strings.ToUpper(parts[0])

		if strings.HasPrefix(cmd, ".") {
			switch strings.ToLower(cmd) {
			case ".help":
				fmt.Print(helpText)

			case ".gen":
				g, err := parseGenArgs(parts[1:])
				if err != nil {
					fmt.Println("Error:", err)
					continue
				}
				startTime := time.Now()
				if err := s.generate(g); err != nil {
					fmt.Fprintf(os.Stderr, "Error writing table: %s\n", err)
					continue
				}
				fmt.Printf("Wrote %d rows to %s (%.2f ms)\n", g.rows, sstable.DataPath(g.dir, g.name),
					float64(time.Since(startTime).Microseconds())/1000.0)

			case ".open":
				if len(parts) != 3 {
					fmt.Println("Error: .open requires DIR and NAME arguments")
					continue
				}
				if err := s.open(parts[1], parts[2]); err != nil {
					fmt.Fprintf(os.Stderr, "Error opening table: %s\n", err)
					continue
				}
				fmt.Printf("Table %s opened (%d rows, %s)\n", s.table, s.reader.RowCount(), s.reader.Codec())

			case ".close":
				if s.reader == nil {
					fmt.Println("No table open")
					continue
				}
				fmt.Printf("Table %s closed\n", s.table)
				s.close()

			case ".keys":
				if s.reader == nil {
					fmt.Println("No table open")
					continue
				}
				for _, k := range s.reader.Keys() {
					fmt.Printf("%s\n", k)
				}

			case ".stats":
				printStats(s.stats.GetStats())

			case ".exit":
				fmt.Println("Goodbye!")
				return

			default:
				fmt.Printf("Unknown command: %s\n", cmd)
			}
			continue
		}

		if s.reader == nil {
			fmt.Println("Error: No table open")
			continue
		}

		switch cmd {
		case "SLICE":
			if err := s.slice(ctx, parts[1:]); err != nil {
				if errors.Is(err, errUsage) {
					fmt.Println("Error:", err)
				} else {
					fmt.Fprintf(os.Stderr, "Error slicing row: %s\n", err)
				}
			}

		case "GET":
			if len(parts) != 3 {
				fmt.Println("Error: GET requires key and column arguments")
				continue
			}
			a, err := s.reader.Get(ctx, []byte(parts[1]), []byte(parts[2]))
			if err != nil {
				if errors.Is(err, sstable.ErrNotFound) {
					fmt.Println("Column not found")
				} else {
					fmt.Fprintf(os.Stderr, "Error getting column: %s\n", err)
				}
				continue
			}
			fmt.Println(formatAtom(a))

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}
	}
}
