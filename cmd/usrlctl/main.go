// Command usrlctl inspects a live region: list its topics, show one
// topic's configuration and head, or tail new messages as they're
// published. It is the Go rebuild of tools/usrl_ctl.c, restructured
// around pflag subcommands and a liner REPL the way
// calvinalkan-agent-task/cmd/sloty builds its own inspector CLI.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/AlephTX/usrl/shm"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: usrlctl [--region NAME] <command> [args]")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  list              list every topic in the region")
	fmt.Fprintln(os.Stderr, "  info <topic>      show one topic's configuration and head")
	fmt.Fprintln(os.Stderr, "  tail <topic>      follow new messages as they're published")
	fmt.Fprintln(os.Stderr, "  repl              interactive shell over list/info/tail")
	os.Exit(1)
}

func main() {
	fs := flag.NewFlagSet("usrlctl", flag.ExitOnError)
	region := fs.StringP("region", "r", "usrl_core", "shared-memory region name")
	asJSON := fs.Bool("json", false, "tail: print payloads that start like JSON verbatim, others as a byte count (info ignores it)")
	fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) < 1 {
		usage()
	}

	switch args[0] {
	case "list":
		runList(*region)
	case "info":
		if len(args) < 2 {
			usage()
		}
		runInfo(*region, args[1])
	case "tail":
		if len(args) < 2 {
			usage()
		}
		runTail(*region, args[1], *asJSON)
	case "repl":
		runREPL(*region)
	default:
		usage()
	}
}

func openRegion(name string) *shm.Region {
	r, err := shm.Open(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "usrlctl: open %s: %v\n", name, err)
		fmt.Fprintln(os.Stderr, "hint: has a publisher created this region yet?")
		os.Exit(1)
	}
	return r
}

func runList(regionName string) {
	r := openRegion(regionName)
	defer r.Close()

	fmt.Println()
	fmt.Println("USRL System Status")
	fmt.Println("------------------")
	fmt.Printf("Topics: %d\n\n", len(r.Topics()))
	fmt.Printf("%-20s | %-5s | %-8s | %-8s | %-12s\n", "NAME", "TYPE", "SLOTS", "SIZE", "MESSAGES")
	fmt.Println(strings.Repeat("-", 66))

	for _, name := range r.Topics() {
		ringType, slotCount, slotSize, err := r.Lookup(name)
		if err != nil {
			continue
		}
		snap, err := shm.Health(r, name, 0, 0)
		head := uint64(0)
		if err == nil {
			head = snap.TotalPublished
		}
		fmt.Printf("%-20s | %-5s | %-8d | %-8d | %-12d\n", name, ringType, slotCount, slotSize, head)
	}
	fmt.Println()
}

func runInfo(regionName, topic string) {
	r := openRegion(regionName)
	defer r.Close()

	ringType, slotCount, slotSize, err := r.Lookup(topic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "topic %q not found.\n", topic)
		os.Exit(1)
	}
	snap, err := shm.Health(r, topic, 0, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "usrlctl: health: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nTopic: %s\n", topic)
	fmt.Printf("Type:  %s\n", ringType)
	fmt.Printf("Head:  %d\n", snap.TotalPublished)
	fmt.Println("\nConfiguration:")
	fmt.Printf("  Slot Count: %d\n", slotCount)
	fmt.Printf("  Slot Size:  %d bytes\n", slotSize)
	fmt.Println("\nMemory:")
	fmt.Printf("  Ring Size:  %.2f MB\n", float64(slotCount)*float64(slotSize)/(1024.0*1024.0))
}

func runTail(regionName, topic string, asJSON bool) {
	r := openRegion(regionName)
	defer r.Close()

	sub, err := shm.NewSubscriber(r, topic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "topic %q not found.\n", topic)
		os.Exit(1)
	}

	// Skip straight to head so tail only shows new messages, matching
	// usrl_ctl.c's do_tail seeding last_seq from w_head before looping.
	if snap, err := shm.Health(r, topic, 0, 0); err == nil {
		for i := uint64(0); i < snap.TotalPublished; i++ {
			_, _ = sub.Next(make([]byte, 0))
		}
	}

	fmt.Printf("Tailing topic %q (Ctrl+C to stop)...\n", topic)
	_, _, slotSize, _ := r.Lookup(topic)
	buf := make([]byte, slotSize)

	for {
		res, err := sub.Next(buf)
		switch {
		case err == shm.ErrNoData:
			time.Sleep(time.Millisecond)
			continue
		case err != nil:
			fmt.Fprintf(os.Stderr, "error reading: %v\n", err)
			time.Sleep(time.Millisecond)
			continue
		}
		printMessage(res, buf[:res.N], asJSON)
	}
}

func printMessage(res shm.Result, payload []byte, asJSON bool) {
	if asJSON {
		fmt.Printf("[%d] %s\n", res.PublisherID, renderJSON(payload))
		return
	}
	fmt.Printf("[%d] ", res.PublisherID)
	switch {
	case len(payload) == 0:
		fmt.Println("(empty message)")
	case isPrintable(payload):
		fmt.Println(strings.TrimRight(string(payload), "\x00"))
	default:
		fmt.Printf("(%d bytes) %s\n", len(payload), hexdump(payload))
	}
}

// renderJSON returns the payload verbatim when, after trimming trailing
// NULs, it starts with '{' or '[' (it is not parsed or validated), and a
// raw byte count otherwise; an encoded schema.Message can't be rendered
// without knowing its schema.
func renderJSON(payload []byte) string {
	trimmed := bytes.TrimRight(payload, "\x00")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return string(trimmed)
	}
	return fmt.Sprintf("(%d raw bytes, not JSON)", len(payload))
}

func isPrintable(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	for i, b := range buf {
		if b == 0 {
			return i == len(buf)-1
		}
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' {
			return false
		}
	}
	return true
}

func hexdump(buf []byte) string {
	n := len(buf)
	if n > 16 {
		n = 16
	}
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%02X ", buf[i])
	}
	return sb.String()
}

// runREPL is usrlctl's interactive mode, built the way
// calvinalkan-agent-task/cmd/sloty builds its shell: a peterh/liner
// prompt with history, dispatching typed commands until exit/quit/q.
func runREPL(regionName string) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Printf("usrlctl repl (region=%s). Commands: list, info <topic>, tail <topic>, exit\n", regionName)

	for {
		input, err := line.Prompt("usrlctl> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return
			}
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		fields := strings.Fields(input)
		switch fields[0] {
		case "exit", "quit", "q":
			return
		case "list":
			runList(regionName)
		case "info":
			if len(fields) < 2 {
				fmt.Println("usage: info <topic>")
				continue
			}
			runInfo(regionName, fields[1])
		case "tail":
			if len(fields) < 2 {
				fmt.Println("usage: tail <topic>")
				continue
			}
			runTail(regionName, fields[1], false)
		case "help":
			fmt.Println("commands: list, info <topic>, tail <topic>, exit")
		default:
			fmt.Printf("unknown command %q (try help)\n", fields[0])
		}
	}
}
