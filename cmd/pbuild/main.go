// Package main provides pbuild, a CLI for building, signing, and
// inspecting BitVMX-style transaction graphs.
package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bitvmx-labs/protocol-builder/internal/config"
	"github.com/bitvmx-labs/protocol-builder/internal/dot"
	"github.com/bitvmx-labs/protocol-builder/internal/graph"
	"github.com/bitvmx-labs/protocol-builder/internal/storage"
	"github.com/bitvmx-labs/protocol-builder/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "build":
		runBuild(args, false)
	case "build-and-sign":
		runBuild(args, true)
	case "visualize":
		runVisualize(args)
	case "list":
		runList(args)
	case "version":
		fmt.Printf("pbuild %s (commit: %s)\n", version, commit)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pbuild <build|build-and-sign|visualize|list|version> [flags]")
}

func loadConfig() (*config.Config, *logging.Logger) {
	dataDir := config.PathFromEnv()
	cfg, err := config.Load(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pbuild: load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)
	return cfg, log
}

func openStore(cfg *config.Config) *storage.SQLiteStore {
	store, err := storage.New(&storage.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		fmt.Fprintf(os.Stderr, "pbuild: open storage: %v\n", err)
		os.Exit(1)
	}
	return store
}

// runBuild loads a plan file, constructs and builds the protocol, signs it
// if requested (using a deterministic demo key manager, since a real
// deployment's key manager lives outside this repo's scope), saves the
// resulting graph.Snapshot, and optionally prints the raw hex of one
// transaction's broadcastable form.
func runBuild(args []string, sign bool) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	planPath := fs.String("plan", "", "path to a JSON plan file (required)")
	seed := fs.String("seed", "pbuild-demo-seed", "seed for the demo key manager (build-and-sign only)")
	send := fs.String("send", "", "transaction name to print as broadcastable hex (build-and-sign only)")
	fs.Parse(args)

	if *planPath == "" {
		fmt.Fprintln(os.Stderr, "pbuild build: -plan is required")
		os.Exit(2)
	}

	cfg, log := loadConfig()
	store := openStore(cfg)
	defer store.Close()

	p, err := loadPlan(*planPath)
	if err != nil {
		log.Fatal("failed to load plan", "error", err)
	}

	var km graph.KeyManager
	if sign {
		km = newDemoKeyManager(*seed)
	}

	proto, err := buildProtocol(p, km)
	if err != nil {
		log.Fatal("failed to construct protocol", "error", err)
	}

	if sign {
		if err := proto.BuildAndSign(context.Background()); err != nil {
			log.Fatal("build-and-sign failed", "error", err)
		}
	} else {
		if err := proto.Build(); err != nil {
			log.Fatal("build failed", "error", err)
		}
	}

	snap := proto.Snapshot()
	if err := store.Save(snap); err != nil {
		log.Fatal("failed to save snapshot", "error", err)
	}
	log.Info("protocol built", "name", snap.Name, "transactions", len(snap.Transactions), "signed", sign)

	if sign && *send != "" {
		msg, err := proto.TransactionToSend(*send, nil)
		if err != nil {
			log.Fatal("failed to assemble transaction", "error", err)
		}
		var buf bytes.Buffer
		if err := msg.Serialize(&buf); err != nil {
			log.Fatal("failed to serialize transaction", "error", err)
		}
		fmt.Println(hex.EncodeToString(buf.Bytes()))
	}
}

func runVisualize(args []string) {
	fs := flag.NewFlagSet("visualize", flag.ExitOnError)
	name := fs.String("name", "", "protocol name to visualize (required)")
	mode := fs.String("mode", "default", "default or edge-arrows")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "pbuild visualize: -name is required")
		os.Exit(2)
	}

	cfg, log := loadConfig()
	store := openStore(cfg)
	defer store.Close()

	snap, err := store.Load(*name)
	if err != nil {
		log.Fatal("failed to load snapshot", "error", err)
	}

	renderMode := dot.Default
	if *mode == "edge-arrows" {
		renderMode = dot.EdgeArrows
	}
	fmt.Print(dot.Render(snap, renderMode))
}

func runList(args []string) {
	cfg, log := loadConfig()
	store := openStore(cfg)
	defer store.Close()

	names, err := store.List()
	if err != nil {
		log.Fatal("failed to list saved protocols", "error", err)
	}
	for _, n := range names {
		fmt.Println(n)
	}
}
