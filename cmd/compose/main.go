package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"timeline-orchestrator/internal/composition"
	"timeline-orchestrator/internal/orchestrator"
	"timeline-orchestrator/internal/platform/logger"
	"timeline-orchestrator/internal/registry"
)

func main() {
	file := flag.String("f", "", "path to the composition file (YAML or JSON)")
	depTimeout := flag.Duration("timeout", registry.DefaultDependencyTimeout, "dependency timeout per segment")
	wait := flag.Duration("wait", 30*time.Second, "how long to wait for the timeline to become ready")
	strict := flag.Bool("strict", false, "fail on unresolved dependencies instead of falling back")
	output := flag.String("o", "schedule", "output format (schedule, json)")
	logLevel := flag.String("L", "warn", "log level (error, warn, info, debug)")
	flag.Parse()

	if *file == "" {
		die("-f is required")
	}
	if *output != "schedule" && *output != "json" {
		die("unknown output format %q", *output)
	}

	log := logger.NewWithWriter(os.Stderr, *logLevel, "text")

	c, err := composition.Load(*file)
	if err != nil {
		die("%v", err)
	}

	opts := []registry.Option{
		registry.WithLogger(log),
		registry.WithDependencyTimeout(*depTimeout),
		registry.WithAutoPlay(),
	}
	if *strict {
		opts = append(opts, registry.WithStrict())
	}
	repo := orchestrator.NewInMemoryRepository(orchestrator.NewSessionFactory(opts...))
	svc := orchestrator.NewService(repo)

	id := orchestrator.SessionID(c.Name)
	if id == "" {
		id = "compose"
	}
	if err := svc.LoadComposition(id, c); err != nil {
		die("register: %v", err)
	}

	sess, _ := repo.Get(id)
	ctx, cancel := context.WithTimeout(context.Background(), *wait)
	waitErr := sess.Registry.Wait(ctx)
	cancel()

	st, _ := svc.Status(id)
	switch *output {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(st); err != nil {
			die("encode status: %v", err)
		}
	default:
		fmt.Print(orchestrator.BuildSchedule(st))
	}

	if err := svc.EndSession(id); err != nil {
		log.Error("end session", "error", err)
	}
	if waitErr != nil {
		die("%v", waitErr)
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "compose: "+format+"\n", args...)
	os.Exit(1)
}
