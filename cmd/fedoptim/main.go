// Package main provides the fedoptim CLI, which runs federated learning
// simulations with the personalized optimizers.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/born-ml/fedoptim/internal/fedsim"
)

const version = "v0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stdout)
		return 0
	}

	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "fedoptim %s\n", version)
		return 0
	case "algorithms":
		for _, a := range fedsim.Algorithms() {
			fmt.Fprintln(stdout, a)
		}
		return 0
	case "run":
		return runSimulation(ctx, args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "fedoptim - personalized federated learning optimizers")
	fmt.Fprintf(w, "Version: %s\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run          Run a federated simulation (see run -h)")
	fmt.Fprintln(w, "  algorithms   List supported algorithms")
	fmt.Fprintln(w, "  version      Show version")
}

func runSimulation(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg := fedsim.DefaultConfig()

	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	algorithm := cmd.String("algorithm", string(cfg.Algorithm), "training algorithm (fedavg, fedprox, scaffold, perfedavg, pfedme, apfl)")
	cmd.IntVar(&cfg.Rounds, "rounds", cfg.Rounds, "communication rounds")
	cmd.IntVar(&cfg.Clients, "clients", cfg.Clients, "number of clients")
	cmd.Float64Var(&cfg.JoinRatio, "join-ratio", cfg.JoinRatio, "fraction of clients sampled per round")
	cmd.IntVar(&cfg.LocalEpochs, "local-epochs", cfg.LocalEpochs, "local epochs per round")
	cmd.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "mini-batch size")
	cmd.IntVar(&cfg.Features, "features", cfg.Features, "input features")
	cmd.IntVar(&cfg.SamplesPerClient, "samples", cfg.SamplesPerClient, "mean training samples per client")
	cmd.Float64Var(&cfg.Heterogeneity, "heterogeneity", cfg.Heterogeneity, "spread of client data distributions")
	lr := cmd.Float64("lr", float64(cfg.LR), "client learning rate")
	mu := cmd.Float64("mu", float64(cfg.Mu), "FedProx proximal / pFedMe L2 coefficient")
	lamda := cmd.Float64("lamda", float64(cfg.Lamda), "pFedMe regularization toward the local model")
	beta := cmd.Float64("beta", float64(cfg.Beta), "Per-FedAvg meta step rate / pFedMe server blend")
	alpha := cmd.Float64("alpha", float64(cfg.Alpha), "APFL mixing coefficient")
	serverLR := cmd.Float64("server-lr", float64(cfg.ServerLR), "SCAFFOLD global step size")
	cmd.IntVar(&cfg.PersonalSteps, "personal-steps", cfg.PersonalSteps, "pFedMe inner steps per batch")
	cmd.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	cmd.StringVar(&cfg.CheckpointDir, "checkpoint-dir", "", "write a SafeTensors checkpoint per round to this directory")
	jsonLogs := cmd.Bool("json", false, "log as JSON")
	verbose := cmd.Bool("v", false, "log every round")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	a, err := fedsim.ParseAlgorithm(*algorithm)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	cfg.Algorithm = a
	cfg.LR = float32(*lr)
	cfg.Mu = float32(*mu)
	cfg.Lamda = float32(*lamda)
	cfg.Beta = float32(*beta)
	cfg.Alpha = float32(*alpha)
	cfg.ServerLR = float32(*serverLR)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if *jsonLogs {
		cfg.Logger = slog.New(slog.NewJSONHandler(stderr, opts))
	} else {
		cfg.Logger = slog.New(slog.NewTextHandler(stderr, opts))
	}

	report, err := fedsim.Run(ctx, cfg)
	if err != nil {
		cfg.Logger.Error("simulation failed", "error", err)
		if report == nil {
			return 1
		}
	}

	printReport(stdout, report)
	if err != nil {
		return 1
	}
	return 0
}

func printReport(w io.Writer, report *fedsim.Report) {
	fmt.Fprintf(w, "run %s  algorithm %s  initial loss %.6f\n\n", report.RunID, report.Algorithm, report.InitialLoss)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUND\tCLIENTS\tTRAIN LOSS\tGLOBAL LOSS\tPERSONAL LOSS")
	for _, r := range report.Rounds {
		fmt.Fprintf(tw, "%d\t%d\t%.6f\t%.6f\t%.6f\n", r.Round, r.Clients, r.TrainLoss, r.GlobalLoss, r.PersonalLoss)
	}
	_ = tw.Flush()
}
