package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/crossing/internal/config"
	"github.com/Iron-Ham/crossing/internal/episode"
	"github.com/Iron-Ham/crossing/internal/mcts"
	"github.com/Iron-Ham/crossing/internal/metrics"
	"github.com/Iron-Ham/crossing/internal/report"
	"github.com/Iron-Ham/crossing/internal/scenario"
	"github.com/Iron-Ham/crossing/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Search a passing order for a single snapshot",
	Long: `Run one MCTS search over every vehicle of a scenario and print the
resulting passing order together with the zone-entry deadlines it implies.

No consensus takes place: the search optimizes the plain total delay.
The scenario is read from a text file (the "fleets vehicles" header format)
or from YAML when the file ends in .yaml or .yml.`,
	RunE: runSchedule,
}

var (
	scheduleInput      string
	scheduleJSON       bool
	scheduleIterations int
	scheduleSeed       uint64
)

func init() {
	scheduleCmd.Flags().StringVarP(&scheduleInput, "input", "i", "", "scenario file (required)")
	scheduleCmd.Flags().BoolVar(&scheduleJSON, "json", false, "Output the assignment as JSON")
	scheduleCmd.Flags().IntVar(&scheduleIterations, "iterations", 0, "override scheduler.iterations")
	scheduleCmd.Flags().Uint64Var(&scheduleSeed, "seed", 0, "override scheduler.seed")
	_ = scheduleCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(scheduleCmd)
}

// scheduleOutput is the JSON form of a schedule run.
type scheduleOutput struct {
	Order     []string             `json:"order"`
	Deadlines map[string][]float64 `json:"deadlines"`
	MeanDelay float64              `json:"mean_delay"`
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("iterations") {
		cfg.Scheduler.Iterations = scheduleIterations
	}
	if cmd.Flags().Changed("seed") {
		cfg.Scheduler.Seed = scheduleSeed
	}
	if cfg.Scheduler.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", cfg.Scheduler.Iterations)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	sc, err := scenario.Load(scheduleInput, cfg.Kinematics.FleetLength)
	if err != nil {
		return err
	}

	ecfg := episode.FromConfig(cfg)
	mcfg := ecfg.Consensus.Scheduler
	rec := metrics.New()

	order, err := mcts.Schedule(cmd.Context(), sc.States, mcfg, cfg.Scheduler.Iterations,
		mcts.WithLogger(logger), mcts.WithMetrics(rec))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	p, err := schedule.Project(order, sc.States, mcfg.Sim)
	if err != nil {
		return fmt.Errorf("failed to project order: %w", err)
	}
	if err := schedule.Verify(p, sc.States, mcfg.Sim.SafetyGap); err != nil {
		return err
	}

	if scheduleJSON {
		return printScheduleJSON(cmd, order, p, sc, ecfg)
	}

	w := report.New(cmd.OutOrStdout(), styled(cmd))
	w.Order(order)
	w.Assignment("Deadlines", p, sc.States, ecfg.Layout)
	return nil
}

// styled reports whether output goes straight to a terminal.
func styled(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && report.IsTerminal(f)
}

func printScheduleJSON(cmd *cobra.Command, order mcts.Order, p schedule.Proposal, sc *scenario.Scenario, ecfg episode.Config) error {
	out := scheduleOutput{
		Order:     make([]string, len(order)),
		Deadlines: make(map[string][]float64, len(p)),
	}
	for i, id := range order {
		out.Order[i] = id.String()
	}
	for id, d := range p {
		out.Deadlines[id.String()] = append([]float64(nil), d[:]...)
	}
	out.MeanDelay = -schedule.Score(p, order, sc.States, ecfg.Layout)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
