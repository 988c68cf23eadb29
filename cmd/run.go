package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/parasim/parasim/internal/config"
	"github.com/parasim/parasim/internal/controller"
	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostmodel"
	"github.com/parasim/parasim/internal/manager"
	"github.com/parasim/parasim/internal/policy"
	"github.com/parasim/parasim/internal/rng"
	"github.com/parasim/parasim/internal/scheduler"
	"github.com/parasim/parasim/internal/simtime"
	"github.com/parasim/parasim/internal/telemetry"
	"github.com/parasim/parasim/internal/topology"
)

var (
	topologyPath             string
	randomSeed               int64
	nWorkerThreads           int
	minRunAheadMillis        int64
	schedulerPolicy          string
	stopTimeSeconds          int64
	bootstrapEndTimeSeconds  int64
	heartbeatIntervalSeconds int64
	logLevel                 string
	defaultLatencyMillis     float64
	defaultReliability       float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a parallel discrete-event network simulation",
	RunE:  runRun,
}

func init() {
	d := config.DefaultRunParams()
	runCmd.Flags().StringVar(&topologyPath, "topology", "", "Path to the host/process/program YAML table")
	runCmd.Flags().Int64Var(&randomSeed, "seed", d.RandomSeed, "Master random seed")
	runCmd.Flags().IntVar(&nWorkerThreads, "workers", d.NWorkerThreads, "Worker thread count (0 forces serial-global)")
	runCmd.Flags().Int64Var(&minRunAheadMillis, "min-run-ahead", d.MinRunAheadMillis, "Minimum round window width, in milliseconds")
	runCmd.Flags().StringVar(&schedulerPolicy, "policy", d.SchedulerPolicy, "Scheduler policy: serial-global, host-single, host-steal, thread-single, thread-per-host, thread-per-thread")
	runCmd.Flags().Int64Var(&stopTimeSeconds, "stop-time", d.StopTimeSeconds, "Simulation stop time, in seconds")
	runCmd.Flags().Int64Var(&bootstrapEndTimeSeconds, "bootstrap-end-time", d.BootstrapEndTimeSeconds, "Time before which reliability/bandwidth limits are bypassed, in seconds")
	runCmd.Flags().Int64Var(&heartbeatIntervalSeconds, "heartbeat-interval", d.HeartbeatIntervalSeconds, "Telemetry heartbeat log interval, in seconds")
	runCmd.Flags().StringVar(&logLevel, "log", d.LogLevel, "Log level (debug, info, warn, error)")
	runCmd.Flags().Float64Var(&defaultLatencyMillis, "default-latency", 1.0, "Default inter-host latency for paths with no topology override, in milliseconds")
	runCmd.Flags().Float64Var(&defaultReliability, "default-reliability", 1.0, "Default path reliability for paths with no topology override, in [0, 1]")
}

func runRun(cmd *cobra.Command, args []string) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("cmd: invalid log level %q: %w", logLevel, err)
	}
	logrus.SetLevel(level)

	runID := uuid.NewString()
	log := logrus.WithField("run_id", runID)

	params := config.RunParams{
		RandomSeed:               randomSeed,
		NWorkerThreads:           nWorkerThreads,
		MinRunAheadMillis:        minRunAheadMillis,
		SchedulerPolicy:          schedulerPolicy,
		StopTimeSeconds:          stopTimeSeconds,
		BootstrapEndTimeSeconds:  bootstrapEndTimeSeconds,
		HeartbeatIntervalSeconds: heartbeatIntervalSeconds,
		LogLevel:                 logLevel,
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("cmd: %w", err)
	}

	var top *config.Topology
	if topologyPath != "" {
		top, err = config.LoadTopology(topologyPath)
		if err != nil {
			return fmt.Errorf("cmd: %w", err)
		}
	} else {
		top = &config.Topology{}
	}

	ctrl := controller.New(params.ToControllerConfig())
	pol, err := policy.New(ctrl.PolicyKind(), ctrl.NumWorkers())
	if err != nil {
		return fmt.Errorf("cmd: %w", err)
	}
	rngs := rng.NewPartitioned(ctrl.Seed())
	topo := topology.NewFlat(defaultLatencyMillis, defaultReliability)
	dns := topology.NewStaticDNS()

	tel := telemetry.New()
	policy.OnClamp = func(magnitude simtime.SimulationTime) {
		log.Warnf("cmd: causal clamp moved a cross-host event forward by %s", magnitude)
		tel.RecordClamp(magnitude)
	}
	tel.AddSink(telemetry.NewLogSink(
		heartbeatDuration(params.HeartbeatIntervalSeconds),
		logrus.Fields{"run_id": runID},
	))

	sched := scheduler.New(pol, rngs, topo, dns, ctrl.BootstrapEndTime(), ctrl.UpdateMinRunahead)
	mgr := manager.New(rngs, ctrl, sched, tel)

	for _, prog := range top.Programs {
		progCfg := map[string]string{"path": prog.Path}
		if prog.StartSymbol != "" {
			progCfg["startSymbol"] = prog.StartSymbol
		}
		if err := mgr.AddNewProgram(manager.ProgramMeta{Name: prog.ID, Config: progCfg}); err != nil {
			return fmt.Errorf("cmd: %w", err)
		}
	}
	registerHosts(mgr, top, dns)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Warn("cmd: stop signal received, finishing in-flight round then shutting down")
		ctrl.RequestStop()
	}()

	log.Infof("cmd: starting run (policy=%s workers=%d seed=%d stopTime=%ds)",
		ctrl.PolicyKind(), ctrl.NumWorkers(), ctrl.Seed(), params.StopTimeSeconds)

	runErr := mgr.Run(context.Background())
	pluginErrors := mgr.PluginErrorCount()

	printSummary(runID, tel, pluginErrors, runErr)

	if runErr != nil {
		return runErr
	}
	if pluginErrors > 0 {
		return fmt.Errorf("cmd: simulation completed with %d plugin error(s)", pluginErrors)
	}
	return nil
}

// heartbeatDuration converts a heartbeat interval expressed in (wall-clock)
// seconds from config into a time.Duration, defaulting to 5s for a
// non-positive value rather than logging every round.
func heartbeatDuration(seconds int64) time.Duration {
	if seconds <= 0 {
		seconds = 5
	}
	return time.Duration(seconds) * time.Second
}

// registerHosts instantiates Quantity hosts per HostRecord (spec §6: a host
// record names a group, not a single host), registers each host's name (and
// ipHint, for single-instance records where it identifies the host
// unambiguously) with dns, and has each host's boot hook schedule every
// configured process's start event; the optional cross-host ping and the
// optional stop are issued from inside that start event.
func registerHosts(mgr *manager.Manager, top *config.Topology, dns *topology.StaticDNS) {
	for _, rec := range top.Hosts {
		for i := 0; i < rec.Quantity; i++ {
			name := rec.ID
			if rec.Quantity > 1 {
				name = rec.ID + "-" + strconv.Itoa(i)
			}
			if rec.IPHint != "" && rec.Quantity == 1 {
				dns.Register(rec.IPHint, name, topology.Address(name))
			} else {
				dns.Register("", name, topology.Address(name))
			}
			processes := rec.Processes
			boot := func(h *hostmodel.Host, ctx event.Context) {
				for _, p := range processes {
					p := p
					startTime := simtime.SimulationTime(p.StartTimeSeconds * float64(simtime.SimTimeOneSecond))
					ctx.Schedule(&event.Event{
						Time: startTime, SrcHost: h.ID, DstHost: h.ID,
						Label: "process-start:" + p.PluginID,
						Run: func(c event.Context) {
							logrus.Debugf("host %s: process %s started at %s", h.ID, p.PluginID, c.Now())
							if p.PingTarget != "" {
								c.SendPacket(event.HostID(p.PingTarget), "ping:"+p.PluginID, false, func(c2 event.Context) {
									logrus.Debugf("host %s: process %s: ping from %s delivered at %s", c2.ActiveHost(), p.PluginID, h.ID, c2.Now())
								})
							}
							if p.StopTimeSeconds != nil {
								stopTime := simtime.SimulationTime(*p.StopTimeSeconds * float64(simtime.SimTimeOneSecond))
								c.Schedule(&event.Event{
									Time: stopTime, SrcHost: h.ID, DstHost: h.ID,
									Label: "process-stop:" + p.PluginID,
									Run: func(c2 event.Context) {
										logrus.Debugf("host %s: process %s stopped at %s", h.ID, p.PluginID, c2.Now())
									},
								})
							}
						},
					})
				}
			}
			mgr.AddNewVirtualHost(name, boot, nil)
		}
	}
}

func printSummary(runID string, tel *telemetry.Telemetry, pluginErrors uint64, runErr error) {
	snap := tel.Snapshot()

	fmt.Println()
	switch {
	case runErr != nil:
		color.New(color.FgRed, color.Bold).Println("SIMULATION FAILED")
	case pluginErrors > 0:
		color.New(color.FgYellow, color.Bold).Println("SIMULATION COMPLETE WITH PLUGIN ERRORS")
	default:
		color.New(color.FgGreen, color.Bold).Println("SIMULATION COMPLETE")
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetBorder(false)
	table.SetHeaderColor(
		tablewriter.Colors{tablewriter.FgCyanColor, tablewriter.Bold},
		tablewriter.Colors{tablewriter.FgCyanColor, tablewriter.Bold},
	)
	table.Append([]string{"Run ID", runID})
	table.Append([]string{"Rounds run", strconv.FormatInt(snap.Rounds, 10)})
	table.Append([]string{"Rounds at zero width", strconv.FormatInt(snap.RoundsAtZero, 10)})
	table.Append([]string{"Causal clamps applied", strconv.FormatInt(snap.Clamps, 10)})
	table.Append([]string{"Plugin errors", strconv.FormatUint(pluginErrors, 10)})
	table.Append([]string{"Window size mean (ns)", fmt.Sprintf("%.0f", snap.WindowNsMean)})
	table.Append([]string{"Window size p50/p99 (ns)", fmt.Sprintf("%d / %d", snap.WindowNsP50, snap.WindowNsP99)})
	table.Append([]string{"Wall-clock elapsed", snap.Elapsed.String()})
	table.Render()
}
