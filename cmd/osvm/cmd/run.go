package cmd

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sort"
	"strconv"

	"github.com/pkg/browser"
	"github.com/sarchlab/osvm/datarecording"
	"github.com/sarchlab/osvm/mem/vm"
	"github.com/sarchlab/osvm/mem/vm/loader"
	"github.com/sarchlab/osvm/mem/vm/mmu"
	"github.com/sarchlab/osvm/mem/vm/vmstats"
	"github.com/sarchlab/osvm/monitoring"
	"github.com/sarchlab/osvm/sim"
	"github.com/sarchlab/osvm/workload"
	"github.com/spf13/cobra"
)

type runOptions struct {
	workload workload.Config
	machine  machineConfig

	program     string
	record      string
	clickhouse  string
	trace       string
	verbose     bool
	monitor     bool
	monitorPort int
	open        bool
}

var runOpts = runOptions{workload: workload.DefaultConfig()}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a workload and print the VM statistics.",
	Long: "`run` loads a program into a number of processes, forks each of " +
		"them, and makes random reads and writes to their text, data, and " +
		"stack. Machine sizes come from OSVM_RAM, OSVM_SWAP_FILE, " +
		"OSVM_SWAP_PAGES and OSVM_TLB_ENTRIES and can be overridden by flags.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		machine, err := machineConfigFromEnv()
		if err != nil {
			return err
		}

		applyMachineFlags(cmd, &machine)
		runOpts.machine = machine

		return runWorkload(runOpts, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.IntVar(&runOpts.workload.NumProcs, "procs",
		runOpts.workload.NumProcs, "Number of processes to load")
	f.IntVar(&runOpts.workload.NumAccesses, "accesses",
		runOpts.workload.NumAccesses, "Number of memory accesses to make")
	f.Int64Var(&runOpts.workload.Seed, "seed",
		runOpts.workload.Seed, "Seed of the access pattern")
	f.IntVar(&runOpts.workload.TextPages, "text-pages",
		runOpts.workload.TextPages, "Pages in the text segment")
	f.IntVar(&runOpts.workload.DataPages, "data-pages",
		runOpts.workload.DataPages, "Pages in the data segment")
	f.Float64Var(&runOpts.workload.WildRate, "wild-rate", 0,
		"Probability that an access is illegal")
	f.StringVar(&runOpts.program, "program", "",
		"Program file to page segments from instead of a generated image")

	f.Uint64("ram", 0, "Bytes of physical memory (overrides OSVM_RAM)")
	f.Int("swap-pages", 0, "Swap capacity in pages (overrides OSVM_SWAP_PAGES)")
	f.String("swap-file", "", "Swap file path (overrides OSVM_SWAP_FILE)")
	f.Int("tlb-entries", 0, "TLB slots (overrides OSVM_TLB_ENTRIES)")

	f.StringVar(&runOpts.record, "record", "",
		"Record VM events into <path>.sqlite3")
	f.StringVar(&runOpts.clickhouse, "clickhouse", "",
		"Record VM events into the ClickHouse server at host:port")
	f.StringVar(&runOpts.trace, "trace", "",
		"Write a CSV line per VM event to this file")
	f.BoolVar(&runOpts.verbose, "verbose", false, "Log every VM event")
	f.BoolVar(&runOpts.monitor, "monitor", false,
		"Serve the monitor while running")
	f.IntVar(&runOpts.monitorPort, "monitor-port", 0,
		"Port of the monitor, random if 0")
	f.BoolVar(&runOpts.open, "open", false,
		"Open the monitor in a browser (implies --monitor)")
}

func applyMachineFlags(cmd *cobra.Command, c *machineConfig) {
	f := cmd.Flags()

	if f.Changed("ram") {
		c.RAMSize, _ = f.GetUint64("ram")
	}

	if f.Changed("swap-pages") {
		c.SwapPages, _ = f.GetInt("swap-pages")
	}

	if f.Changed("swap-file") {
		c.SwapFile, _ = f.GetString("swap-file")
	}

	if f.Changed("tlb-entries") {
		c.TLBEntries, _ = f.GetInt("tlb-entries")
	}
}

func runWorkload(opts runOptions, out io.Writer) error {
	driver := workload.NewDriver(opts.workload)

	m, err := opts.machine.builder().WithTerminator(driver).Build("MMU")
	if err != nil {
		return err
	}
	defer m.Shutdown()

	driver.Attach(m)

	stats := vmstats.NewStats()
	m.AcceptHook(stats)

	if opts.verbose {
		m.AcceptHook(vmstats.NewLogHook(log.New(os.Stderr, "", 0)))
	}

	if opts.trace != "" {
		f, err := os.Create(opts.trace)
		if err != nil {
			return err
		}
		defer f.Close()

		m.AcceptHook(vmstats.NewTracer(f))
	}

	recorders, err := attachRecorders(opts, m)
	if err != nil {
		return err
	}

	if opts.monitor || opts.open {
		startMonitor(opts, m, stats, driver)
	}

	var exe loader.Executable
	if opts.program != "" {
		exe, err = loader.OpenExecutable(opts.program)
		if err != nil {
			return err
		}
	}

	res, err := driver.Run(exe)
	if err != nil {
		return err
	}

	for _, r := range recorders {
		r.RecordCounters(stats)
	}

	printResult(out, res, stats)

	return nil
}

func attachRecorders(
	opts runOptions,
	m *mmu.Comp,
) ([]*vmstats.Recorder, error) {
	var recorders []*vmstats.Recorder

	if opts.record != "" {
		r := vmstats.NewRecorder(datarecording.New(opts.record),
			sim.NewSequentialIDGenerator())
		m.AcceptHook(r)
		recorders = append(recorders, r)
	}

	if opts.clickhouse != "" {
		cfg, err := clickHouseConfig(opts.clickhouse)
		if err != nil {
			return nil, err
		}

		r := vmstats.NewRecorder(datarecording.NewClickHouseRecorder(cfg),
			sim.NewParallelIDGenerator())
		m.AcceptHook(r)
		recorders = append(recorders, r)
	}

	return recorders, nil
}

func clickHouseConfig(addr string) (datarecording.ClickHouseConfig, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return datarecording.ClickHouseConfig{}, err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return datarecording.ClickHouseConfig{},
			fmt.Errorf("clickhouse port: %w", err)
	}

	return datarecording.ClickHouseConfig{
		Host:     host,
		Port:     port,
		Database: envOr("OSVM_CLICKHOUSE_DB", "default"),
		Username: envOr("OSVM_CLICKHOUSE_USER", "default"),
		Password: os.Getenv("OSVM_CLICKHOUSE_PASSWORD"),
	}, nil
}

func envOr(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}

	return def
}

func startMonitor(
	opts runOptions,
	m *mmu.Comp,
	stats *vmstats.Stats,
	driver *workload.Driver,
) {
	monitor := monitoring.NewMonitor().WithPortNumber(opts.monitorPort)
	monitor.RegisterWorkload(driver)
	monitor.RegisterStats(stats)
	monitor.RegisterComponent(m)
	monitor.RegisterComponent(m.Coremap())
	monitor.RegisterComponent(m.PageTable())
	monitor.RegisterComponent(m.Swap())
	monitor.RegisterComponent(m.TLB())

	bar := monitor.CreateProgressBar("Accesses",
		uint64(opts.workload.NumAccesses))
	driver.WithProgress(bar)

	port := monitor.StartServer()

	if opts.open {
		err := browser.OpenURL(fmt.Sprintf("http://localhost:%d", port))
		if err != nil {
			log.Printf("opening browser: %v", err)
		}
	}
}

func printResult(out io.Writer, res *workload.Result, stats *vmstats.Stats) {
	fmt.Fprintf(out, "Accesses: %d\n", res.Accesses)
	fmt.Fprintf(out, "Exited:   %d\n", len(res.Exited))
	fmt.Fprintf(out, "Killed:   %d\n", len(res.Killed))

	pids := make([]int, 0, len(res.Killed))
	for pid := range res.Killed {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)

	for _, pid := range pids {
		fmt.Fprintf(out, "  pid %d: %v\n", pid, res.Killed[vm.PID(pid)])
	}

	fmt.Fprintln(out)
	stats.Report(out)
}
