package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sarchlab/osvm/mem/vm/mmu"
)

// machineConfig is the size of the simulated machine.
type machineConfig struct {
	RAMSize      uint64
	SwapFile     string
	SwapPages    int
	TLBEntries   int
	Log2PageSize uint64
}

func defaultMachineConfig() machineConfig {
	return machineConfig{
		RAMSize:      512 * 1024,
		SwapPages:    2048,
		TLBEntries:   64,
		Log2PageSize: 12,
	}
}

// machineConfigFromEnv overrides the defaults with the OSVM_* variables.
func machineConfigFromEnv() (machineConfig, error) {
	c := defaultMachineConfig()

	err := envUint("OSVM_RAM", &c.RAMSize)
	if err != nil {
		return c, err
	}

	err = envInt("OSVM_SWAP_PAGES", &c.SwapPages)
	if err != nil {
		return c, err
	}

	err = envInt("OSVM_TLB_ENTRIES", &c.TLBEntries)
	if err != nil {
		return c, err
	}

	if v, ok := os.LookupEnv("OSVM_SWAP_FILE"); ok {
		c.SwapFile = v
	}

	return c, nil
}

func envUint(name string, dst *uint64) error {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil
	}

	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	*dst = n

	return nil
}

func envInt(name string, dst *int) error {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	*dst = n

	return nil
}

func (c machineConfig) builder() mmu.Builder {
	return mmu.MakeBuilder().
		WithRAMSize(c.RAMSize).
		WithLog2PageSize(c.Log2PageSize).
		WithNumTLBEntries(c.TLBEntries).
		WithSwapFile(c.SwapFile).
		WithNumSwapPages(c.SwapPages)
}
