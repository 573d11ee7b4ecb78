// Command lsmctl drives an Engine from the shell: put, get, flush, and
// stats against a data directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kvlsm/lsmgo/db"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dir       string
		threshold int
		fpp       float64
		maxSST    int
		verbose   bool
	)

	root := &cobra.Command{
		Use:   "lsmctl",
		Short: "Drive an lsmgo storage engine directory",
	}
	root.PersistentFlags().StringVar(&dir, "dir", "data", "data directory (WAL + SSTables live here)")
	root.PersistentFlags().IntVar(&threshold, "threshold", 4096, "MemTable flush threshold in bytes")
	root.PersistentFlags().Float64Var(&fpp, "fpp", db.DefaultBloomFPP, "target Bloom filter false-positive rate")
	root.PersistentFlags().IntVar(&maxSST, "max-sstables", 0, "trigger compaction once more than this many SSTables exist (0 disables)")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "trace Bloom filter hits/misses")

	openEngine := func() (*db.Engine, error) {
		return db.Open(db.Options{
			Dir:            dir,
			ThresholdBytes: threshold,
			BloomFPP:       fpp,
			MaxSSTables:    maxSST,
			Verbose:        verbose,
		})
	}

	root.AddCommand(newPutCmd(openEngine))
	root.AddCommand(newGetCmd(openEngine))
	root.AddCommand(newFlushCmd(openEngine))
	root.AddCommand(newStatsCmd(openEngine))

	return root
}

func newPutCmd(open func() (*db.Engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Insert or overwrite a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.Put([]byte(args[0]), []byte(args[1])); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newGetCmd(open func() (*db.Engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Look up a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()
			v, ok, err := e.Get([]byte(args[0]))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "(not found)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(v))
			return nil
		},
	}
}

func newFlushCmd(open func() (*db.Engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Force a MemTable flush to a new SSTable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newStatsCmd(open func() (*db.Engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print MemTable, SSTable, and Bloom filter statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()
			s := e.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "instance:        %s\n", s.InstanceID)
			fmt.Fprintf(out, "memtable:        %d entries, %d bytes (threshold %d)\n", s.MemTableLen, s.MemTableBytes, s.Threshold)
			fmt.Fprintf(out, "sstables:        %d\n", s.SSTableCount)
			fmt.Fprintf(out, "bloom checks:    %d positive, %d negative\n", s.PositiveChecks, s.NegativeChecks)
			for i, fs := range s.Filters {
				fmt.Fprintf(out, "  sstable[%d]:    bits=%d hashes=%d items=%d fill=%.3f estFPP=%.4f\n",
					i, fs.NumBits, fs.NumHashes, fs.NumItems, fs.FillRatio, fs.EstimatedFPP)
			}
			return nil
		},
	}
}
