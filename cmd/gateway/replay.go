// cmd/gateway/replay.go
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/elcruzo/light-sensor-circuit/internal/data"
	"github.com/elcruzo/light-sensor-circuit/internal/gateway"
	"github.com/elcruzo/light-sensor-circuit/internal/logging"
	"github.com/elcruzo/light-sensor-circuit/internal/storage"
)

func newReplayCmd(configDir *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "run recorded samples through the pipeline and print the records",
		Long: "Reads one JSON sample per line (the body accepted by POST /samples)\n" +
			"and writes one JSON record per processed sample to stdout.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := io.Reader(os.Stdin)
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return replay(cmd.Context(), *configDir, in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "samples file, - for stdin")
	return cmd
}

func replay(ctx context.Context, configDir string, in io.Reader, out io.Writer) error {
	cfg, _, logger, closer, err := setup(configDir)
	if err != nil {
		return err
	}
	defer closer.Close()
	log := logging.Component(logger, "replay")

	gw := gateway.New(cfg, gateway.Deps{
		Store:  storage.NewMemoryStore(cfg.Storage.HistorySize),
		Logger: storage.NewDataLogger(cfg.Storage, storage.NewSink(cfg.Storage), logging.Component(logger, "datalog")),
		Log:    logging.Component(logger, "gateway"),
	})

	enc := json.NewEncoder(out)
	sc := bufio.NewScanner(in)
	line, skipped := 0, 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		sample, _, err := data.ParseSample(sc.Bytes())
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := gw.Replay(ctx, sample)
		if errors.Is(err, gateway.ErrInvalidSample) {
			skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"lines": line, "skipped": skipped}).Info("replay finished")
	return gw.Close()
}
