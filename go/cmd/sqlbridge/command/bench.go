// Copyright 2025 The Sqlbridge Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package command

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sqlbridge/sqlbridge/go/bridge"
)

func (rc *RootCommand) benchCommand() *cobra.Command {
	var (
		workers    int
		iterations int
		query      string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a concurrent query workload and report throughput",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rc.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeClient(client)

			runID := uuid.New()
			slog.Info("bench starting",
				"run_id", runID,
				"workers", workers,
				"iterations", iterations,
				"query", query,
			)

			var failed atomic.Int64
			start := time.Now()
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					done := make(chan *bridge.Frame, 1)
					for i := 0; i < iterations; i++ {
						client.FetchAll(query, func(frame *bridge.Frame) {
							done <- frame
						})
						frame := <-done
						if frame.IsError() {
							failed.Add(1)
							slog.Warn("bench query failed", "run_id", runID, "code", frame.Code, "error", frame.Message)
						}
						client.FreeResult(frame.Handle()) //nolint:errcheck
					}
				}()
			}
			wg.Wait()
			elapsed := time.Since(start)

			total := int64(workers) * int64(iterations)
			stats := client.Stats()
			fmt.Fprintf(cmd.OutOrStdout(),
				"run %s: %d queries in %v (%.0f qps), %d failed\n"+
					"pool: %d connects, %d waits, %v total wait\n",
				runID, total, elapsed, float64(total)/elapsed.Seconds(), failed.Load(),
				stats.ConnectCount, stats.WaitCount, stats.WaitTime)
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 8, "concurrent workers")
	cmd.Flags().IntVar(&iterations, "iterations", 1000, "queries per worker")
	cmd.Flags().StringVar(&query, "query", "SELECT 1", "query to run")
	return cmd
}
