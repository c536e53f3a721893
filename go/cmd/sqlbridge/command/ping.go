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
	"time"

	"github.com/spf13/cobra"

	"github.com/sqlbridge/sqlbridge/go/bridge"
	"github.com/sqlbridge/sqlbridge/go/sqlerrors"
)

func (rc *RootCommand) pingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Connect and run a trivial query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rc.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeClient(client)

			start := time.Now()
			done := make(chan *bridge.Frame, 1)
			client.FetchAll("SELECT 1", func(frame *bridge.Frame) {
				done <- frame
			})
			frame := <-done
			defer client.FreeResult(frame.Handle()) //nolint:errcheck

			if frame.IsError() {
				return fmt.Errorf("ping failed: %s: %s", frame.Code, frame.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d row(s) in %v (pool %d/%d idle)\n",
				len(frame.Rows), time.Since(start), client.PoolIdleSize(), client.PoolSize())
			return nil
		},
	}
}

// closeClient shuts the client down and waits for the close frame.
func closeClient(client *bridge.Client) {
	done := make(chan struct{})
	client.Close(func(frame *bridge.Frame) {
		if frame.Code != sqlerrors.OK {
			fmt.Printf("close failed: %s\n", frame.Message)
		}
		client.FreeResult(frame.Handle()) //nolint:errcheck
		close(done)
	})
	<-done
}
