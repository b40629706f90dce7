// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vector-core-bench",
		Short: "Synthetic load generators for the vector-core pipeline components",
		Long: "vector-core-bench drives synthetic events through the batcher, reducer,\n" +
			"and disk buffer in isolation, outside of any running pipeline, so their\n" +
			"throughput and latency characteristics can be measured independently.",
		SilenceUsage: true,
	}

	root.AddCommand(newBatcherCmd())
	root.AddCommand(newReduceCmd())
	root.AddCommand(newDiskBufCmd())

	return root
}
