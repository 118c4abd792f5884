// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package arbvault

import "github.com/stakehub-labs/stakehub/metrics"

var (
	metricOperationCount = metrics.LazyLoadCounterVec("arbvault_operation_count", []string{"action"})
	metricExecutionCount = metrics.LazyLoadCounter("arbvault_execution_count")
)
