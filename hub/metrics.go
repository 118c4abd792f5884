// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package hub

import "github.com/stakehub-labs/stakehub/metrics"

var (
	metricOperationCount = metrics.LazyLoadCounterVec("hub_operation_count", []string{"action"})
	metricBatchCount     = metrics.LazyLoadCounter("hub_batch_submitted_count")
)
