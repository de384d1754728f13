// Copyright 2021-2026 RCSB PDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fileio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadChunks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "depot",
		Name:      "upload_chunks_total",
		Help:      "Chunks accepted and appended.",
	})
	uploadsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "depot",
		Name:      "uploads_completed_total",
		Help:      "Uploads finalized and promoted to their target path.",
	})
	uploadsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "depot",
		Name:      "uploads_failed_total",
		Help:      "Chunk uploads rejected or failed during finalization.",
	})
	uploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "depot",
		Name:      "upload_bytes_total",
		Help:      "Chunk bytes received from upload clients.",
	})
	downloads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "depot",
		Name:      "downloads_total",
		Help:      "Download requests served, whole files and chunks.",
	})
	downloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "depot",
		Name:      "download_bytes_total",
		Help:      "Bytes streamed to download clients.",
	})
)
