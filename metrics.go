/*
Copyright 2023 Alexander Bartolomey (github@alexanderbartolomey.de)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package netflow

import "github.com/prometheus/client_golang/prometheus"

var (
	PacketsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netflow_decoder_packets_total",
		Help: "Total number of datagrams handed to Decode, by protocol version.",
	}, []string{"version"})

	DroppedDatagramsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netflow_decoder_dropped_datagrams_total",
		Help: "Total number of datagrams dropped without producing any events, by reason.",
	}, []string{"reason"})

	DecodedSetsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netflow_decoder_decoded_sets_total",
		Help: "Total number of flowsets decoded, by kind.",
	}, []string{"kind"})

	DecodedRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netflow_decoder_decoded_records_total",
		Help: "Total number of records decoded into events, by kind.",
	}, []string{"kind"})

	DroppedRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netflow_decoder_dropped_records_total",
		Help: "Total number of records dropped during decoding, by reason.",
	}, []string{"reason"})

	DecodeDurationMicroseconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "netflow_decoder_decode_duration_microseconds",
		Help:    "Duration of Decoder.Decode calls in microseconds.",
		Buckets: prometheus.ExponentialBuckets(10, 2, 16),
	})

	TemplatesCached = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "netflow_decoder_templates_cached",
		Help: "Number of templates currently live in the registry, by version.",
	}, []string{"version"})
)

func init() {
	prometheus.MustRegister(
		PacketsTotal,
		DroppedDatagramsTotal,
		DecodedSetsTotal,
		DecodedRecordsTotal,
		DroppedRecordsTotal,
		DecodeDurationMicroseconds,
		TemplatesCached,
	)
}
