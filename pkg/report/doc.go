// Package report assembles and persists analysis results.
//
// [Builder.Build] is a pure function of its [Input]: the resolved and
// evaluated graph, the vulnerability records, the maintained subset and
// the applied policy. The resulting [AnalysisResult] is immutable.
//
// Results are written through a [Sink]:
//
//   - [FileSink]: JSON or YAML at a fixed path
//   - [Store]: run archive, one JSON file per run ID
//   - [MongoSink]: one document per run in a MongoDB collection
//   - [GraphSink]: DOT or SVG rendering of the dependency map
//   - [MultiSink]: fan-out to several sinks
//
// YAML and BSON documents are derived from the JSON encoding so every
// format uses the same field names.
package report
