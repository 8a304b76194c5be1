// Package autotraceoc hands autotrace spans to OpenCensus exporters.
//
// NOTE: This package is currently experimental. Breaking changes may occur, independent of version.
//
//     func Example() {
//         exporter := autotraceoc.NewExporter(autotraceoc.WithExporter(ocExporter))
//         session, err := autotrace.NewSession(mem, autotrace.WithRecorder(exporter))
//         if err != nil {
//             log.Fatal(err)
//         }
//         defer session.Close()
//     }
package autotraceoc
