// Package core contains the shared data model and service interfaces for the
// conversation orchestration layer: threads, messages, memory summaries,
// chat request/response shapes, the error taxonomy, token usage tracking and
// the store/agent contracts implemented by sibling packages. It has no
// dependencies on other threadline packages so every layer can import it.
package core
