// Package agent provides core.Agent implementations. The provider adapters
// (subpackages openai and anthropic) wrap the official SDKs behind the
// text-in/text-out contract; Static is an in-memory double for tests and
// examples.
package agent
