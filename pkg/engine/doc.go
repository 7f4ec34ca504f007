// Package engine is the composition root of the shorts pipeline. It reads
// the environment and the pipeline file, builds the model backends, the
// toolboxes, the agents and the pipeline, and exposes them to frontends
// (the CLI and the MCP server) through Engine.
package engine
