// Package mcp implements the Model Context Protocol (MCP) server for jobfeat.
//
// The server exposes the configured jobs and the job database to MCP
// clients over stdio:
//   - parse_command: extract the features of a command or variable map
//   - explain_command: show how a command aligns with its job spec
//   - record_job: extract a run and store it with its memory and runtime
//   - record_batch: extract and store many runs concurrently
//   - list_jobs: list stored runs, optionally those sharing a command's categories
//   - get_status: configured jobs and database statistics
//
// # Basic Usage
//
//	jobfeat serve --config jobfeat.toml
//
// # Tool: parse_command
//
//	Request:
//	{
//	  "name": "parse_command",
//	  "arguments": {
//	    "job_name": "nupack",
//	    "cmd": "monomer -T 2 -C simple"
//	  }
//	}
//
//	Response:
//	{
//	  "job_name": "nupack",
//	  "features": {
//	    "categorical": {"complexity": "simple"},
//	    "numerical": {"threads": 2}
//	  }
//	}
//
// A command that does not match its job spec fails with code -32003; the
// error data carries the three-line alignment diagnostic.
//
// # Error Codes
//
//   - -32602: invalid parameters
//   - -32603: internal error
//   - -32001: job not defined in the configuration
//   - -32002: a batch is already running
//   - -32003: command does not match its job spec
//   - -32004: run already recorded
//   - -32005: features could not be extracted
package mcp
