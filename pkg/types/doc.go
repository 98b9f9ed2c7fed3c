// Package types provides shared type definitions for jobfeat.
//
// This package defines the domain types used across the job spec
// compiler, the file parsers, storage and the server surfaces.
//
// # Token Kinds
//
// A job specification contains typed placeholders. TokenKind is the closed set
// of placeholder types:
//
//	types.KindNumeric   // {threads:numeric}
//	types.KindCategory  // {complexity:category}
//	types.KindFile      // {input:file}, value derived by file parsers
//	types.KindGzipFile  // {input:gzip_file}, decompressed before parsing
//	types.KindFileList  // {inputs:file_list}, one path per line
//	types.KindIgnore    // {ignore} or {name:ignore}, never a feature
//
// # Feature Values
//
// Value is a closed sum of Number, Text and List:
//
//	record := types.NewFeatureRecord()
//	record.Set(types.Numeric, "threads", types.Number(4))
//	record.Set(types.Category, "complexity", types.Text("simple"))
//	record.Set(types.Numeric, "input1_layers", types.Numbers(12, 14, 16))
//
// # File Parsers
//
// Parser is the capability every file-derived feature satisfies. Parsers are
// looked up by name in a Registry:
//
//	registry := types.Registry{}
//	registry.Register(fileparser.NewLines())
//	parsers, err := registry.Resolve("input1", map[string]string{
//	    "input1": "file_lines,file_size",
//	})
//
// # Errors
//
// Sentinel errors are grouped by phase (configuration, match, extraction) and
// are wrapped with context by the packages that raise them:
//
//	if errors.Is(err, types.ErrUnknownKind) {
//	    // reject the configuration
//	}
package types
