// Package config loads the TOML configuration that declares jobs, their
// specifications and custom file parsers.
//
//	[jobfeat]
//	base_dir = "jobfeat_dir"
//
//	[jobfeat.job.nupack]
//	job_spec = "monomer -T {threads:numeric} -i {input1:file}"
//	file_parsers.input1 = "file_lines,epochs"
//	default_mem = "2GB"
//	default_time = 60
//
//	[jobfeat.file_parsers.epochs]
//	return_type = "numerical"
//	awk_script = "/^epochs:/ {print $2}"
//
// Every job is compiled at load time and all configuration errors are
// reported together.
package config
