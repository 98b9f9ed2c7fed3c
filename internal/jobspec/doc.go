// Package jobspec compiles job specifications and extracts features from the
// commands they describe.
//
// A specification is command text with typed placeholders:
//
//	monomer -T {threads:numeric} -C {complexity:category} -i {input:file} {ignore}
//
// Compile turns it into an anchored pattern plus a token table. MatchCommand
// applies the pattern to a command and returns a types.FeatureRecord:
// numeric and category tokens are stored under their own name, file tokens
// under {token}_{parser} for every parser assigned to them, and ignore tokens
// are dropped.
//
// Specifications built with FromVariables have no pattern and only accept
// typed variable maps through MatchVariables.
//
// When a command does not match, Explain renders a three line diagnostic:
//
//	monomer -T {threads⇒2A} -C {complexity⇒simple}
//	           │     ⚠    │    │                 │
//	monomer -T └───┤2A├───┘ -C └─────┤simple├────┘
//
// Compiled specifications are immutable and safe for concurrent use.
package jobspec
