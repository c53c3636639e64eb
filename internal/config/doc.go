// Package config loads eyeparse configuration.
//
// Values come from three layers, later layers overriding earlier ones:
//
//  1. Built-in defaults (Default)
//  2. An optional YAML file passed to Load
//  3. EYEPARSE_* environment variables
//
// Environment variable names follow the struct nesting, for example:
//
//	EYEPARSE_PROCESSOR_BLINKRECONSTRUCT=true
//	EYEPARSE_PROCESSOR_DOWNSAMPLE=10
//	EYEPARSE_PROCESSOR_BLINK_VT_START=10
//	EYEPARSE_PARSER_MALFORMED_POLICY=skip
//	EYEPARSE_CACHE_ENABLED=true
//
// The merged result is validated with struct tags before it is returned.
package config
