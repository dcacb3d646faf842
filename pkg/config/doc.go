/*
Package config loads the agent's YAML configuration and the persisted agent
identity state.

The configuration is read once at process start, validated, and passed by
value into every constructor that needs it. Interval values are expressed in
seconds in the file and exposed as time.Duration accessors.
*/
package config
