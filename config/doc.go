// Package config loads relay server settings from YAML files, environment variables or
// in-memory maps.
//
// Keys keep their historical names (ConnectionString, MonitorSleepTime, ForwardSleepTime,
// NumThreads) so existing deployments can carry their values over. A missing key keeps its
// default. A key that cannot be read or parsed is logged as a warning with
// msgrelay.CodeConfigRead and also keeps its default, so a bad setting never prevents
// the server from loading; Validate decides whether the result is usable.
package config
