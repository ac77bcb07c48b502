// Package botstatus surfaces the Discord bot's health through the bot
// gateway and relays restart commands to it.
package botstatus

import "time"

// Snapshot is the bot state as last reported by the gateway. A gateway
// that cannot be reached yields the offline default rather than an error
// on the read path.
type Snapshot struct {
	Online       bool      `json:"online"`
	GuildCount   int       `json:"guild_count"`
	ShardCount   int       `json:"shard_count"`
	LatencyMS    int64     `json:"latency_ms"`
	Version      string    `json:"version"`
	UptimeSecs   int64     `json:"uptime_secs"`
	ObservedAt   time.Time `json:"observed_at"`
	GatewayError string    `json:"gateway_error,omitempty"`
}

// OfflineSnapshot is the defaulted shape returned when the gateway is
// unreachable.
func OfflineSnapshot(now time.Time, reason string) Snapshot {
	return Snapshot{Online: false, ObservedAt: now, GatewayError: reason}
}
