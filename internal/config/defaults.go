// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: Every default that the loader fills in lives here so the YAML
// schema and the fallbacks can be audited in one place.
package config

import "time"

// =============================================================================
// CLOUDFLARE DEFAULTS
// =============================================================================

// DefaultCloudflareBaseURL is the Cloudflare v4 REST API root.
const DefaultCloudflareBaseURL = "https://api.cloudflare.com/client/v4"

// DefaultModelID is used when cloudflare.model_id is left empty.
const DefaultModelID = "@cf/openai/gpt-oss-20b"

// =============================================================================
// CHAT MODIFIER DEFAULTS
// =============================================================================

// DefaultMaxPending is how many messages a single player may have queued
// behind an in-flight rewrite before new ones are rejected.
const DefaultMaxPending = 4

// DefaultPromptPrefix is used when neither prompt_prefix nor
// prompt_suffix is configured.
const DefaultPromptPrefix = "Rewrite the following Minecraft chat message so it sounds more polite and friendly. Reply with the rewritten message only: "

// =============================================================================
// SERVER AND LOGGING DEFAULTS
// =============================================================================

// DefaultServerAddr is the listen address of the reference chat server.
const DefaultServerAddr = ":25580"

// DefaultLogLevel is the zerolog level name used when none is configured.
const DefaultLogLevel = "info"

// MaxErrorBodyLogLen limits provider error bodies in logs.
const MaxErrorBodyLogLen = 500

// DefaultShutdownTimeout bounds graceful HTTP shutdown.
const DefaultShutdownTimeout = 5 * time.Second
