// Package logfields provides canonical log field names and helpers for structured logging.
package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyJobCode     = "job_code"
	KeyPlatform    = "platform"
	KeyStartTime   = "start_time"
	KeyService     = "service"
	KeyStage       = "stage"
	KeyDurationMS  = "duration_ms"
	KeyEnv         = "environment"
	KeyPath        = "path"
	KeyFile        = "file"
	KeyKey         = "object_key"
	KeyError       = "error"
	KeyMethod      = "method"
	KeyURL         = "url"
	KeyStatus      = "status"
	KeyTries       = "tries"
	KeyRequestID   = "request_id"
	KeyWorkingHost = "host"
	KeyAckToken    = "ack_token"
)

func JobCode(code string) slog.Attr    { return slog.String(KeyJobCode, code) }
func Platform(p string) slog.Attr      { return slog.String(KeyPlatform, p) }
func StartTime(ms int64) slog.Attr     { return slog.Int64(KeyStartTime, ms) }
func Service(name string) slog.Attr    { return slog.String(KeyService, name) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Env(e string) slog.Attr           { return slog.String(KeyEnv, e) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func File(f string) slog.Attr          { return slog.String(KeyFile, f) }
func ObjectKey(k string) slog.Attr     { return slog.String(KeyKey, k) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func Tries(n int) slog.Attr            { return slog.Int(KeyTries, n) }
func RequestID(id string) slog.Attr    { return slog.String(KeyRequestID, id) }
func Host(h string) slog.Attr          { return slog.String(KeyWorkingHost, h) }
func AckToken(tok string) slog.Attr    { return slog.String(KeyAckToken, tok) }

// Error returns a slog.Attr for an error, or an empty string if nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
