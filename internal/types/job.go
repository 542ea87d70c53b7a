// Package types defines the wire and on-disk data model shared by every
// sibling service: the job, its signing key, the workspace it runs in, the
// dependency-cache manifest, and the terminal notification.
package types

import (
	"strconv"
	"time"
)

// Platform is one of the five supported target operating systems.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformOSX     Platform = "osx"
	PlatformWindows Platform = "windows"
	PlatformUbuntu  Platform = "ubuntu"
)

// Valid reports whether p is one of the five recognized platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformAndroid, PlatformIOS, PlatformOSX, PlatformWindows, PlatformUbuntu:
		return true
	default:
		return false
	}
}

// SigningKey carries the platform-specific signing material embedded in a
// job. Only the fields relevant to the job's platform are populated; the
// rest are left zero.
type SigningKey struct {
	// Android
	Keystore string `json:"keystore,omitempty"`
	Alias    string `json:"alias,omitempty"`

	// Apple (iOS/OSX)
	P12              string `json:"p12,omitempty"`
	Provisioning     string `json:"provisioning,omitempty"`
	ProvisioningUUID string `json:"-"`

	// Windows
	PFX        string `json:"pfx,omitempty"`
	Thumbprint string `json:"thumbprint,omitempty"`
	Publisher  string `json:"publisher,omitempty"`

	// Shared
	Password string `json:"password,omitempty"`
}

// Job is a single build request as fetched from the backend or read from a
// one-shot config.json.
type Job struct {
	Code       string      `json:"code"`
	Platforms  []Platform  `json:"platforms,omitempty"`
	Platform   Platform    `json:"platform,omitempty"`
	StartTime  int64       `json:"starttime,omitempty"`
	Key        *SigningKey `json:"key,omitempty"`
	IconURL    string      `json:"icon,omitempty"`
	SplashURL  string      `json:"splash,omitempty"`
	ConfigURL  string      `json:"config"`
	SourceURL  string      `json:"source"`
	LibVersion string      `json:"libVersion"`
}

// Signed reports whether the job carries signing material.
func (j *Job) Signed() bool { return j.Key != nil }

// Validate checks the fields the core consumes are present, per spec §4.3
// step 3. It does not validate the shape of Key — that is platform-specific
// and checked by the platform backend.
func (j *Job) Validate() error {
	if j.Code == "" {
		return errMissingField("code")
	}
	if len(j.Platforms) == 0 && j.Platform == "" {
		return errMissingField("platforms")
	}
	if j.ConfigURL == "" {
		return errMissingField("config")
	}
	if j.SourceURL == "" {
		return errMissingField("source")
	}
	if j.LibVersion == "" {
		return errMissingField("libVersion")
	}
	return nil
}

// AssignPlatform takes the first element of Platforms as this job's
// platform when Platform is unset, per spec §4.3 step 3. It does not touch
// StartTime; the Builder assigns that.
func (j *Job) AssignPlatform() {
	if j.Platform == "" && len(j.Platforms) > 0 {
		j.Platform = j.Platforms[0]
	}
}

// WorkspaceName is the directory name `{code}_{starttime}` that uniquely
// names this job's workspace for its lifetime.
func (j *Job) WorkspaceName() string {
	return j.Code + "_" + strconv.FormatInt(j.StartTime, 10)
}

func errMissingField(name string) error {
	return &MissingFieldError{Field: name}
}

// MissingFieldError reports a required job field that was absent.
type MissingFieldError struct{ Field string }

func (e *MissingFieldError) Error() string { return "missing required field: " + e.Field }

// NowMillis returns the current time in milliseconds since epoch, the unit
// spec §3 uses for StartTime.
func NowMillis() int64 { return time.Now().UnixMilli() }
