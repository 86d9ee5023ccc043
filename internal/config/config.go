// Package config resolves the session credential and deployment stage.
//
// The credential comes from an explicit argument, the API_KEY environment
// variable, or the OS keyring (in that order). The stage comes from an
// explicit argument or the STAGE environment variable, defaulting to prod.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Environment variables read by the SDK.
const (
	EnvAPIKey = "API_KEY"
	EnvStage  = "STAGE"
)

// Stage is a named deployment environment. It determines the network
// address family used for every request in a session.
type Stage string

const (
	StageDev     Stage = "dev"
	StageLatest  Stage = "latest"
	StageTest    Stage = "test"
	StageBeta    Stage = "beta"
	StageProd    Stage = "prod"
	StageParvati Stage = "parvati"
)

// DefaultSubdomain is the service subdomain used when a request does not
// scope itself to another one.
const DefaultSubdomain = "service"

var stages = []Stage{StageDev, StageLatest, StageTest, StageBeta, StageProd, StageParvati}

// MissingEnvError indicates a required environment variable is not set and
// no other source supplied the value.
type MissingEnvError struct {
	Name string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("environment variable %s is not set", e.Name)
}

// InvalidParameterError indicates a caller-supplied parameter failed
// validation before any network call was attempted.
type InvalidParameterError struct {
	Name   string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Name, e.Reason)
}

// ParseStage validates a stage name. On an unknown name the error includes
// the closest known stage as a suggestion.
func ParseStage(name string) (Stage, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range stages {
		if name == string(s) {
			return s, nil
		}
	}

	reason := fmt.Sprintf("unknown stage %q", name)
	if suggestion := closestStage(name); suggestion != "" {
		reason = fmt.Sprintf("unknown stage %q (did you mean %q?)", name, suggestion)
	}
	return "", &InvalidParameterError{Name: "stage", Reason: reason}
}

// closestStage finds a known stage resembling the given name. Fuzzy
// matching is subsequence-based, so try the name against the stages and
// then each stage against the name to also cover over-typed input.
func closestStage(name string) string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	if matches := fuzzy.Find(name, names); len(matches) > 0 {
		return matches[0].Str
	}
	for _, s := range names {
		if len(fuzzy.Find(s, []string{name})) > 0 {
			return s
		}
	}
	return ""
}

// BaseURL derives the service address for this stage. Production drops the
// stage segment from the hostname.
func (s Stage) BaseURL(subdomain string) string {
	if subdomain == "" {
		subdomain = DefaultSubdomain
	}
	if s == StageProd {
		return fmt.Sprintf("https://%s.peak.ai", subdomain)
	}
	return fmt.Sprintf("https://%s.%s.peak.ai", subdomain, s)
}

// ResolveAuthToken returns the session credential. An explicit token wins,
// then API_KEY, then the keyring store. Returns MissingEnvError when no
// source has a value.
func ResolveAuthToken(explicit string) (string, error) {
	if token := strings.TrimSpace(explicit); token != "" {
		return token, nil
	}
	if token := strings.TrimSpace(os.Getenv(EnvAPIKey)); token != "" {
		return token, nil
	}
	if token, err := LoadCredential(); err == nil && token != "" {
		return token, nil
	}
	return "", &MissingEnvError{Name: EnvAPIKey}
}

// ResolveStage returns the deployment stage. An explicit value wins, then
// STAGE, then prod.
func ResolveStage(explicit string) (Stage, error) {
	if explicit != "" {
		return ParseStage(explicit)
	}
	if env := strings.TrimSpace(os.Getenv(EnvStage)); env != "" {
		return ParseStage(env)
	}
	return StageProd, nil
}
