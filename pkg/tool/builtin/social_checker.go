package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/vigil/pkg/tool"
)

// LoginSource reports when an account last logged in
type LoginSource interface {
	LastLogin(ctx context.Context, platform, username, password string) (time.Time, error)
}

// StaticLoginSource reports a last login a fixed age in the past
type StaticLoginSource struct {
	Age time.Duration
	Now func() time.Time
}

// LastLogin implements LoginSource
func (s StaticLoginSource) LastLogin(ctx context.Context, platform, username, password string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().Add(-s.Age), nil
}

const defaultSocialInterval = 24 * time.Hour

// SocialChecker triggers when an account has been inactive for too long
type SocialChecker struct {
	name   string
	logins LoginSource
	now    func() time.Time
}

// NewSocialChecker creates a checker reading from logins
func NewSocialChecker(name string, logins LoginSource, now func() time.Time) *SocialChecker {
	if now == nil {
		now = time.Now
	}
	return &SocialChecker{name: name, logins: logins, now: now}
}

// Metadata implements tool.Tool
func (c *SocialChecker) Metadata() tool.Metadata {
	return tool.Metadata{
		Name:        c.name,
		Kind:        tool.KindActive,
		Description: "Checks social media login activity and triggers after a period of inactivity",
		ConfigSchema: tool.Schema{
			"platform":               {Type: tool.FieldString, Required: true, Default: "instagram"},
			"username":               {Type: tool.FieldString, Required: true},
			"password":               {Type: tool.FieldString, Required: true, Secret: true},
			"monitoring_period_days": {Type: tool.FieldInt, Default: 180},
			"interval":               {Type: tool.FieldInt, Default: 86400},
			"action_tool":            {Type: tool.FieldString, Default: ""},
			"beneficiary":            {Type: tool.FieldString, Default: ""},
			"amount":                 {Type: tool.FieldString, Default: ""},
			"chain":                  {Type: tool.FieldString, Default: "near"},
		},
	}
}

// DefaultInterval implements tool.Active
func (c *SocialChecker) DefaultInterval() time.Duration {
	return defaultSocialInterval
}

// Check implements tool.Active
func (c *SocialChecker) Check(ctx context.Context, cfg tool.Config) (tool.CheckResult, error) {
	platform := cfg.String("platform")
	username := cfg.String("username")

	lastLogin, err := c.logins.LastLogin(ctx, platform, username, cfg.String("password"))
	if err != nil {
		return tool.CheckResult{}, fmt.Errorf("last login for %s on %s: %w", username, platform, err)
	}

	days, _ := cfg.Int("monitoring_period_days")
	cutoff := c.now().Add(-time.Duration(days) * 24 * time.Hour)

	result := tool.CheckResult{
		Status: tool.StatusOK,
		Data: map[string]any{
			"platform":   platform,
			"username":   username,
			"last_login": lastLogin.UTC().Format(time.RFC3339),
		},
		Trigger: lastLogin.Before(cutoff),
	}

	if !result.Trigger {
		return result, nil
	}

	result.Description = fmt.Sprintf("%s account %s inactive since %s (more than %d days)",
		platform, username, lastLogin.UTC().Format("2006-01-02"), days)

	if actionTool := cfg.String("action_tool"); actionTool != "" {
		result.ToolToCall = actionTool
		result.Arguments = []any{cfg.String("beneficiary"), cfg.String("amount"), cfg.String("chain")}
	}

	return result, nil
}
