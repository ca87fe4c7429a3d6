package assistant

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/querybridge/querybridge/internal/bridge"
	"github.com/querybridge/querybridge/internal/query"
	"github.com/querybridge/querybridge/internal/session"
)

// EngineFactory hands each session the engine matching its connection
// target.
type EngineFactory interface {
	Backend() string
	Resolve(target session.Target) session.Target
	EngineFor(target session.Target) (query.Engine, error)
}

// FireboltEngines builds a one-shot bridge per session target. Values missing
// from the target are taken from the server configuration.
type FireboltEngines struct {
	Defaults bridge.Config
	Launcher bridge.Launcher
	Logger   *slog.Logger
}

func (f FireboltEngines) Backend() string {
	return query.BackendFirebolt
}

func (f FireboltEngines) Resolve(target session.Target) session.Target {
	return session.Target{
		ClientID:     firstSet(target.ClientID, f.Defaults.ClientID),
		ClientSecret: firstSet(target.ClientSecret, f.Defaults.ClientSecret),
		Account:      firstSet(target.Account, f.Defaults.Account),
		Database:     firstSet(target.Database, f.Defaults.Database),
		Engine:       firstSet(target.Engine, f.Defaults.Engine),
	}
}

func (f FireboltEngines) EngineFor(target session.Target) (query.Engine, error) {
	resolved := f.Resolve(target)
	cfg := f.Defaults
	cfg.ClientID = resolved.ClientID
	cfg.ClientSecret = resolved.ClientSecret
	cfg.Account = resolved.Account
	cfg.Database = resolved.Database
	cfg.Engine = resolved.Engine
	return bridge.New(cfg, f.Launcher, f.Logger), nil
}

// SharedEngine serves every session from one local engine. Connection
// targets are ignored; sessions report Database instead.
type SharedEngine struct {
	Name     string
	Database string
	Engine   query.Engine
}

func (s SharedEngine) Backend() string {
	return s.Name
}

func (s SharedEngine) Resolve(session.Target) session.Target {
	return session.Target{Database: firstSet(s.Database, s.Name)}
}

func (s SharedEngine) EngineFor(session.Target) (query.Engine, error) {
	if s.Engine == nil {
		return nil, fmt.Errorf("%s engine is not configured", s.Name)
	}
	return s.Engine, nil
}

func firstSet(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
