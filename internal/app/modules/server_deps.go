package modules

import (
	"strings"

	"koinonia.app/notifier/internal/api/handlers"
	"koinonia.app/notifier/internal/api/middleware"
	"koinonia.app/notifier/internal/config"
	"koinonia.app/notifier/internal/domain"
)

// NewServerDeps builds base server deps then lets each module contribute explicit wiring.
func NewServerDeps(infra *Infrastructure, dispatcher *domain.EntityDispatcher, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{
		Store:  infra.Store,
		Events: dispatcher,
	}
	if infra.Pools != nil {
		deps.Pools = infra.Pools
	}
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		contributor, ok := mod.(ServerDepsContributor)
		if !ok {
			continue
		}
		contributor.ContributeServerDeps(&deps)
	}
	return deps
}

// NewDispatcher registers every module's event handlers on a fresh dispatcher.
func NewDispatcher(mods []Module) *domain.EntityDispatcher {
	d := domain.NewEntityDispatcher()
	for _, mod := range mods {
		if registrar, ok := mod.(EventHandlerRegistrar); ok {
			registrar.RegisterEventHandlers(d)
		}
	}
	return d
}

// JWTConfig derives the callable auth settings from configuration.
func JWTConfig(cfg *config.Config) middleware.JWTConfig {
	verificationKeys := make([][]byte, 0, len(cfg.Security.JWTVerificationKeys))
	for _, key := range cfg.Security.JWTVerificationKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		verificationKeys = append(verificationKeys, []byte(key))
	}
	return middleware.JWTConfig{
		SigningKey:       []byte(cfg.Security.JWTSigningKey),
		VerificationKeys: verificationKeys,
		Issuer:           cfg.Security.JWTIssuer,
		ExpiresIn:        cfg.Security.JWTExpiresIn,
	}
}
