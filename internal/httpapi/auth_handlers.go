package httpapi

import (
	"errors"

	"storefront.org/internal/audit"
	"storefront.org/internal/auth"
	"storefront.org/internal/pipeline"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) register(req pipeline.Request) (*pipeline.Response, error) {
	var in credentials
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	ctx := req.Context()
	p, err := a.deps.Auth.Register(ctx, auth.RegisterInput{Email: in.Email, Password: in.Password, Name: in.Name})
	if err != nil {
		return nil, err
	}
	pair, err := a.deps.Auth.Tokens().IssuePair(ctx, p, meta(req))
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, audit.EventRegister, map[string]any{"principal_id": p.ID, "ip": req.ClientIP})
	return pipeline.Created("Registration successful", auth.Session{Principal: p, Tokens: pair}), nil
}

func (a *API) login(req pipeline.Request) (*pipeline.Response, error) {
	var in credentials
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	ctx := req.Context()
	s, err := a.deps.Auth.Login(ctx, in.Email, in.Password, meta(req))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			_ = audit.LogEvent(ctx, audit.EventLoginFailed, map[string]any{"email": in.Email, "ip": req.ClientIP})
		}
		return nil, err
	}
	_ = audit.LogEvent(ctx, audit.EventLogin, map[string]any{"principal_id": s.Principal.ID, "ip": req.ClientIP})
	return pipeline.OK("Login successful", s), nil
}

func (a *API) refresh(req pipeline.Request) (*pipeline.Response, error) {
	var in refreshRequest
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	s, err := a.deps.Auth.Refresh(req.Context(), in.RefreshToken, meta(req))
	if err != nil {
		if errors.Is(err, auth.ErrTokenReused) {
			_ = audit.LogEvent(req.Context(), audit.EventRefreshReuse, map[string]any{
				"principal_id": s.Principal.ID,
				"ip":           req.ClientIP,
				"user_agent":   req.Header("User-Agent"),
			})
		}
		return nil, err
	}
	return pipeline.OK("Token refreshed", s), nil
}

func (a *API) logout(req pipeline.Request) (*pipeline.Response, error) {
	var in refreshRequest
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	if err := a.deps.Auth.Logout(req.Context(), in.RefreshToken); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(req.Context(), audit.EventLogout, map[string]any{"ip": req.ClientIP})
	return pipeline.OK("Logged out", nil), nil
}

func (a *API) logoutAll(req pipeline.Request) (*pipeline.Response, error) {
	n, err := a.deps.Auth.LogoutAll(req.Context(), req.Principal.ID)
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(req.Context(), audit.EventLogoutAll, map[string]any{"principal_id": req.Principal.ID, "revoked": n})
	return pipeline.OK("Logged out from all sessions", map[string]int{"revoked": n}), nil
}

func (a *API) me(req pipeline.Request) (*pipeline.Response, error) {
	return pipeline.OK("Profile retrieved", req.Principal), nil
}
