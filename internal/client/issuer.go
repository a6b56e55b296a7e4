package client

import (
	"context"
	"errors"
)

// IssuerSource resolves the OIDC issuer from /actuator/info. Give it a client
// whose transport is not the request gate.
type IssuerSource struct {
	Client *Client
}

func (s IssuerSource) Issuer(ctx context.Context) (string, error) {
	info, err := s.Client.Info(ctx)
	if err != nil {
		return "", err
	}
	if info.Auth.IssuerURI == "" {
		return "", errors.New("backend did not advertise auth.issuer-uri")
	}
	return info.Auth.IssuerURI, nil
}
