package auth

import (
	"context"
	"errors"
)

// Method records which credential strategy resolved the request.
type Method string

const (
	MethodAPIKey Method = "api_key"
	MethodBearer Method = "bearer"
)

type ctxKey int

const (
	ctxAccountID ctxKey = iota
	ctxRole
	ctxMethod
)

func WithIdentity(ctx context.Context, accountID, role string, method Method) context.Context {
	ctx = context.WithValue(ctx, ctxAccountID, accountID)
	ctx = context.WithValue(ctx, ctxRole, role)
	ctx = context.WithValue(ctx, ctxMethod, method)
	return ctx
}

func AccountID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxAccountID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", ErrMissingCredential
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", ErrMissingCredential
}

func ResolvedBy(ctx context.Context) (Method, error) {
	v := ctx.Value(ctxMethod)
	if m, ok := v.(Method); ok && m != "" {
		return m, nil
	}
	return "", errors.New("auth method not in context")
}
