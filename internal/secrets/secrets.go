// Package secrets resolves credential references found in the configuration.
//
// A value is either used literally or is one of:
//
//	env:NAME              the NAME environment variable (after .env loading)
//	aws-sm:secret-id      an AWS Secrets Manager secret string
//	aws-sm:secret-id#key  one string field of a JSON secret
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"

	"github.com/desertthunder/listsync/internal/shared"
)

const (
	PrefixEnv = "env:"
	PrefixAWS = "aws-sm:"

	resourceNotFound = "ResourceNotFoundException"
	accessDenied     = "AccessDeniedException"
)

var (
	ErrSecretNotFound = fmt.Errorf("secret not found")
	ErrSecretEmpty    = fmt.Errorf("secret is empty")
	ErrAccessDenied   = fmt.Errorf("access denied to secret")
	ErrNoManager      = fmt.Errorf("aws-sm reference used without a secrets manager client")
)

// ManagerAPI is the part of the Secrets Manager client used for lookups.
type ManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver expands references. Secrets Manager lookups are cached per secret id.
type Resolver struct {
	api    ManagerAPI
	lookup func(string) (string, bool)
	cache  map[string]string
}

// NewResolver returns a resolver. api may be nil when no aws-sm references are used.
func NewResolver(api ManagerAPI) *Resolver {
	return &Resolver{api: api, lookup: os.LookupEnv, cache: map[string]string{}}
}

// NewManagerClient builds a Secrets Manager client from the default AWS credential chain.
func NewManagerClient(ctx context.Context) (*secretsmanager.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// IsReference reports whether value needs resolving.
func IsReference(value string) bool {
	return strings.HasPrefix(value, PrefixEnv) || strings.HasPrefix(value, PrefixAWS)
}

// NeedsAWS reports whether any value is an aws-sm reference.
func NeedsAWS(values ...string) bool {
	for _, v := range values {
		if strings.HasPrefix(v, PrefixAWS) {
			return true
		}
	}
	return false
}

// Resolve returns the literal value of ref.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, PrefixEnv):
		name := strings.TrimPrefix(ref, PrefixEnv)
		v, ok := r.lookup(name)
		if !ok || v == "" {
			return "", fmt.Errorf("%w: environment variable %s", ErrSecretEmpty, name)
		}
		return v, nil
	case strings.HasPrefix(ref, PrefixAWS):
		id, key, _ := strings.Cut(strings.TrimPrefix(ref, PrefixAWS), "#")
		raw, err := r.secret(ctx, id)
		if err != nil {
			return "", err
		}
		if key == "" {
			return raw, nil
		}
		return field(raw, id, key)
	default:
		return ref, nil
	}
}

func (r *Resolver) secret(ctx context.Context, id string) (string, error) {
	if v, ok := r.cache[id]; ok {
		return v, nil
	}
	if r.api == nil {
		return "", ErrNoManager
	}

	out, err := r.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case resourceNotFound:
				return "", fmt.Errorf("%w: %s", ErrSecretNotFound, id)
			case accessDenied:
				return "", fmt.Errorf("%w: %s", ErrAccessDenied, id)
			}
		}
		return "", fmt.Errorf("failed to get secret %s: %w", id, err)
	}

	var v string
	switch {
	case out.SecretString != nil:
		v = *out.SecretString
	case out.SecretBinary != nil:
		v = string(out.SecretBinary)
	}
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretEmpty, id)
	}
	r.cache[id] = v
	return v, nil
}

func field(raw, id, key string) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return "", fmt.Errorf("%w: secret %s is not a JSON object", shared.ErrInvalidConfig, id)
	}
	v, ok := doc[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s#%s", ErrSecretEmpty, id, key)
	}
	return v, nil
}

// ResolveConfig replaces references in the credential fields of cfg in place.
func (r *Resolver) ResolveConfig(ctx context.Context, cfg *shared.Config) error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"mailchimp.apikey", &cfg.Mailchimp.APIKey},
		{"mailchimp.access_token", &cfg.Mailchimp.AccessToken},
		{"mailchimp.client_secret", &cfg.Mailchimp.ClientSecret},
		{"source.dsn", &cfg.Source.DSN},
	}
	for _, f := range fields {
		if !IsReference(*f.ptr) {
			continue
		}
		v, err := r.Resolve(ctx, *f.ptr)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", f.name, err)
		}
		*f.ptr = v
	}
	return nil
}
