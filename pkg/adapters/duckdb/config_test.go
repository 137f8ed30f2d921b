package duckdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]any
		want    *Params
		wantErr bool
	}{
		{
			name:  "nil params returns empty struct",
			input: nil,
			want:  &Params{},
		},
		{
			name: "extensions only",
			input: map[string]any{
				"extensions": []any{"httpfs", "spatial", "json"},
			},
			want: &Params{
				Extensions: []string{"httpfs", "spatial", "json"},
			},
		},
		{
			name: "settings are weakly typed",
			input: map[string]any{
				"settings": map[string]any{
					"memory_limit": "4GB",
					"threads":      4,
				},
			},
			want: &Params{
				Settings: map[string]string{
					"memory_limit": "4GB",
					"threads":      "4",
				},
			},
		},
		{
			name: "secrets with scope as array",
			input: map[string]any{
				"secrets": []any{
					map[string]any{
						"type":     "s3",
						"provider": "credential_chain",
						"scope":    []any{"s3://bucket1", "s3://bucket2"},
					},
				},
			},
			want: &Params{
				Secrets: []SecretConfig{
					{Type: "s3", Provider: "credential_chain", Scope: []any{"s3://bucket1", "s3://bucket2"}},
				},
			},
		},
		{
			name:    "unknown key",
			input:   map[string]any{"extension": []any{"httpfs"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want.Extensions, got.Extensions)
			assert.Equal(t, tt.want.Settings, got.Settings)
			require.Len(t, got.Secrets, len(tt.want.Secrets))
			for i := range tt.want.Secrets {
				assert.Equal(t, tt.want.Secrets[i].Type, got.Secrets[i].Type)
				assert.Equal(t, tt.want.Secrets[i].Provider, got.Secrets[i].Provider)
				assert.Equal(t, tt.want.Secrets[i].Scope, got.Secrets[i].Scope)
			}
		})
	}
}

func TestSetupStatements(t *testing.T) {
	useSSL := false
	stmts, err := setupStatements(&Params{
		Extensions: []string{"httpfs"},
		Secrets: []SecretConfig{{
			Type:     "s3",
			Provider: "config",
			Region:   "us-east-1",
			KeyID:    "key",
			Secret:   "it's",
			Scope:    "s3://bucket",
			UseSSL:   &useSSL,
		}},
		Settings: map[string]string{"threads": "4", "memory_limit": "4GB"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"INSTALL httpfs",
		"LOAD httpfs",
		"CREATE OR REPLACE SECRET leapmeta_secret_0 (TYPE s3, PROVIDER config, REGION 'us-east-1', KEY_ID 'key', SECRET 'it''s', USE_SSL false, SCOPE 's3://bucket')",
		"SET memory_limit = '4GB'",
		"SET threads = 4",
	}, stmts)
}

func TestSetupStatements_Errors(t *testing.T) {
	_, err := setupStatements(&Params{Secrets: []SecretConfig{{Provider: "config"}}})
	assert.ErrorContains(t, err, "type is required")

	_, err = setupStatements(&Params{Settings: map[string]string{"bad name": "x"}})
	assert.ErrorContains(t, err, "invalid setting name")
}
