package doctor

import (
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/warden/internal/config"
)

func setTestConfig(t *testing.T, overrides map[string]any) {
	t.Helper()
	viper.Set(config.KeyDataDir, t.TempDir())
	for k, v := range overrides {
		viper.Set(k, v)
	}
	t.Cleanup(func() {
		viper.Set(config.KeyDataDir, "")
		for k := range overrides {
			viper.Set(k, nil)
		}
	})
}

func checkByName(t *testing.T, report *Report, name string) CheckResult {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not in report", name)
	return CheckResult{}
}

func TestRun_RulesBackendPasses(t *testing.T) {
	setTestConfig(t, map[string]any{
		config.KeyAgentBackend: config.AgentBackendRules,
	})

	report := Run(context.Background(), Options{SkipNetwork: true})
	assert.Equal(t, "pass", checkByName(t, report, "data_dir_writable").Status)
	assert.Equal(t, "pass", checkByName(t, report, "state_db").Status)
	assert.Equal(t, "pass", checkByName(t, report, "memory_db").Status)
	assert.Equal(t, "pass", checkByName(t, report, "agent_backend").Status)
	// Dataset missing is a warning, not a failure.
	assert.Equal(t, "warn", checkByName(t, report, "dataset").Status)
	assert.Equal(t, "warn", report.Status)
	assert.Zero(t, report.Summary.Fail)
}

func TestRun_LLMBackendWithoutKeyFails(t *testing.T) {
	t.Setenv("TOGETHER_API_KEY", "")
	setTestConfig(t, map[string]any{
		config.KeyAgentBackend: config.AgentBackendLLM,
		config.KeyAPIKey:       "",
	})

	report := Run(context.Background(), Options{SkipNetwork: true})
	check := checkByName(t, report, "agent_backend")
	require.Equal(t, "fail", check.Status)
	assert.Contains(t, check.Fix, "WARDEN_API_KEY")
	assert.Equal(t, "fail", report.Status)
}

func TestRun_OllamaProvidersNeedNoKey(t *testing.T) {
	setTestConfig(t, map[string]any{
		config.KeyAgentBackend:    config.AgentBackendLLM,
		config.KeyStudentProvider: "ollama",
		config.KeyExpertProvider:  "ollama",
	})

	report := Run(context.Background(), Options{SkipNetwork: true})
	assert.Equal(t, "pass", checkByName(t, report, "agent_backend").Status)
}
