package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Providers the classifier can run on.
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// Config adds service-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	Provider     string
	ClaudeAPIKey string
	ClaudeModel  string
	GeminiAPIKey string
	GeminiModel  string

	DatabaseURL     string
	ExemplarDir     string
	SlackWebhookURL string

	ProtocolsPath       string
	CasesPath           string
	SpecializationsPath string

	ProtocolTopK   int
	RouterMinScore float64

	OverTriageScore  float64
	UnderTriageScore float64

	MaxBootstrappedDemos int
	MaxLabeledDemos      int
	CompileConcurrency   int
	ClassifierRPS        float64
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = no auth)")

	fs.StringVar(&c.Provider, "provider", ProviderClaude, "classifier provider: claude or gemini")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.StringVar(&c.GeminiAPIKey, "gemini-api-key", "", "API key for the Gemini provider")
	fs.StringVar(&c.GeminiModel, "gemini-model", "gemini-2.0-flash", "Gemini model to use")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for exemplar sets (empty = file store)")
	fs.StringVar(&c.ExemplarDir, "exemplar-dir", "./exemplars", "directory for file-backed exemplar sets")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for Emergency escalation notifications")

	fs.StringVar(&c.ProtocolsPath, "protocols-path", "./data/protocols.json", "path to the clinical protocol corpus")
	fs.StringVar(&c.CasesPath, "cases-path", "./data/cases.json", "path to the labeled case bank")
	fs.StringVar(&c.SpecializationsPath, "specializations-path", "", "path to specialization profiles (empty = builtin roles)")

	fs.IntVar(&c.ProtocolTopK, "protocol-top-k", 3, "protocols attached as context per triage request (1..20)")
	fs.Float64Var(&c.RouterMinScore, "router-min-score", 0, "minimum router score before falling back to the general role (>= 0)")

	fs.Float64Var(&c.OverTriageScore, "over-triage-score", 0.7, "safety score for over-triage by one level (0..1)")
	fs.Float64Var(&c.UnderTriageScore, "under-triage-score", 0.3, "safety score for non-critical under-triage (0..1)")

	fs.IntVar(&c.MaxBootstrappedDemos, "max-bootstrapped-demos", 8, "bootstrap pool size per compiled exemplar set (1..64)")
	fs.IntVar(&c.MaxLabeledDemos, "max-labeled-demos", 4, "exemplars served per classification (1..max-bootstrapped-demos)")
	fs.IntVar(&c.CompileConcurrency, "compile-concurrency", 4, "concurrent classifier calls during compilation (1..32)")
	fs.Float64Var(&c.ClassifierRPS, "classifier-rps", 0, "classifier request rate limit during compilation (0 = unlimited)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Provider and its credentials
	switch c.Provider {
	case ProviderClaude:
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required with the claude provider"))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, errors.New("CLAUDE_MODEL is required with the claude provider"))
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required with the gemini provider"))
		}
		if c.GeminiModel == "" {
			errs = append(errs, errors.New("GEMINI_MODEL is required with the gemini provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid PROVIDER %q (must be claude or gemini)", c.Provider))
	}

	if c.DatabaseURL == "" && c.ExemplarDir == "" {
		errs = append(errs, errors.New("EXEMPLAR_DIR is required when DATABASE_URL is empty"))
	}

	if c.ProtocolsPath == "" {
		errs = append(errs, errors.New("PROTOCOLS_PATH is required"))
	}

	if c.ProtocolTopK <= 0 || c.ProtocolTopK > 20 {
		errs = append(errs, fmt.Errorf("invalid PROTOCOL_TOP_K %d (must be 1..20)", c.ProtocolTopK))
	}
	if c.RouterMinScore < 0 {
		errs = append(errs, fmt.Errorf("invalid ROUTER_MIN_SCORE %g (must be >= 0)", c.RouterMinScore))
	}

	// Safety weights. Under-triage must stay cheaper than over-triage:
	// the asymmetry is what makes guessing low costly.
	if c.OverTriageScore < 0 || c.OverTriageScore > 1 {
		errs = append(errs, fmt.Errorf("invalid OVER_TRIAGE_SCORE %g (must be 0..1)", c.OverTriageScore))
	}
	if c.UnderTriageScore < 0 || c.UnderTriageScore > 1 {
		errs = append(errs, fmt.Errorf("invalid UNDER_TRIAGE_SCORE %g (must be 0..1)", c.UnderTriageScore))
	}
	if c.UnderTriageScore >= c.OverTriageScore {
		errs = append(errs, fmt.Errorf("UNDER_TRIAGE_SCORE %g must be less than OVER_TRIAGE_SCORE %g", c.UnderTriageScore, c.OverTriageScore))
	}

	if c.MaxBootstrappedDemos <= 0 || c.MaxBootstrappedDemos > 64 {
		errs = append(errs, fmt.Errorf("invalid MAX_BOOTSTRAPPED_DEMOS %d (must be 1..64)", c.MaxBootstrappedDemos))
	}
	if c.MaxLabeledDemos <= 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_LABELED_DEMOS %d (must be >= 1)", c.MaxLabeledDemos))
	}
	if c.MaxLabeledDemos > c.MaxBootstrappedDemos {
		errs = append(errs, fmt.Errorf("MAX_LABELED_DEMOS %d must not exceed MAX_BOOTSTRAPPED_DEMOS %d", c.MaxLabeledDemos, c.MaxBootstrappedDemos))
	}
	if c.CompileConcurrency <= 0 || c.CompileConcurrency > 32 {
		errs = append(errs, fmt.Errorf("invalid COMPILE_CONCURRENCY %d (must be 1..32)", c.CompileConcurrency))
	}
	if c.ClassifierRPS < 0 {
		errs = append(errs, fmt.Errorf("invalid CLASSIFIER_RPS %g (must be >= 0)", c.ClassifierRPS))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
