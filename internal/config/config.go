package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Configuration keys for the immunization obs-group schema. Their absence is
// reported at first use by the codec, naming the key, so a misconfigured
// instance fails loudly on the first immunization request rather than at
// boot.
const (
	ImmunizationGroupingConceptKey = "IMMUNIZATION_GROUPING_CONCEPT"
	ImmunizationMemberConceptsKey  = "IMMUNIZATION_MEMBER_CONCEPTS"
	AdministeringEncounterRoleKey  = "ADMINISTERING_ENCOUNTER_ROLE"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	JWTIssuer     string `mapstructure:"JWT_ISSUER"`
	JWTAudience   string `mapstructure:"JWT_AUDIENCE"`
	JWTSigningKey string `mapstructure:"JWT_SIGNING_KEY"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Obs-group schema wiring. The member list is ordered; each entry is a
	// "<vocabulary>:<code>" reference term.
	ImmunizationGroupingConcept string `mapstructure:"IMMUNIZATION_GROUPING_CONCEPT"`
	ImmunizationMemberConcepts  string `mapstructure:"IMMUNIZATION_MEMBER_CONCEPTS"`
	AdministeringEncounterRole  string `mapstructure:"ADMINISTERING_ENCOUNTER_ROLE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault(ImmunizationGroupingConceptKey, "CIEL:1421")
	v.SetDefault(ImmunizationMemberConceptsKey,
		"CIEL:984,CIEL:1410,CIEL:1418,CIEL:1419,CIEL:1420,CIEL:165907")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_ISSUER")
	v.BindEnv("JWT_AUDIENCE")
	v.BindEnv("JWT_SIGNING_KEY")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv(ImmunizationGroupingConceptKey)
	v.BindEnv(ImmunizationMemberConceptsKey)
	v.BindEnv(AdministeringEncounterRoleKey)

	// Try reading .env, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// MemberConceptList returns the ordered member reference terms of the
// immunization obs-group schema.
func (c *Config) MemberConceptList() []string {
	if c.ImmunizationMemberConcepts == "" {
		return nil
	}
	parts := strings.Split(c.ImmunizationMemberConcepts, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
